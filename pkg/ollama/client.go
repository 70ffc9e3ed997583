// Package ollama adapts the Ollama chat API to the vision client interface.
package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/browcrop/pkg/client"
	"github.com/menta2k/browcrop/pkg/types"
)

// DefaultURL is used when no server URL is configured
const DefaultURL = "http://localhost:11434"

const requestTimeout = 5 * time.Minute

var jsonFormat = json.RawMessage(`"json"`)

// Client wraps the Ollama API client
type Client struct {
	api *api.Client
}

// NewClient creates a client for serverURL, or DefaultURL if empty. Any
// path in serverURL is dropped.
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", serverURL)
	}

	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	return &Client{api: api.NewClient(base, http.DefaultClient)}, nil
}

// SimpleQuery asks a free-form question about an image
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	req, err := chatRequest(model, prompt, imgB64)
	if err != nil {
		return "", err
	}
	return c.chat(ctx, req)
}

// LocateLandmarks asks the model for eye and eyebrow positions in JSON mode
func (c *Client) LocateLandmarks(ctx context.Context, model, prompt, imgB64 string) (*types.LandmarkReply, error) {
	req, err := chatRequest(model, prompt, imgB64)
	if err != nil {
		return nil, err
	}
	req.Format = jsonFormat
	req.Options = map[string]any{"temperature": 0.0, "seed": 42}
	// minicpm-v needs a larger context for high resolution input
	if strings.Contains(strings.ToLower(model), "minicpm-v") {
		req.Options["num_ctx"] = 4096
	}

	text, err := c.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return client.ParseLandmarkReply(text)
}

func chatRequest(model, prompt, imgB64 string) (*api.ChatRequest, error) {
	msg := api.Message{Role: "user", Content: prompt}
	if imgB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(imgB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		msg.Images = []api.ImageData{raw}
	}
	stream := false
	return &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{msg},
		Stream:   &stream,
	}, nil
}

func (c *Client) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	var sb strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response from ollama")
	}
	return sb.String(), nil
}

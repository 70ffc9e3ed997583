// Package llamacpp talks to the OpenAI-compatible chat endpoint of a
// llama.cpp server running a multimodal model.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/browcrop/pkg/client"
	"github.com/menta2k/browcrop/pkg/types"
)

// DefaultURL is used when no server URL is configured
const DefaultURL = "http://localhost:8080"

const completionsPath = "/v1/chat/completions"

// Client is a minimal chat-completions client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Message is one chat turn. Content is a string in replies and a list of
// parts in requests.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Part is a text or image element of a request message
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ResponseFormat asks the server to constrain output to JSON
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request is the chat-completions request body
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p,omitempty"`
	Seed           int             `json:"seed,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

// Response is the part of the chat-completions reply we read
type Response struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// NewClient creates a client for serverURL, or DefaultURL if empty
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid URL: %q needs an http or https scheme", serverURL)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// SimpleQuery asks a free-form question about an image
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	req := visionRequest(model, prompt, imgB64)
	req.Temperature = 0.7
	req.TopP = 0.9
	req.MaxTokens = 2048
	return c.complete(ctx, req)
}

// LocateLandmarks asks for eye and eyebrow points as JSON
func (c *Client) LocateLandmarks(ctx context.Context, model, prompt, imgB64 string) (*types.LandmarkReply, error) {
	req := visionRequest(model, prompt, imgB64)
	req.Temperature = 0
	req.Seed = 42
	req.MaxTokens = 1024
	req.ResponseFormat = &ResponseFormat{Type: "json_object"}

	text, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return client.ParseLandmarkReply(text)
}

func visionRequest(model, prompt, imgB64 string) Request {
	parts := []Part{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, Part{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}
	return Request{
		Model:    model,
		Messages: []Message{{Role: "user", Content: parts}},
	}
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	body, err := c.post(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llama.cpp request failed: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	if text := messageText(resp.Choices[0].Message.Content); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("empty response from llama.cpp server")
}

// messageText returns the first non-empty text of a string or part list
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if part, ok := item.(map[string]any); ok {
				if text, _ := part["text"].(string); text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, payload Request) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

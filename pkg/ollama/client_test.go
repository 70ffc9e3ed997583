package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type chatCall struct {
	Model    string          `json:"model"`
	Format   json.RawMessage `json:"format"`
	Options  map[string]any  `json:"options"`
	Messages []struct {
		Content string   `json:"content"`
		Images  []string `json:"images"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, answer string) (*httptest.Server, *chatCall) {
	t.Helper()
	var got chatCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   got.Model,
			"message": map[string]any{"role": "assistant", "content": answer},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(""); err != nil {
		t.Errorf("Default URL rejected: %v", err)
	}
	if _, err := NewClient("http://gpu-box:11434/api/chat"); err != nil {
		t.Errorf("URL with path rejected: %v", err)
	}
	if _, err := NewClient("gpu-box"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}

func TestLocateLandmarks(t *testing.T) {
	srv, got := newChatServer(t, `{"face": true, "confidence": 0.7, "right_eyebrow": [[0.6, 0.3]]}`)
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	img := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})
	reply, err := c.LocateLandmarks(context.Background(), "minicpm-v:8b", "where are the brows", img)
	if err != nil {
		t.Fatalf("LocateLandmarks failed: %v", err)
	}
	if !reply.Face || reply.Confidence != 0.7 || len(reply.RightEyebrow) != 1 {
		t.Errorf("Unexpected reply %+v", reply)
	}

	if string(got.Format) != `"json"` {
		t.Errorf("Expected JSON format mode, got %s", got.Format)
	}
	if got.Options["num_ctx"] != float64(4096) {
		t.Errorf("Expected num_ctx for minicpm-v, got %v", got.Options)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 {
		t.Fatalf("Expected one message with one image, got %+v", got.Messages)
	}
	if got.Messages[0].Images[0] != img {
		t.Errorf("Image not forwarded unchanged")
	}
}

func TestSimpleQuery(t *testing.T) {
	srv, got := newChatServer(t, "A portrait of a person.")
	c, _ := NewClient(srv.URL)

	text, err := c.SimpleQuery(context.Background(), "llava", "describe", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "A portrait of a person." {
		t.Errorf("Unexpected answer %q", text)
	}
	if len(got.Format) != 0 {
		t.Errorf("Free-form query must not set a format, got %s", got.Format)
	}
}

func TestInvalidImage(t *testing.T) {
	c, _ := NewClient("")
	if _, err := c.LocateLandmarks(context.Background(), "llava", "p", "%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestEmptyAnswer(t *testing.T) {
	srv, _ := newChatServer(t, "")
	c, _ := NewClient(srv.URL)
	if _, err := c.SimpleQuery(context.Background(), "llava", "p", ""); err == nil {
		t.Error("Expected error for empty answer")
	}
}

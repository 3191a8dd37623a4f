package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jkaninda/duka/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != DefaultModel || req.MaxTokens != 64 {
			t.Errorf("model=%q max_tokens=%d", req.Model, req.MaxTokens)
		}
		if len(req.System) != 1 || !strings.Contains(req.System[0].Text, "JSON object") {
			t.Errorf("system = %+v", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "{\"intent\":"}, {"type": "text", "text": "\"other\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	client := NewClient("test-key", "", discardLogger(), WithBaseURL(srv.URL))
	req := llm.UserPrompt("Classify.", "hello there", 64)
	req.JSON = true
	resp, err := client.SendMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != `{"intent":"other"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.StopReason != "end_turn" || resp.Usage.InputTokens != 30 || resp.Usage.OutputTokens != 4 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSendMessage_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`)
	}))
	defer srv.Close()

	client := NewClient("bad", "", discardLogger(), WithBaseURL(srv.URL))
	if _, err := client.SendMessage(context.Background(), llm.UserPrompt("", "hi", 8)); err == nil {
		t.Fatal("expected error")
	}
}

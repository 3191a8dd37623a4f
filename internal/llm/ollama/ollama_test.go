package ollama

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jkaninda/duka/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != DefaultModel {
			t.Errorf("model = %q", req.Model)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Format != "json" {
			t.Errorf("format = %q", req.Format)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(chatResponse{
			Model:           req.Model,
			Message:         chatMessage{Role: "assistant", Content: `{"intent":"product_assist"}`},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 20,
			EvalCount:       7,
		})
	}))
	defer srv.Close()

	client := NewClient("", discardLogger(), WithBaseURL(srv.URL))
	req := llm.UserPrompt("Classify.", "wedding dress under $120", 32)
	req.JSON = true
	resp, err := client.SendMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Text() != `{"intent":"product_assist"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.StopReason != "end_turn" || resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 7 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSendMessage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("missing", discardLogger(), WithBaseURL(srv.URL))
	if _, err := client.SendMessage(context.Background(), llm.UserPrompt("", "hi", 0)); err == nil {
		t.Fatal("expected error")
	}
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vylinhq/vylin/internal/config"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientParam{
		Log: zap.NewNop(),
		Cfg: config.Config{LLMBaseURL: srv.URL, LLMAPIKey: "llm-key", LLMModel: "grok-4-1-fast-reasoning"},
	})
}

func TestComplete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer llm-key" {
			t.Errorf("missing bearer token")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.MaxTokens != maxOutputTokens {
			t.Errorf("expected max_tokens %d, got %d", maxOutputTokens, req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: "Rent is charged per epoch."}},
			},
			Usage: Usage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52},
		})
	})

	got, err := client.Complete(context.Background(), "be terse", "how does rent work")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "Rent is charged per epoch." {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.Usage.TotalTokens != 52 {
		t.Fatalf("unexpected usage %+v", got.Usage)
	}
}

func TestCompleteEmptyPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty prompt")
	})

	got, err := client.Complete(context.Background(), "system", "   ")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "" {
		t.Fatalf("expected empty completion, got %q", got.Text)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := client.Complete(context.Background(), "system", "question"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

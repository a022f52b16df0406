package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"TrendPress/internal/config"
)

func TestChatGPTClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.MaxTokens != 30 || len(req.Messages) != 1 || req.Messages[0].Content != "Generate a title for AI Art" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Generated Title \n"}}]}`))
	}))
	defer server.Close()

	client := NewChatGPTClient(config.TextGenConfig{Endpoint: server.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	got, err := client.Complete(context.Background(), "Generate a title for AI Art", 30)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "Generated Title" {
		t.Fatalf("unexpected completion: %q", got)
	}
}

func TestChatGPTClientEmptyChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewChatGPTClient(config.TextGenConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	_, err := client.Complete(context.Background(), "prompt", 10)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestChatGPTClientHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewChatGPTClient(config.TextGenConfig{Endpoint: server.URL, Model: "m", APIKey: "k"})
	if _, err := client.Complete(context.Background(), "prompt", 10); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestChatGPTClientMisconfigured(t *testing.T) {
	t.Parallel()

	client := NewChatGPTClient(config.TextGenConfig{})
	if _, err := client.Complete(context.Background(), "prompt", 10); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"total_tokens": 42},
	})
	return string(b)
}

func TestOpenAIReview(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(chatResponse(`{"reviews": []}`))); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(&ClientConfig{
		Provider: ProviderOpenAI,
		APIURL:   server.URL + "/v1/",
		APIKey:   "sk-test",
		Model:    "qwen/qwen3-coder-30b",
	})

	resp, err := client.Review(context.Background(), Request{
		SystemPrompt: "sys",
		UserPrompt:   "user",
		Temperature:  0.1,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q, want /v1/chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Model != "qwen/qwen3-coder-30b" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("unexpected messages: %+v", gotBody.Messages)
	}
	if resp.Content != `{"reviews": []}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", resp.TokensUsed)
	}
}

func TestOpenAIReviewNoAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header: %q", r.Header.Get("Authorization"))
		}
		if _, err := w.Write([]byte(chatResponse("ok"))); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(&ClientConfig{APIURL: server.URL, Model: "m"})
	if _, err := client.Review(context.Background(), Request{}); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
}

func TestOpenAIReviewServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		if _, err := w.Write([]byte(`{"error": {"message": "model not loaded"}}`)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(&ClientConfig{APIURL: server.URL, Model: "m"})
	_, err := client.Review(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if te.Err.Error() != "model not loaded" {
		t.Errorf("message = %q", te.Err.Error())
	}
}

func TestOpenAIReviewNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"choices": []}`)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(&ClientConfig{APIURL: server.URL, Model: "m"})
	_, err := client.Review(context.Background(), Request{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestOpenAIReviewTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		if _, err := w.Write([]byte(chatResponse("late"))); err != nil {
			// Client has gone away by now; nothing to assert.
			_ = err
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(&ClientConfig{APIURL: server.URL, Model: "m"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Review(ctx, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

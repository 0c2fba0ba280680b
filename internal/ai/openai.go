package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint,
// which is what local servers (LM Studio, Ollama, llama.cpp, OpenWebUI)
// expose.
type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

const defaultTimeout = 300 * time.Second

// NewOpenAIClient builds a client for config.APIURL. The URL is the API
// base (e.g. http://localhost:1234/v1); the chat-completions path is
// appended here.
func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	// Create HTTP client with optional TLS skip verification
	transport := &http.Transport{}

	// Check for environment variable to skip TLS verification (for corporate proxies, etc.)
	if skipTLS, _ := strconv.ParseBool(os.Getenv("LOCALREVIEW_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	return &OpenAIClient{
		config: config,
		http:   httpClient,
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Review sends the prompts to the chat-completions endpoint and returns the
// raw completion text.
func (c *OpenAIClient) Review(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Response{}, err
	}

	url := strings.TrimRight(c.config.APIURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return Response{}, err
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Response{}, context.DeadlineExceeded
		}
		return Response{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message != "" {
			return Response{}, &TransportError{Err: errors.New(e.Error.Message)}
		}
		return Response{}, &TransportError{Err: errors.New(resp.Status)}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, &TransportError{Err: err}
	}
	if len(out.Choices) == 0 {
		return Response{}, &TransportError{Err: errors.New("no choices in response")}
	}

	return Response{
		Content:    out.Choices[0].Message.Content,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}

// setHeaders sets common headers for chat-completions requests. The API key
// is optional; local servers usually run without one.
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

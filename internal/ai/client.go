// Package ai provides the review-completion clients. A client receives a
// fully built prompt and returns the model's raw text; parsing and schema
// validation of findings happen in the review package.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request carries one review call. SystemPrompt and UserPrompt are built by
// the review package; the client only transports them.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response is the raw completion text plus token accounting when the
// backend reports it.
type Response struct {
	Content    string
	TokensUsed int
}

// Client is the opaque review-completion service.
type Client interface {
	Review(ctx context.Context, req Request) (Response, error)
	Name() string
}

// TransportError wraps a connectivity failure to the backend. It is
// per-unit and non-fatal: the pipeline records it and moves on.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("review transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Provider is enumeration of supported review backends
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderStub   Provider = "stub"
)

// ClientConfig holds configuration for review clients
type ClientConfig struct {
	Provider  Provider
	APIURL    string
	APIKey    string
	Model     string
	ProjectID string
	Location  string
	Timeout   time.Duration
}

// NewClient creates a new review client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderGemini:
		return NewGeminiClient(context.Background(), config)
	case ProviderStub:
		return NewStubClient(), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is a stub implementation of the Client interface for testing
type StubClient struct{}

// NewStubClient creates a new StubClient
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Review returns an empty findings document.
func (s *StubClient) Review(ctx context.Context, req Request) (Response, error) {
	return Response{Content: `{"reviews": []}`}, nil
}

func (s *StubClient) Name() string { return "stub" }

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient reviews code through the Google Gemini API, for setups where
// no local endpoint is available.
type GeminiClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewGeminiClient creates a new client for the Google Gemini API.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		config: config,
		client: client,
	}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

// Review sends the prompts through GenerateContent and returns the raw
// completion text.
func (c *GeminiClient) Review(ctx context.Context, req Request) (Response, error) {
	maxTokens := int32(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 2000
	}
	temp := float32(req.Temperature)

	system := genai.Text(req.SystemPrompt)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   maxTokens,
		SystemInstruction: system[0],
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.UserPrompt), &cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Response{}, context.DeadlineExceeded
		}
		return Response{}, &TransportError{Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Response{}, &TransportError{Err: errors.New("no candidates returned")}
	}

	return Response{Content: strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)}, nil
}

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GenAIConfig selects and configures the genai backend. Backend is either
// "vertexai" (Project/Location required) or "gemini" (APIKey required),
// matching the two backends google.golang.org/genai supports.
type GenAIConfig struct {
	Backend  string
	Project  string
	Location string
	APIKey   string
	Model    string
}

// GenAIClient implements Client atop google.golang.org/genai, adapted from
// vertexai.Client: a thin wrapper that turns a CompletionRequest into a
// single-shot generate-content call and extracts the first text part of the
// first candidate.
type GenAIClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGenAIClient creates a genai-backed Client for cfg.Backend.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig, logger *slog.Logger) (*GenAIClient, error) {
	clientCfg := &genai.ClientConfig{}
	switch cfg.Backend {
	case "vertexai":
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
	case "gemini", "":
		clientCfg.Backend = genai.BackendGeminiAPI
		clientCfg.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("llm: unknown genai backend %q", cfg.Backend)
	}

	c, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}

	return &GenAIClient{client: c, model: cfg.Model, logger: logger}, nil
}

// Complete sends req.Prompt to the configured model and returns the first
// text part of the first candidate.
func (c *GenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	temperature := float32(req.Temperature)
	genConfig := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}

	c.logger.DebugContext(ctx, "llm: sending completion request", "model", model, "prompt_length", len(req.Prompt))

	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm: empty response from model %s", model)
	}

	text := result.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("llm: empty text part from model %s", model)
	}
	return text, nil
}

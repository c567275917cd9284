package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"QAForge/internal/config"
	"QAForge/internal/ports"
)

// GeminiClient is a thin wrapper around the official genai client. Rate
// limiting, caching and retries are applied by the generation layer.
type GeminiClient struct {
	cli          *genai.Client
	model        string
	systemPrompt string
}

var _ ports.Completer = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini API client. An empty API key lets genai
// fall back to GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{cli: cli, model: cfg.Model, systemPrompt: cfg.SystemPrompt}, nil
}

func (g *GeminiClient) Name() string { return "gemini:" + g.model }

// Complete asks for an application/json reply and returns its text.
func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if sp := strings.TrimSpace(g.systemPrompt); sp != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sp}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

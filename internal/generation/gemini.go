package generation

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiLLM implements the LLM interface using Google's Gemini API.
type GeminiLLM struct {
	client *genai.Client
	config LLMConfig
}

// NewGeminiLLM creates a Gemini-backed LLM. An empty API key falls back to
// GEMINI_API_KEY.
func NewGeminiLLM(ctx context.Context, config LLMConfig) (*GeminiLLM, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key (set GEMINI_API_KEY or provide in config)", ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiLLM{client: client, config: config}, nil
}

// Model returns the configured model identifier.
func (g *GeminiLLM) Model() string {
	return g.config.Model
}

// Generate sends the request to Gemini and returns the generated text.
func (g *GeminiLLM) Generate(ctx context.Context, req Request) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	temperature, maxTokens := effective(g.config, req)
	if temperature > 0 {
		cfg.Temperature = genai.Ptr(temperature)
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, ErrEmptyResponse)
	}
	return text, nil
}

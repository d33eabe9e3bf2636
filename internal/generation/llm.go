// Package generation wraps language models behind the four roles a rewriting
// session needs: rewriting, reviewing, summarizing and generating new rewrite
// instructions. Providers are OpenAI and Gemini, plus a deterministic mock
// for tests.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLLMFailed        = errors.New("LLM request failed")
	ErrInvalidConfig    = errors.New("invalid LLM configuration")
	ErrEmptyResponse    = errors.New("LLM returned no text")
	ErrUnknownProvider  = errors.New("unknown LLM provider")
	ErrGenerationFailed = errors.New("generation failed")
)

// Provider names accepted by NewLLM.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Request is a single completion request.
type Request struct {
	// System is an optional system instruction.
	System string

	// Prompt is the user message.
	Prompt string

	// Temperature overrides the configured temperature when > 0.
	Temperature float32

	// MaxTokens overrides the configured limit when > 0.
	MaxTokens int
}

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text for the request using the configured model.
	Generate(ctx context.Context, req Request) (string, error)

	// Model returns the model identifier recorded alongside generated text.
	Model() string
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Provider selects the backend: "openai", "gemini" or "mock".
	Provider string

	// Model specifies the model identifier (e.g., "gpt-4o", "gemini-1.5-pro")
	Model string

	// Temperature controls randomness (0.0 = provider default)
	Temperature float32

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string
}

// DefaultLLMConfig returns defaults for chapter rewriting.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:  ProviderOpenAI,
		Model:     "gpt-4o-mini",
		MaxTokens: 4000,
	}
}

// NewLLM builds the provider named in config.
func NewLLM(ctx context.Context, config LLMConfig) (LLM, error) {
	switch strings.ToLower(config.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAILLM(config)
	case ProviderGemini:
		return NewGeminiLLM(ctx, config)
	case ProviderMock:
		m := NewMockLLM("")
		if config.Model != "" {
			m.ModelName = config.Model
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, config.Provider)
	}
}

// effective merges per-request overrides with the provider config.
func effective(config LLMConfig, req Request) (float32, int) {
	temperature := config.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	return temperature, maxTokens
}

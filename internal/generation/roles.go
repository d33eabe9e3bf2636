package generation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Rewriter rewrites text following an instruction template.
type Rewriter struct {
	llm LLM
}

// NewRewriter creates a rewriter backed by llm.
func NewRewriter(llm LLM) *Rewriter {
	return &Rewriter{llm: llm}
}

// Model returns the model used for rewriting.
func (r *Rewriter) Model() string {
	return r.llm.Model()
}

// Rewrite applies instruction to content.
func (r *Rewriter) Rewrite(ctx context.Context, content, instruction string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content is required", ErrGenerationFailed)
	}
	text, err := r.llm.Generate(ctx, Request{Prompt: AssembleRewritePrompt(instruction, content)})
	if err != nil {
		return "", fmt.Errorf("%w: rewrite: %w", ErrGenerationFailed, err)
	}
	return text, nil
}

// Reviewer produces editorial feedback.
type Reviewer struct {
	llm LLM
}

// NewReviewer creates a reviewer backed by llm.
func NewReviewer(llm LLM) *Reviewer {
	return &Reviewer{llm: llm}
}

// Model returns the model used for reviews.
func (r *Reviewer) Model() string {
	return r.llm.Model()
}

// Review returns feedback on content.
func (r *Reviewer) Review(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content is required", ErrGenerationFailed)
	}
	text, err := r.llm.Generate(ctx, Request{Prompt: AssembleReviewPrompt(content)})
	if err != nil {
		return "", fmt.Errorf("%w: review: %w", ErrGenerationFailed, err)
	}
	return text, nil
}

// Summarizer condenses a chapter.
type Summarizer struct {
	llm LLM
}

// NewSummarizer creates a summarizer backed by llm.
func NewSummarizer(llm LLM) *Summarizer {
	return &Summarizer{llm: llm}
}

// Summarize returns a short summary of content.
func (s *Summarizer) Summarize(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content is required", ErrGenerationFailed)
	}
	text, err := s.llm.Generate(ctx, Request{Prompt: AssembleSummaryPrompt(content)})
	if err != nil {
		return "", fmt.Errorf("%w: summarize: %w", ErrGenerationFailed, err)
	}
	return text, nil
}

// InstructionGenerator asks a model for a fresh rewrite instruction.
type InstructionGenerator struct {
	llm    LLM
	logger *zap.Logger
}

// Instruction generation settings favor varied output.
const (
	instructionTemperature = 0.7
	instructionMaxTokens   = 250
)

// NewInstructionGenerator creates a generator backed by llm.
func NewInstructionGenerator(llm LLM, logger *zap.Logger) *InstructionGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructionGenerator{llm: llm, logger: logger.Named("instructions")}
}

// Model returns the model used to generate instructions.
func (g *InstructionGenerator) Model() string {
	return g.llm.Model()
}

// Generate returns a new instruction template ending in a blank line. The
// bool is false when the model failed or returned nothing usable.
func (g *InstructionGenerator) Generate(ctx context.Context, req InstructionRequest) (string, bool) {
	g.logger.Info("requesting new prompt instruction", zap.String("model", g.llm.Model()))

	text, err := g.llm.Generate(ctx, Request{
		System:      instructionSystem,
		Prompt:      AssembleInstructionPrompt(req),
		Temperature: instructionTemperature,
		MaxTokens:   instructionMaxTokens,
	})
	if err != nil {
		g.logger.Warn("prompt instruction generation failed", zap.Error(err))
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		g.logger.Warn("prompt instruction generation returned no text")
		return "", false
	}
	return text + "\n\n", true
}

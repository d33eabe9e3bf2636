package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriter_Rewrite(t *testing.T) {
	llm := NewMockLLM("Long ago, a tale began.")
	r := NewRewriter(llm)

	text, err := r.Rewrite(context.Background(), "Once upon a time.", "Rewrite the following text:\n\n")
	require.NoError(t, err)
	assert.Equal(t, "Long ago, a tale began.", text)
	assert.Equal(t, "Rewrite the following text:\n\nText to rewrite:\n\nOnce upon a time.", llm.LastRequest().Prompt)
	assert.Equal(t, "mock", r.Model())
}

func TestRewriter_Failure(t *testing.T) {
	cause := errors.New("rate limited")
	r := NewRewriter(NewMockLLMWithError(cause))

	_, err := r.Rewrite(context.Background(), "text", "inst")
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, cause)

	_, err = r.Rewrite(context.Background(), "  ", "inst")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestReviewerAndSummarizer(t *testing.T) {
	llm := &MockLLM{Responses: []string{"Looks good.", "A summary."}}

	review, err := NewReviewer(llm).Review(context.Background(), "chapter")
	require.NoError(t, err)
	assert.Equal(t, "Looks good.", review)

	summary, err := NewSummarizer(llm).Summarize(context.Background(), "chapter")
	require.NoError(t, err)
	assert.Equal(t, "A summary.", summary)
	assert.Equal(t, 2, llm.Calls())
}

func TestInstructionGenerator_Generate(t *testing.T) {
	llm := NewMockLLM("  Rewrite as a ship's log.  ")
	g := NewInstructionGenerator(llm, nil)

	inst, ok := g.Generate(context.Background(), InstructionRequest{Snippet: "text"})
	require.True(t, ok)
	assert.Equal(t, "Rewrite as a ship's log.\n\n", inst)

	req := llm.LastRequest()
	assert.Equal(t, instructionSystem, req.System)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, 250, req.MaxTokens)
}

func TestInstructionGenerator_None(t *testing.T) {
	tests := []struct {
		name string
		llm  *MockLLM
	}{
		{"error", NewMockLLMWithError(errors.New("boom"))},
		{"blank", &MockLLM{Responses: []string{"   "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, ok := NewInstructionGenerator(tt.llm, nil).Generate(context.Background(), InstructionRequest{})
			assert.False(t, ok)
			assert.Empty(t, inst)
		})
	}
}

func TestNewLLM(t *testing.T) {
	llm, err := NewLLM(context.Background(), LLMConfig{Provider: "MOCK", Model: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub", llm.Model())

	_, err = NewLLM(context.Background(), LLMConfig{Provider: "claude"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewLLM(context.Background(), LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("GEMINI_API_KEY", "")
	_, err = NewLLM(context.Background(), LLMConfig{Provider: ProviderGemini, Model: "gemini-1.5-pro"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMockLLM_DerivedResponse(t *testing.T) {
	out, err := NewMockLLM("").Generate(context.Background(), Request{Prompt: "intro\n\nlast paragraph"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "last paragraph"))
}

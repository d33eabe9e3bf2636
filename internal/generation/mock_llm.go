package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLLM is a deterministic LLM implementation for testing.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a response is derived from the prompt.
	Response string

	// Responses, if set, are returned in order before falling back to Response.
	Responses []string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// ModelName is reported by Model. Defaults to "mock".
	ModelName string

	mu       sync.Mutex
	requests []Request
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Model returns the mock model name.
func (m *MockLLM) Model() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

// Generate returns the configured response or a deterministic one.
func (m *MockLLM) Generate(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.Error != nil {
		return "", m.Error
	}
	if len(m.Responses) > 0 {
		next := m.Responses[0]
		m.Responses = m.Responses[1:]
		return next, nil
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return generateMockResponse(req.Prompt), nil
}

// LastRequest returns the most recent request passed to Generate.
func (m *MockLLM) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return Request{}
	}
	return m.requests[len(m.requests)-1]
}

// Calls returns the number of Generate calls.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// generateMockResponse echoes the last paragraph of the prompt.
func generateMockResponse(prompt string) string {
	paragraphs := strings.Split(strings.TrimSpace(prompt), "\n\n")
	last := strings.TrimSpace(paragraphs[len(paragraphs)-1])
	return fmt.Sprintf("[mock] %s", last)
}

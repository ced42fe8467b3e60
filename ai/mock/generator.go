package mock

import (
	"context"
	"sync"

	"github.com/poiesic/ragflow/ai"
)

// GenerateCall records the arguments of one Generate invocation.
type GenerateCall struct {
	System  string
	Prompt  string
	Options ai.GenerateOptions
}

// MockGenerator is a test double for ai.Generator.
// By default it answers with a fixed string.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, system, prompt string, opts ai.GenerateOptions) (string, error)

	// Answer is returned when GenerateFunc is nil.
	Answer string

	mu    sync.Mutex
	calls []GenerateCall
}

// NewMockGenerator creates a mock generator that always returns answer.
func NewMockGenerator(answer string) *MockGenerator {
	return &MockGenerator{Answer: answer}
}

// Generate records the call and returns the scripted answer.
func (m *MockGenerator) Generate(ctx context.Context, system, prompt string, opts ai.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GenerateCall{System: system, Prompt: prompt, Options: opts})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, system, prompt, opts)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Answer, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt returns the prompt of the most recent call, or "".
func (m *MockGenerator) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1].Prompt
}

// Reset clears the call history and custom function.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.GenerateFunc = nil
}

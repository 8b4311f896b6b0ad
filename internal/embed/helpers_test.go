package embed

import (
	"context"
	"sync"
	"sync/atomic"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// mockProvider returns deterministic embeddings derived from the input
// text, tracking calls for assertions.
type mockProvider struct {
	dims int

	calls atomic.Int64

	mu         sync.Mutex
	inputs     [][]string
	failInputs map[string]bool // inputs that fail the whole call
	nilInputs  map[string]bool // inputs that embed to nil
	closed     bool
}

var _ Provider = (*mockProvider)(nil)

func newMockProvider(dims int) *mockProvider {
	return &mockProvider{
		dims:       dims,
		failInputs: make(map[string]bool),
		nilInputs:  make(map[string]bool),
	}
}

func (m *mockProvider) Embed(_ context.Context, req EmbedRequest) (*EmbedResponse, error) {
	m.calls.Add(1)

	m.mu.Lock()
	m.inputs = append(m.inputs, append([]string(nil), req.Input...))
	m.mu.Unlock()

	data := make([]EmbedData, len(req.Input))
	for i, text := range req.Input {
		if m.failInputs[text] {
			return nil, scripterrors.GenerationError("mock failure", nil)
		}
		if m.nilInputs[text] {
			data[i] = EmbedData{Index: i}
			continue
		}
		data[i] = EmbedData{Index: i, Embedding: m.vectorFor(text)}
	}

	return &EmbedResponse{
		Model: req.Model,
		Data:  data,
		Usage: Usage{PromptTokens: len(req.Input), TotalTokens: len(req.Input)},
	}, nil
}

// vectorFor derives a stable vector from the text so tests can compare
// results across calls.
func (m *mockProvider) vectorFor(text string) []float32 {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	vec := make([]float32, m.dims)
	for i := range vec {
		vec[i] = sum + float32(i)
	}
	return vec
}

func (m *mockProvider) allInputs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.inputs...)
}

func (m *mockProvider) ModelName() string { return "mock-model" }
func (m *mockProvider) Dimensions() int   { return m.dims }

func (m *mockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

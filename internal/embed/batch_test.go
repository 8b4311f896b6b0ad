package embed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessorOrder(t *testing.T) {
	provider := newMockProvider(4)
	bp := NewBatchProcessor(provider, "", 2, nil)

	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	results, err := bp.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, text := range texts {
		assert.Equal(t, provider.vectorFor(text), results[i], "position %d", i)
	}
	assert.Equal(t, int64(3), provider.calls.Load(), "five texts at batch size two")
}

func TestBatchProcessorBlankTexts(t *testing.T) {
	provider := newMockProvider(4)
	bp := NewBatchProcessor(provider, "", 10, nil)

	results, err := bp.Process(context.Background(), []string{"", "  \t", "real"})
	require.NoError(t, err)

	assert.Nil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotNil(t, results[2])
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestBatchProcessorEmptyInput(t *testing.T) {
	provider := newMockProvider(4)
	bp := NewBatchProcessor(provider, "", 10, nil)

	results, err := bp.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int64(0), provider.calls.Load())
}

func TestBatchProcessorFailureIsolation(t *testing.T) {
	provider := newMockProvider(4)
	provider.failInputs["poison"] = true
	bp := NewBatchProcessor(provider, "", 2, nil)

	// Batches: [a b] [poison c] [d]. The poisoned batch fails alone.
	results, err := bp.Process(context.Background(), []string{"a", "b", "poison", "c", "d"})
	require.NoError(t, err)

	assert.NotNil(t, results[0])
	assert.NotNil(t, results[1])
	assert.Nil(t, results[2])
	assert.Nil(t, results[3])
	assert.NotNil(t, results[4])
}

func TestSplitChunksShortText(t *testing.T) {
	bp := NewBatchProcessor(newMockProvider(4), "", 10, nil)
	cp := NewChunkingBatchProcessor(bp, 100, 10)

	chunks := cp.SplitChunks("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 10, chunks[0].End)
}

func TestSplitChunksOverlap(t *testing.T) {
	bp := NewBatchProcessor(newMockProvider(4), "", 10, nil)
	cp := NewChunkingBatchProcessor(bp, 10, 4)

	text := strings.Repeat("abcdef", 4) // 24 runes
	chunks := cp.SplitChunks(text)
	require.True(t, len(chunks) >= 3)

	// Windows advance by chunkSize-overlap and cover the whole text.
	for i, ch := range chunks {
		assert.Equal(t, i*6, ch.Start)
		assert.Equal(t, ch.Text, text[ch.Start:ch.End])
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, 24, last.End)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, 4, chunks[i-1].End-chunks[i].Start, "consecutive windows share the overlap")
	}
}

func TestChunkingProcess(t *testing.T) {
	provider := newMockProvider(4)
	bp := NewBatchProcessor(provider, "", 10, nil)
	cp := NewChunkingBatchProcessor(bp, 10, 2)

	text := strings.Repeat("x", 25)
	chunks, embeddings, err := cp.Process(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, len(chunks), len(embeddings))
	require.True(t, len(chunks) > 1)

	// Each chunk keeps its own embedding; nothing is pooled.
	for i, ch := range chunks {
		assert.Equal(t, provider.vectorFor(ch.Text), embeddings[i])
	}
}

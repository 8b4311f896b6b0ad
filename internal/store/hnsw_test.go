package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	vec := []float32{0.5, 0.5, 0.0}
	require.NoError(t, s.Store(ctx, EntityScene, "s-1", vec, "m", nil))

	got, err := s.Retrieve(ctx, EntityScene, "s-1", "m")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	exists, err := s.Exists(ctx, EntityScene, "s-1", "m")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, s.Count())
}

func TestHNSWStoreSearchSimilar(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	require.NoError(t, s.Store(ctx, EntityScene, "close", []float32{1, 0, 0}, "m", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "far", []float32{0, 1, 0}, "m", nil))
	// Different entity type must not leak into scene searches
	require.NoError(t, s.Store(ctx, EntityDialogue, "other", []float32{1, 0, 0}, "m", nil))

	matches, err := s.SearchSimilar(ctx, []float32{1, 0, 0}, EntityScene, "m", SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "close", matches[0].EntityID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, float32(0))
		assert.LessOrEqual(t, m.Score, float32(1))
	}
}

func TestHNSWStoreSearchThresholdAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	require.NoError(t, s.Store(ctx, EntityScene, "a", []float32{1, 0}, "m", map[string]string{"project": "pilot"}))
	require.NoError(t, s.Store(ctx, EntityScene, "b", []float32{0.9, 0.1}, "m", map[string]string{"project": "other"}))

	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, EntityScene, "m", SearchOptions{
		Limit:  10,
		Filter: map[string]string{"project": "pilot"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].EntityID)

	matches, err = s.SearchSimilar(ctx, []float32{1, 0}, EntityScene, "m", SearchOptions{
		Limit:     10,
		Threshold: 0.999,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].EntityID)
}

func TestHNSWStoreSearchEmptyShard(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, EntityScene, "m", SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestHNSWStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{1, 0}, "m", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{0, 1}, "m", nil))

	got, err := s.Retrieve(ctx, EntityScene, "s-1", "m")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got)
	assert.Equal(t, 1, s.Count())

	// Searches must not surface the orphaned old node
	matches, err := s.SearchSimilar(ctx, []float32{0, 1}, EntityScene, "m", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "s-1", matches[0].EntityID)
}

func TestHNSWStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{1, 0}, "model-a", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{0, 1}, "model-b", nil))

	removed, err := s.Delete(ctx, EntityScene, "s-1", "model-a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, EntityScene, "s-1", "")
	require.NoError(t, err)
	assert.True(t, removed, "model-b entry should still be removable")

	removed, err = s.Delete(ctx, EntityScene, "s-1", "")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 0, s.Count())
}

func TestHNSWStoreRejectsEmptyVector(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	assert.Error(t, s.Store(ctx, EntityScene, "s-1", nil, "m", nil))
}

func TestHNSWStoreDimensionMismatchStoredNotIndexed(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore()
	defer s.Close()

	require.NoError(t, s.Store(ctx, EntityScene, "a", []float32{1, 0}, "m", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "b", []float32{1, 0, 0}, "m", nil))

	// The mismatched vector is retrievable
	got, err := s.Retrieve(ctx, EntityScene, "b", "m")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// But only the matching one is searchable
	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, EntityScene, "m", SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].EntityID)
}

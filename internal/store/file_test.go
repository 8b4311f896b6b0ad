package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileVectorStore {
	t.Helper()
	s, err := NewFileVectorStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, s.Store(ctx, EntityScene, "scene-1", vec, "test-model", nil))

	got, err := s.Retrieve(ctx, EntityScene, "scene-1", "test-model")
	require.NoError(t, err)
	assert.InDeltaSlice(t, vec, got, 1e-6)

	exists, err := s.Exists(ctx, EntityScene, "scene-1", "test-model")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStorePathLayout(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Store(ctx, EntityDialogue, "d-7", []float32{1}, "org/model", nil))

	// '/' in model names becomes '_' on disk
	_, err := os.Stat(filepath.Join(s.Root(), "org_model", "dialogue", "d-7.emb"))
	assert.NoError(t, err)
}

func TestFileStoreMetadataSidecar(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	meta := map[string]string{"heading": "INT. OFFICE - DAY", "script_order": "3"}
	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{1, 2}, "m", meta))

	got, err := s.RetrieveMetadata(ctx, EntityScene, "s-1", "m")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	// No sidecar when metadata was nil
	require.NoError(t, s.Store(ctx, EntityScene, "s-2", []float32{1, 2}, "m", nil))
	got, err = s.RetrieveMetadata(ctx, EntityScene, "s-2", "m")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreRetrieveMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	got, err := s.Retrieve(ctx, EntityScene, "missing", "m")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreCorruptPayloadDegrades(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{1, 2, 3}, "m", nil))

	// Truncate the payload so the size check fails on decode
	path := filepath.Join(s.Root(), "m", "scene", "s-1.emb")
	require.NoError(t, os.WriteFile(path, []byte{3, 0, 0, 0, 1, 2}, 0o644))

	got, err := s.Retrieve(ctx, EntityScene, "s-1", "m")
	require.NoError(t, err, "corruption at the storage boundary must not raise")
	assert.Nil(t, got)
}

func TestFileStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{1}, "m", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{2, 3}, "m", nil))

	got, err := s.Retrieve(ctx, EntityScene, "s-1", "m")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 3}, got, 1e-6)
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{1}, "model-a", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "s-1", []float32{2}, "model-b", nil))

	t.Run("single model", func(t *testing.T) {
		removed, err := s.Delete(ctx, EntityScene, "s-1", "model-a")
		require.NoError(t, err)
		assert.True(t, removed)

		exists, err := s.Exists(ctx, EntityScene, "s-1", "model-a")
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = s.Exists(ctx, EntityScene, "s-1", "model-b")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("all models", func(t *testing.T) {
		removed, err := s.Delete(ctx, EntityScene, "s-1", "")
		require.NoError(t, err)
		assert.True(t, removed)

		exists, err := s.Exists(ctx, EntityScene, "s-1", "model-b")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("absent entity", func(t *testing.T) {
		removed, err := s.Delete(ctx, EntityScene, "never-existed", "")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestFileStoreMarker(t *testing.T) {
	root := t.TempDir()

	_, err := NewFileVectorStore(root)
	require.NoError(t, err)

	markerPath := filepath.Join(root, markerName)
	data, err := os.ReadFile(markerPath)
	require.NoError(t, err)

	// A second open must not overwrite the existing marker
	require.NoError(t, os.WriteFile(markerPath, []byte("customized"), 0o644))
	_, err = NewFileVectorStore(root)
	require.NoError(t, err)

	after, err := os.ReadFile(markerPath)
	require.NoError(t, err)
	assert.Equal(t, "customized", string(after))
	assert.NotEqual(t, data, after)
}

func TestFileStoreSearchNotSupported(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	_, err := SimilaritySearch(ctx, s, []float32{1, 2}, EntityScene, "m", SearchOptions{Limit: 5})
	assert.ErrorIs(t, err, ErrSearchNotSupported)
}

func TestFileStoreWalk(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Store(ctx, EntityScene, "s1", []float32{1, 2}, "model-a", map[string]string{"heading": "INT. LAB"}))
	require.NoError(t, s.Store(ctx, EntityDialogue, "d1", []float32{3, 4}, "model-a", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "s1", []float32{5, 6}, "org/model-b", nil))

	seen := make(map[string]*EmbeddingRecord)
	err := s.Walk(ctx, func(rec *EmbeddingRecord) error {
		seen[rec.Model+"/"+rec.EntityType+"/"+rec.EntityID] = rec
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)

	sc := seen["model-a/scene/s1"]
	require.NotNil(t, sc)
	assert.Equal(t, []float32{1, 2}, sc.Vector)
	assert.Equal(t, "INT. LAB", sc.Metadata["heading"])

	d := seen["model-a/dialogue/d1"]
	require.NotNil(t, d)
	assert.Nil(t, d.Metadata)

	// Model names come back in directory form.
	assert.Contains(t, seen, "org_model-b/scene/s1")
}

func TestFileStoreWalkSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Store(ctx, EntityScene, "good", []float32{1}, "m", nil))
	require.NoError(t, s.Store(ctx, EntityScene, "bad", []float32{2}, "m", nil))
	badPath := filepath.Join(s.Root(), "m", EntityScene, "bad"+embeddingExt)
	require.NoError(t, os.WriteFile(badPath, []byte{0xFF}, 0o644))

	var ids []string
	err := s.Walk(ctx, func(rec *EmbeddingRecord) error {
		ids = append(ids, rec.EntityID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

const (
	// embeddingExt is the file extension for binary embedding payloads.
	embeddingExt = ".emb"

	// sidecarExt is the file extension for optional metadata sidecars.
	sidecarExt = ".json"

	// markerName is the tracking-attributes marker ensured once in the
	// store root. It is created on first use and never overwritten.
	markerName = ".scriptrag"

	markerContent = "*.emb binary\n*.json text\n"
)

// FileVectorStore is a durable file-backed vector store. Layout:
//
//	root/{model with '/'->'_'}/{entity_type}/{entity_id}.emb
//
// with an optional same-stem .json metadata sidecar. It is blob storage,
// not a similarity index: SearchSimilar is not supported.
type FileVectorStore struct {
	root string
}

// Compile-time check: FileVectorStore deliberately does NOT implement
// SimilaritySearcher, only the base store surface.
var _ VectorStore = (*FileVectorStore)(nil)

// NewFileVectorStore creates a file-backed store rooted at root,
// creating the root and its marker file if needed.
func NewFileVectorStore(root string) (*FileVectorStore, error) {
	if root == "" {
		return nil, scripterrors.ConfigError("vector store root must not be empty", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}

	s := &FileVectorStore{root: root}
	if err := s.ensureMarker(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *FileVectorStore) Root() string {
	return s.root
}

// Store persists the vector and optional metadata sidecar atomically.
func (s *FileVectorStore) Store(ctx context.Context, entityType, entityID string, vector []float32, model string, metadata map[string]string) error {
	path := s.payloadPath(entityType, entityID, model)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}

	if err := renameio.WriteFile(path, EncodeEmbedding(vector), 0o644); err != nil {
		return scripterrors.New(scripterrors.ErrCodeStoreWrite,
			fmt.Sprintf("cannot write embedding %s/%s", entityType, entityID), err)
	}

	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return scripterrors.New(scripterrors.ErrCodeStoreWrite, "cannot serialize metadata sidecar", err)
		}
		sidecar := s.sidecarPath(entityType, entityID, model)
		if err := renameio.WriteFile(sidecar, data, 0o644); err != nil {
			return scripterrors.New(scripterrors.ErrCodeStoreWrite,
				fmt.Sprintf("cannot write metadata sidecar %s/%s", entityType, entityID), err)
		}
	}

	return nil
}

// Retrieve reads a stored vector. Missing, unreadable or corrupted
// payloads all degrade to a nil result: corruption at the storage
// boundary must not take down a search.
func (s *FileVectorStore) Retrieve(ctx context.Context, entityType, entityID, model string) ([]float32, error) {
	path := s.payloadPath(entityType, entityID, model)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("embedding unreadable, treating as absent",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil, nil
	}

	vec, err := DecodeEmbedding(data)
	if err != nil {
		slog.Warn("embedding corrupted, treating as absent",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, nil
	}
	return vec, nil
}

// RetrieveMetadata reads the metadata sidecar, or nil if absent.
func (s *FileVectorStore) RetrieveMetadata(ctx context.Context, entityType, entityID, model string) (map[string]string, error) {
	data, err := os.ReadFile(s.sidecarPath(entityType, entityID, model))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, scripterrors.Wrap(scripterrors.ErrCodeStoreRead, err)
	}

	var metadata map[string]string
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, scripterrors.New(scripterrors.ErrCodeStoreCorrupt, "metadata sidecar corrupted", err)
	}
	return metadata, nil
}

// Delete removes the entity's vector for model, or for all models when
// model is empty. Reports whether anything was removed.
func (s *FileVectorStore) Delete(ctx context.Context, entityType, entityID, model string) (bool, error) {
	if model != "" {
		return s.deleteOne(entityType, entityID, model)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, scripterrors.Wrap(scripterrors.ErrCodeStoreRead, err)
	}

	removed := false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Directory names are already model-safe; pass through untouched
		ok, err := s.deleteOne(entityType, entityID, entry.Name())
		if err != nil {
			return removed, err
		}
		removed = removed || ok
	}
	return removed, nil
}

func (s *FileVectorStore) deleteOne(entityType, entityID, model string) (bool, error) {
	path := s.payloadPath(entityType, entityID, model)

	removed := false
	if err := os.Remove(path); err == nil {
		removed = true
	} else if !os.IsNotExist(err) {
		return false, scripterrors.Wrap(scripterrors.ErrCodeStoreWrite, err)
	}

	// Sidecar removal is best effort; its absence is normal
	_ = os.Remove(s.sidecarPath(entityType, entityID, model))

	return removed, nil
}

// Exists reports whether a vector is stored for the key.
func (s *FileVectorStore) Exists(ctx context.Context, entityType, entityID, model string) (bool, error) {
	_, err := os.Stat(s.payloadPath(entityType, entityID, model))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, scripterrors.Wrap(scripterrors.ErrCodeStoreRead, err)
	}
	return true, nil
}

// Walk visits every stored embedding. Corrupted payloads are skipped
// with a warning, mirroring Retrieve. Model names are reported in
// their filesystem-safe directory form.
func (s *FileVectorStore) Walk(ctx context.Context, fn func(rec *EmbeddingRecord) error) error {
	return filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return scripterrors.Wrap(scripterrors.ErrCodeStoreRead, err)
		}
		if d.IsDir() || !strings.HasSuffix(path, embeddingExt) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return scripterrors.Wrap(scripterrors.ErrCodeStoreRead, err)
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 3 {
			return nil
		}
		model, entityType := parts[0], parts[1]
		entityID := strings.TrimSuffix(parts[2], embeddingExt)

		vec, err := s.Retrieve(ctx, entityType, entityID, model)
		if err != nil || vec == nil {
			return err
		}
		metadata, err := s.RetrieveMetadata(ctx, entityType, entityID, model)
		if err != nil {
			return err
		}

		return fn(&EmbeddingRecord{
			EntityType: entityType,
			EntityID:   entityID,
			Model:      model,
			Vector:     vec,
			Metadata:   metadata,
		})
	})
}

// Close releases resources. The file store holds no open handles.
func (s *FileVectorStore) Close() error {
	return nil
}

// ensureMarker idempotently creates the tracking marker in the root.
// An existing marker is never overwritten.
func (s *FileVectorStore) ensureMarker() error {
	path := filepath.Join(s.root, markerName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := renameio.WriteFile(path, []byte(markerContent), 0o644); err != nil {
		return scripterrors.New(scripterrors.ErrCodeStoreWrite, "cannot create store marker", err)
	}
	return nil
}

func (s *FileVectorStore) payloadPath(entityType, entityID, model string) string {
	return filepath.Join(s.root, modelDir(model), entityType, entityID+embeddingExt)
}

func (s *FileVectorStore) sidecarPath(entityType, entityID, model string) string {
	return filepath.Join(s.root, modelDir(model), entityType, entityID+sidecarExt)
}

// modelDir makes a model name filesystem-safe ("org/model" -> "org_model").
func modelDir(model string) string {
	return strings.ReplaceAll(model, "/", "_")
}

// Package store provides vector storage for screenplay embeddings: a
// strict binary wire codec, a durable file-backed store, an in-memory
// HNSW similarity index, and a hybrid composition of the two. It also
// holds the SQLite metadata store for screenplay entities.
package store

import (
	"context"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// Entity types tracked by the vector stores. Free-form strings are
// accepted; these are the ones the indexing subsystems produce.
const (
	EntityScene      = "scene"
	EntityDialogue   = "dialogue"
	EntityAction     = "action"
	EntityCharacter  = "character"
	EntityLocation   = "location"
	EntityBibleChunk = "bible_chunk"
)

// EmbeddingRecord is a stored embedding, uniquely keyed by
// (EntityType, EntityID, Model). A later Store overwrites.
type EmbeddingRecord struct {
	EntityType string
	EntityID   string
	Model      string
	Vector     []float32
	Metadata   map[string]string
}

// SimilarityMatch is a single similarity-search hit.
type SimilarityMatch struct {
	EntityID string
	Score    float32 // Normalized similarity (0-1), higher is closer
	Metadata map[string]string
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// Limit is the maximum number of matches to return.
	Limit int

	// Threshold drops matches scoring below it. Zero means no threshold.
	Threshold float32

	// Filter requires all given metadata key/values to match.
	Filter map[string]string
}

// VectorStore persists embeddings keyed by (entity type, entity id, model).
type VectorStore interface {
	// Store persists a vector, overwriting any previous value for the key.
	Store(ctx context.Context, entityType, entityID string, vector []float32, model string, metadata map[string]string) error

	// Retrieve returns the stored vector, or nil if the key is absent.
	// Corruption at the storage boundary degrades to a nil result.
	Retrieve(ctx context.Context, entityType, entityID, model string) ([]float32, error)

	// Delete removes the vector for the key. An empty model removes the
	// entity's vectors for all models. Reports whether anything was removed.
	Delete(ctx context.Context, entityType, entityID, model string) (bool, error)

	// Exists reports whether a vector is stored for the key.
	Exists(ctx context.Context, entityType, entityID, model string) (bool, error)

	// Close releases resources.
	Close() error
}

// SimilaritySearcher is the optional similarity-search capability.
// Stores that are durable blob storage rather than indexes do not
// implement it; callers check support statically via type assertion
// or through SimilaritySearch.
type SimilaritySearcher interface {
	// SearchSimilar returns matches of entityType/model ranked by
	// similarity to the query vector.
	SearchSimilar(ctx context.Context, query []float32, entityType, model string, opts SearchOptions) ([]*SimilarityMatch, error)
}

// ErrSearchNotSupported is returned when a store lacks similarity search.
var ErrSearchNotSupported = scripterrors.New(scripterrors.ErrCodeSearchNotSupported,
	"vector store does not support similarity search", nil)

// SimilaritySearch runs a similarity search against s if it declares the
// capability, and fails with ErrSearchNotSupported otherwise.
func SimilaritySearch(ctx context.Context, s VectorStore, query []float32, entityType, model string, opts SearchOptions) ([]*SimilarityMatch, error) {
	searcher, ok := s.(SimilaritySearcher)
	if !ok {
		return nil, ErrSearchNotSupported
	}
	return searcher.SearchSimilar(ctx, query, entityType, model, opts)
}

// recordKey builds the composite key used by in-memory stores.
// The NUL separator cannot appear in SQLite-sourced IDs or model names.
func recordKey(entityType, entityID, model string) string {
	return model + "\x00" + entityType + "\x00" + entityID
}

package search

import (
	"context"
	"log/slog"

	"github.com/trieloff/scriptrag/internal/embed"
	scripterrors "github.com/trieloff/scriptrag/internal/errors"
	"github.com/trieloff/scriptrag/internal/store"
)

// SemanticSearcher finds results by embedding similarity. The engine
// treats it as optional: a nil searcher disables semantic search, and
// errors degrade to SQL-only results.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
}

// defaultSemanticTypes are the entity types semantic search spans.
var defaultSemanticTypes = []string{
	store.EntityScene,
	store.EntityDialogue,
	store.EntityAction,
	store.EntityBibleChunk,
}

// SemanticAdapter bridges the embedding pipeline and the vector store
// into the engine's SemanticSearcher shape.
type SemanticAdapter struct {
	pipeline    *embed.Pipeline
	vectors     store.VectorStore
	entityTypes []string
	threshold   float32
	logger      *slog.Logger
}

var _ SemanticSearcher = (*SemanticAdapter)(nil)

// NewSemanticAdapter creates an adapter searching the given entity
// types. Nil entityTypes searches the default set.
func NewSemanticAdapter(pipeline *embed.Pipeline, vectors store.VectorStore, entityTypes []string, threshold float32, logger *slog.Logger) *SemanticAdapter {
	if entityTypes == nil {
		entityTypes = defaultSemanticTypes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticAdapter{
		pipeline:    pipeline,
		vectors:     vectors,
		entityTypes: entityTypes,
		threshold:   threshold,
		logger:      logger,
	}
}

// Search embeds the query and returns similarity matches across the
// configured entity types. Individual entity types that fail are
// skipped; the error surfaces only when every type fails or the query
// cannot be embedded.
func (a *SemanticAdapter) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	vec, err := a.pipeline.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, scripterrors.AdapterError("cannot embed query", err)
	}

	model := a.pipeline.Model()
	opts := store.SearchOptions{Limit: limit, Threshold: a.threshold}

	var results []*Result
	var lastErr error
	failures := 0

	for _, entityType := range a.entityTypes {
		matches, err := store.SimilaritySearch(ctx, a.vectors, vec, entityType, model, opts)
		if err != nil {
			failures++
			lastErr = err
			a.logger.Warn("semantic search failed for entity type",
				slog.String("entity_type", entityType),
				slog.String("error", err.Error()))
			continue
		}
		for _, m := range matches {
			results = append(results, matchToResult(entityType, m))
		}
	}

	if failures == len(a.entityTypes) && lastErr != nil {
		return nil, scripterrors.AdapterError("semantic search unavailable", lastErr)
	}
	return results, nil
}

// matchToResult converts a similarity match. Content travels in the
// stored metadata; stores that omit it yield results with metadata
// context only.
func matchToResult(entityType string, m *store.SimilarityMatch) *Result {
	metadata := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		metadata[k] = v
	}
	metadata["match_type"] = "semantic"

	return &Result{
		Type:     entityType,
		ID:       m.EntityID,
		Content:  m.Metadata["content"],
		Score:    float64(m.Score),
		Metadata: metadata,
	}
}

package store

import (
	"context"
	"errors"
	"log/slog"
)

// HybridVectorStore composes a required fast primary with an optional
// durable secondary. The primary optimizes latency, the secondary
// durability; cache misses self-heal by lazily repopulating the primary.
type HybridVectorStore struct {
	primary   VectorStore
	secondary VectorStore // may be nil
}

var _ VectorStore = (*HybridVectorStore)(nil)
var _ SimilaritySearcher = (*HybridVectorStore)(nil)

// NewHybridVectorStore creates a hybrid store. The primary is required;
// secondary may be nil for a passthrough configuration.
func NewHybridVectorStore(primary, secondary VectorStore) (*HybridVectorStore, error) {
	if primary == nil {
		return nil, errors.New("hybrid store: primary is required")
	}
	return &HybridVectorStore{primary: primary, secondary: secondary}, nil
}

// Store writes to the primary, propagating its failure, then writes the
// secondary best-effort.
func (h *HybridVectorStore) Store(ctx context.Context, entityType, entityID string, vector []float32, model string, metadata map[string]string) error {
	if err := h.primary.Store(ctx, entityType, entityID, vector, model, metadata); err != nil {
		return err
	}

	if h.secondary != nil {
		bestEffortStore(ctx, h.secondary, "secondary", entityType, entityID, vector, model, metadata)
	}
	return nil
}

// Retrieve reads the primary first. On a miss it falls back to the
// secondary and, on a hit there, opportunistically writes the value back
// through to the primary.
func (h *HybridVectorStore) Retrieve(ctx context.Context, entityType, entityID, model string) ([]float32, error) {
	vec, err := h.primary.Retrieve(ctx, entityType, entityID, model)
	if err != nil {
		return nil, err
	}
	if vec != nil {
		return vec, nil
	}

	if h.secondary == nil {
		return nil, nil
	}

	vec, err = h.secondary.Retrieve(ctx, entityType, entityID, model)
	if err != nil || vec == nil {
		return nil, err
	}

	bestEffortStore(ctx, h.primary, "primary write-through", entityType, entityID, vec, model, nil)
	return vec, nil
}

// Delete attempts both stores; the result is true if either removed
// something. Secondary failures are swallowed.
func (h *HybridVectorStore) Delete(ctx context.Context, entityType, entityID, model string) (bool, error) {
	removed, err := h.primary.Delete(ctx, entityType, entityID, model)
	if err != nil {
		return removed, err
	}

	if h.secondary != nil {
		secondaryRemoved, err := h.secondary.Delete(ctx, entityType, entityID, model)
		if err != nil {
			slog.Warn("secondary delete failed",
				slog.String("entity_type", entityType),
				slog.String("entity_id", entityID),
				slog.String("error", err.Error()))
		} else {
			removed = removed || secondaryRemoved
		}
	}

	return removed, nil
}

// Exists checks the primary first, falling back to the secondary only
// when the primary says false.
func (h *HybridVectorStore) Exists(ctx context.Context, entityType, entityID, model string) (bool, error) {
	ok, err := h.primary.Exists(ctx, entityType, entityID, model)
	if err != nil {
		return false, err
	}
	if ok || h.secondary == nil {
		return ok, nil
	}
	return h.secondary.Exists(ctx, entityType, entityID, model)
}

// SearchSimilar delegates to the primary only: the secondary is assumed
// to be non-indexable cold storage.
func (h *HybridVectorStore) SearchSimilar(ctx context.Context, query []float32, entityType, model string, opts SearchOptions) ([]*SimilarityMatch, error) {
	return SimilaritySearch(ctx, h.primary, query, entityType, model, opts)
}

// Close closes both stores.
func (h *HybridVectorStore) Close() error {
	var errs []error
	if err := h.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if h.secondary != nil {
		if err := h.secondary.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bestEffortStore writes to a store, logging and discarding any failure.
// Kept as a single helper so the swallow-on-failure contract is explicit
// and testable instead of scattered at call sites.
func bestEffortStore(ctx context.Context, s VectorStore, role, entityType, entityID string, vector []float32, model string, metadata map[string]string) {
	if err := s.Store(ctx, entityType, entityID, vector, model, metadata); err != nil {
		slog.Warn("best-effort store failed",
			slog.String("role", role),
			slog.String("entity_type", entityType),
			slog.String("entity_id", entityID),
			slog.String("model", model),
			slog.String("error", err.Error()))
	}
}

package store

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/coder/hnsw"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// HNSWStore is an in-memory similarity-searchable vector store backed by
// coder/hnsw. It serves as the fast primary of a hybrid store; durability
// comes from the secondary.
type HNSWStore struct {
	mu     sync.RWMutex
	shards map[string]*hnswShard       // (model, entityType) -> graph
	recs   map[string]*EmbeddingRecord // recordKey -> record
	closed bool
}

// hnswShard holds one HNSW graph per (model, entityType) pair so that
// searches never cross entity types or models.
type hnswShard struct {
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

var (
	_ VectorStore        = (*HNSWStore)(nil)
	_ SimilaritySearcher = (*HNSWStore)(nil)
)

// NewHNSWStore creates an empty in-memory HNSW store.
func NewHNSWStore() *HNSWStore {
	return &HNSWStore{
		shards: make(map[string]*hnswShard),
		recs:   make(map[string]*EmbeddingRecord),
	}
}

func newHNSWShard(dims int) *hnswShard {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &hnswShard{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Store inserts or replaces a vector. Replacement uses lazy deletion:
// the old graph node is orphaned rather than removed, which sidesteps
// coder/hnsw instability when deleting the last node.
func (s *HNSWStore) Store(ctx context.Context, entityType, entityID string, vector []float32, model string, metadata map[string]string) error {
	if len(vector) == 0 {
		return scripterrors.New(scripterrors.ErrCodeInvalidQuery, "cannot store empty vector", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return scripterrors.New(scripterrors.ErrCodeInternal, "store is closed", nil)
	}

	shardKey := model + "\x00" + entityType
	shard, ok := s.shards[shardKey]
	if !ok {
		shard = newHNSWShard(len(vector))
		s.shards[shardKey] = shard
	}

	s.recs[recordKey(entityType, entityID, model)] = &EmbeddingRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Model:      model,
		Vector:     vector,
		Metadata:   metadata,
	}

	// Dimension mismatches are soft: the record is retrievable but not
	// indexed, mirroring the pipeline's warn-only validation.
	if len(vector) != shard.dims {
		slog.Warn("vector dimension differs from shard, stored but not indexed",
			slog.String("entity_type", entityType),
			slog.String("entity_id", entityID),
			slog.Int("expected", shard.dims),
			slog.Int("got", len(vector)))
		return nil
	}

	if oldKey, exists := shard.idMap[entityID]; exists {
		delete(shard.keyMap, oldKey)
		delete(shard.idMap, entityID)
	}

	key := shard.nextKey
	shard.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	shard.graph.Add(hnsw.MakeNode(key, vec))
	shard.idMap[entityID] = key
	shard.keyMap[key] = entityID

	return nil
}

// Retrieve returns the stored vector, or nil on miss.
func (s *HNSWStore) Retrieve(ctx context.Context, entityType, entityID, model string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[recordKey(entityType, entityID, model)]
	if !ok {
		return nil, nil
	}
	return rec.Vector, nil
}

// SearchSimilar finds nearest neighbors within (entityType, model).
func (s *HNSWStore) SearchSimilar(ctx context.Context, query []float32, entityType, model string, opts SearchOptions) ([]*SimilarityMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, scripterrors.New(scripterrors.ErrCodeInternal, "store is closed", nil)
	}

	shard, ok := s.shards[model+"\x00"+entityType]
	if !ok || shard.graph.Len() == 0 {
		return []*SimilarityMatch{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Overfetch to compensate for lazily deleted orphans and filters
	nodes := shard.graph.Search(normalized, limit*2)

	matches := make([]*SimilarityMatch, 0, limit)
	for _, node := range nodes {
		entityID, live := shard.keyMap[node.Key]
		if !live {
			continue // orphaned by lazy deletion
		}

		score := distanceToScore(shard.graph.Distance(normalized, node.Value))
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}

		rec := s.recs[recordKey(entityType, entityID, model)]
		if rec == nil || !matchesFilter(rec.Metadata, opts.Filter) {
			continue
		}

		matches = append(matches, &SimilarityMatch{
			EntityID: entityID,
			Score:    score,
			Metadata: rec.Metadata,
		})
		if len(matches) >= limit {
			break
		}
	}

	return matches, nil
}

// Delete removes the vector for the key; an empty model removes the
// entity's vectors for all models.
func (s *HNSWStore) Delete(ctx context.Context, entityType, entityID, model string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, scripterrors.New(scripterrors.ErrCodeInternal, "store is closed", nil)
	}

	if model != "" {
		return s.deleteLocked(entityType, entityID, model), nil
	}

	var models []string
	for _, rec := range s.recs {
		if rec.EntityType == entityType && rec.EntityID == entityID {
			models = append(models, rec.Model)
		}
	}

	removed := false
	for _, m := range models {
		if s.deleteLocked(entityType, entityID, m) {
			removed = true
		}
	}
	return removed, nil
}

func (s *HNSWStore) deleteLocked(entityType, entityID, model string) bool {
	rk := recordKey(entityType, entityID, model)
	if _, ok := s.recs[rk]; !ok {
		return false
	}
	delete(s.recs, rk)

	if shard, ok := s.shards[model+"\x00"+entityType]; ok {
		if key, exists := shard.idMap[entityID]; exists {
			// Lazy deletion: orphan the graph node
			delete(shard.keyMap, key)
			delete(shard.idMap, entityID)
		}
	}
	return true
}

// Exists reports whether a vector is stored for the key.
func (s *HNSWStore) Exists(ctx context.Context, entityType, entityID, model string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.recs[recordKey(entityType, entityID, model)]
	return ok, nil
}

// Count returns the number of live records.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// Close releases the in-memory graphs.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.shards = nil
	s.recs = nil
	return nil
}

// matchesFilter reports whether metadata satisfies every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, want := range filter {
		if metadata[k] != want {
			return false
		}
	}
	return true
}

// normalizeVectorInPlace normalizes a vector to unit length for cosine
// distance. Zero vectors are left untouched.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return
	}
	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
}

// distanceToScore converts cosine distance (0-2) to a 0-1 similarity.
func distanceToScore(distance float32) float32 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

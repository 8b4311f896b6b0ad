package embed

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
	"github.com/trieloff/scriptrag/internal/preprocess"
	"github.com/trieloff/scriptrag/internal/store"
)

// PipelineConfig configures an embedding pipeline.
type PipelineConfig struct {
	// Model overrides the provider default when set.
	Model string

	// ExpectedDimensions enables a soft width check on generated
	// embeddings. Mismatches are logged, not rejected.
	ExpectedDimensions int

	// BatchSize is the provider sub-batch size.
	BatchSize int
}

// Pipeline generates embeddings end to end: preprocess, consult the
// cache, call the provider, and populate the cache with new results.
type Pipeline struct {
	provider Provider
	cache    EmbeddingCache // nil when caching is disabled
	batch    *BatchProcessor
	model    string
	dims     int
	logger   *slog.Logger

	mu  sync.RWMutex
	pre preprocess.Preprocessor
}

// NewPipeline creates a pipeline. cache may be nil to disable caching.
func NewPipeline(provider Provider, cache EmbeddingCache, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	model := cfg.Model
	if model == "" {
		model = provider.ModelName()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider: provider,
		cache:    cache,
		batch:    NewBatchProcessor(provider, model, cfg.BatchSize, logger),
		model:    model,
		dims:     cfg.ExpectedDimensions,
		logger:   logger,
		pre:      preprocess.NewStandardPreprocessor(preprocess.Options{}),
	}
}

// Model returns the model identifier the pipeline embeds with.
func (p *Pipeline) Model() string {
	return p.model
}

func (p *Pipeline) preprocessor() preprocess.Preprocessor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pre
}

// setPreprocessor swaps the active preprocessor and returns the
// previous one so callers can restore it.
func (p *Pipeline) setPreprocessor(pre preprocess.Preprocessor) preprocess.Preprocessor {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.pre
	p.pre = pre
	return prev
}

// GenerateEmbedding embeds a single text.
func (p *Pipeline) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	processed := p.preprocessor().Process(text)
	if strings.TrimSpace(processed) == "" {
		return nil, scripterrors.GenerationError("text is empty after preprocessing", nil)
	}

	if p.cache != nil {
		if vec, ok := p.cache.Get(processed, p.model); ok {
			return vec, nil
		}
	}

	results, err := p.batch.Process(ctx, []string{processed})
	if err != nil {
		return nil, scripterrors.GenerationError("embedding generation failed", err)
	}
	if len(results) == 0 || results[0] == nil {
		return nil, scripterrors.GenerationError("unknown error", nil).
			WithDetail("model", p.model)
	}
	vec := results[0]

	p.checkDimensions(vec)

	if p.cache != nil {
		p.cache.Put(processed, p.model, vec)
	}
	return vec, nil
}

// GenerateBatch embeds texts and returns one embedding per input, in
// input order. Texts whose generation failed come back nil. Duplicate
// texts are embedded once.
func (p *Pipeline) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	pre := p.preprocessor()
	processed := make([]string, len(texts))
	for i, text := range texts {
		processed[i] = pre.Process(text)
	}

	// Collect cache misses, deduplicated, in first-appearance order.
	var misses []string
	missIdx := make(map[string]int)
	for i, text := range processed {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if p.cache != nil {
			if vec, ok := p.cache.Get(text, p.model); ok {
				results[i] = vec
				continue
			}
		}
		if _, seen := missIdx[text]; !seen {
			missIdx[text] = len(misses)
			misses = append(misses, text)
		}
	}

	if len(misses) == 0 {
		return results, nil
	}

	generated, err := p.batch.Process(ctx, misses)
	if err != nil {
		return nil, scripterrors.GenerationError("batch embedding failed", err)
	}

	for i, text := range processed {
		if results[i] != nil {
			continue
		}
		idx, ok := missIdx[text]
		if !ok {
			continue
		}
		vec := generated[idx]
		if vec == nil {
			continue
		}
		results[i] = vec
	}

	for text, idx := range missIdx {
		vec := generated[idx]
		if vec == nil {
			continue
		}
		p.checkDimensions(vec)
		if p.cache != nil {
			p.cache.Put(text, p.model, vec)
		}
	}

	return results, nil
}

// GenerateForScenes embeds scenes with screenplay-aware preprocessing,
// keyed by scene ID. Scene text is the heading followed by the content
// so location and time of day inform the embedding.
func (p *Pipeline) GenerateForScenes(ctx context.Context, scenes []*store.Scene) (map[string][]float32, error) {
	prev := p.setPreprocessor(preprocess.NewScreenplayPreprocessor())
	defer p.setPreprocessor(prev)

	texts := make([]string, len(scenes))
	for i, sc := range scenes {
		texts[i] = sc.Heading + "\n\n" + sc.Content
	}

	vectors, err := p.GenerateBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]float32, len(scenes))
	for i, sc := range scenes {
		if vectors[i] != nil {
			out[sc.ID] = vectors[i]
		}
	}
	return out, nil
}

// ClearCache empties the cache and returns how many entries it held.
// Returns 0 when caching is disabled.
func (p *Pipeline) ClearCache() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Clear()
}

// CacheStats returns cache occupancy, or a zero snapshot when caching
// is disabled.
func (p *Pipeline) CacheStats() CacheStats {
	if p.cache == nil {
		return CacheStats{}
	}
	return p.cache.Stats()
}

// checkDimensions warns on width mismatches without rejecting them.
// Providers occasionally change widths between model revisions.
func (p *Pipeline) checkDimensions(vec []float32) {
	if p.dims > 0 && len(vec) != p.dims {
		p.logger.Warn("embedding dimension mismatch",
			slog.String("model", p.model),
			slog.Int("expected", p.dims),
			slog.Int("got", len(vec)))
	}
}

package cmd

import (
	"context"
	"log/slog"

	"github.com/trieloff/scriptrag/internal/config"
	"github.com/trieloff/scriptrag/internal/embed"
	"github.com/trieloff/scriptrag/internal/store"
)

// components is the wired object graph shared by the subcommands.
type components struct {
	cfg      *config.Config
	meta     *store.MetadataStore
	files    *store.FileVectorStore
	index    *store.HNSWStore
	vectors  store.VectorStore
	provider embed.Provider
	pipeline *embed.Pipeline
}

// openComponents loads config and wires stores and the embedding
// pipeline. The in-memory similarity index is hydrated from the
// durable file store so searches see previously indexed scripts.
func openComponents(ctx context.Context) (*components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	meta, err := store.NewMetadataStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	files, err := store.NewFileVectorStore(cfg.Storage.VectorPath)
	if err != nil {
		_ = meta.Close()
		return nil, err
	}

	index := store.NewHNSWStore()
	if err := files.Walk(ctx, func(rec *store.EmbeddingRecord) error {
		return index.Store(ctx, rec.EntityType, rec.EntityID, rec.Vector, rec.Model, rec.Metadata)
	}); err != nil {
		slog.Warn("partial similarity index hydration", slog.String("error", err.Error()))
	}

	// Searches hit the in-memory index; the file store is the durable
	// fallback that self-heals the index on retrieve misses.
	vectors, err := store.NewHybridVectorStore(index, files)
	if err != nil {
		_ = meta.Close()
		return nil, err
	}

	provider := embed.NewHTTPProvider(embed.ClientConfig{
		Endpoint:   cfg.Embeddings.Endpoint,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    cfg.Embeddings.Timeout,
	})

	cache, err := embed.NewCache(cfg.Embeddings.CacheStrategy, cfg.Embeddings.CacheMaxSize, cfg.Embeddings.CacheTTL)
	if err != nil {
		_ = meta.Close()
		_ = provider.Close()
		return nil, err
	}

	pipeline := embed.NewPipeline(provider, cache, embed.PipelineConfig{
		Model:              cfg.Embeddings.Model,
		ExpectedDimensions: cfg.ExpectedDimensions(cfg.Embeddings.Model),
		BatchSize:          cfg.Embeddings.BatchSize,
	}, slog.Default())

	return &components{
		cfg:      cfg,
		meta:     meta,
		files:    files,
		index:    index,
		vectors:  vectors,
		provider: provider,
		pipeline: pipeline,
	}, nil
}

func (c *components) Close() {
	_ = c.vectors.Close()
	_ = c.provider.Close()
	_ = c.meta.Close()
}

package embed

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentBatches bounds parallel provider calls so a large
// indexing run does not flood the endpoint.
const maxConcurrentBatches = 4

// BatchProcessor embeds texts in fixed-size sub-batches. Sub-batches
// run concurrently; a failed sub-batch yields nil results for its
// positions instead of failing the whole run.
type BatchProcessor struct {
	provider  Provider
	model     string
	batchSize int
	logger    *slog.Logger
}

// NewBatchProcessor creates a processor for the given provider. An
// empty model falls back to the provider default; batchSize <= 0 falls
// back to DefaultBatchSize.
func NewBatchProcessor(provider Provider, model string, batchSize int, logger *slog.Logger) *BatchProcessor {
	if model == "" {
		model = provider.ModelName()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		provider:  provider,
		model:     model,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Process returns one embedding per input text, in input order.
// Blank texts and texts in failed sub-batches come back nil.
func (b *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var pending []indexedText
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			pending = append(pending, indexedText{i, text})
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(pending); start += b.batchSize {
		end := min(start+b.batchSize, len(pending))
		batch := pending[start:end]

		g.Go(func() error {
			input := make([]string, len(batch))
			for i, it := range batch {
				input[i] = it.text
			}

			resp, err := b.provider.Embed(ctx, EmbedRequest{Model: b.model, Input: input})
			if err != nil {
				// Isolate the failure to this sub-batch.
				b.logger.Warn("sub-batch embedding failed",
					slog.Int("batch_size", len(batch)),
					slog.String("model", b.model),
					slog.String("error", err.Error()))
				return ctx.Err()
			}

			for i, d := range resp.Data {
				results[batch[i].idx] = d.Embedding
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Chunk is one overlapping window of a longer text. Start and End are
// rune offsets into the source.
type Chunk struct {
	Text  string
	Start int
	End   int
}

// ChunkingBatchProcessor splits long texts into overlapping windows
// and embeds every window. Chunk embeddings are returned as-is; no
// pooling or averaging is applied.
type ChunkingBatchProcessor struct {
	batch     *BatchProcessor
	chunkSize int
	overlap   int
}

// NewChunkingBatchProcessor creates a chunking processor. chunkSize is
// the window width in runes; overlap is how many runes consecutive
// windows share.
func NewChunkingBatchProcessor(batch *BatchProcessor, chunkSize, overlap int) *ChunkingBatchProcessor {
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &ChunkingBatchProcessor{batch: batch, chunkSize: chunkSize, overlap: overlap}
}

// SplitChunks returns the overlapping windows for text. Short texts
// yield a single chunk covering the whole input.
func (c *ChunkingBatchProcessor) SplitChunks(text string) []Chunk {
	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []Chunk{{Text: text, Start: 0, End: len(runes)}}
	}

	stride := c.chunkSize - c.overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += stride {
		end := min(start+c.chunkSize, len(runes))
		chunks = append(chunks, Chunk{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Process embeds every chunk of text and returns one embedding per
// chunk, in chunk order.
func (c *ChunkingBatchProcessor) Process(ctx context.Context, text string) ([]Chunk, [][]float32, error) {
	chunks := c.SplitChunks(text)
	input := make([]string, len(chunks))
	for i, ch := range chunks {
		input[i] = ch.Text
	}

	embeddings, err := c.batch.Process(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return chunks, embeddings, nil
}

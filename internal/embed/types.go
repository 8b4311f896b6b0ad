// Package embed generates screenplay embeddings: an HTTP provider
// client, an in-process response cache, batch processors, and the
// pipeline that ties them to preprocessing and vector storage.
package embed

import (
	"context"
	"time"
)

// Defaults applied when a ClientConfig field is unset.
const (
	DefaultEndpoint   = "http://localhost:11434/v1/embeddings"
	DefaultModel      = "text-embedding-3-small"
	DefaultBatchSize  = 32
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultPoolSize   = 4
)

// EmbedRequest is a single provider call. Input holds one or more
// texts; Dimensions is optional and forwarded only when positive.
type EmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// EmbedData is one embedding in a provider response. Index preserves
// the position of the corresponding input.
type EmbedData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// Usage reports provider token accounting.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbedResponse is the provider's reply to an EmbedRequest.
type EmbedResponse struct {
	Model string      `json:"model"`
	Data  []EmbedData `json:"data"`
	Usage Usage       `json:"usage"`
}

// Provider generates embeddings for batches of text.
type Provider interface {
	// Embed generates one embedding per input, in input order.
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error)

	// ModelName returns the model identifier requests default to.
	ModelName() string

	// Dimensions returns the expected embedding width, or 0 if unknown.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}

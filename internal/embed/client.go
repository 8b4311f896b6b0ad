package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// ClientConfig configures the HTTP embeddings provider.
type ClientConfig struct {
	Endpoint   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
	PoolSize   int
	APIKey     string
}

// HTTPProvider generates embeddings through an OpenAI-compatible
// embeddings endpoint.
type HTTPProvider struct {
	client    *http.Client
	transport *http.Transport
	config    ClientConfig

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider for the configured endpoint.
func NewHTTPProvider(cfg ClientConfig) *HTTPProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	// Short idle timeout so CLI runs release connections promptly.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No http.Client.Timeout: per-request context timeouts in
	// doEmbedWithRetry would be overridden by a static client timeout.
	return &HTTPProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

// Embed generates one embedding per request input, in input order.
func (p *HTTPProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, scripterrors.New(scripterrors.ErrCodeProviderUnavailable, "provider is closed", nil)
	}
	p.mu.RUnlock()

	if req.Model == "" {
		req.Model = p.config.Model
	}
	if len(req.Input) == 0 {
		return &EmbedResponse{Model: req.Model, Data: []EmbedData{}}, nil
	}
	for _, text := range req.Input {
		if strings.TrimSpace(text) == "" {
			return nil, scripterrors.New(scripterrors.ErrCodeGenerationFailed, "empty input text", nil)
		}
	}

	return p.doEmbedWithRetry(ctx, req)
}

// doEmbedWithRetry retries transient failures with exponential backoff.
func (p *HTTPProvider) doEmbedWithRetry(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	var lastErr error

	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, scripterrors.Wrap(scripterrors.ErrCodeProviderTimeout, ctx.Err())
		default:
		}

		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, scripterrors.Wrap(scripterrors.ErrCodeProviderTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		resp, err := p.doEmbed(timeoutCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		slog.Debug("embedding_attempt_failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", p.config.MaxRetries),
			slog.Int("input_count", len(req.Input)),
			slog.String("error", err.Error()))

		if !scripterrors.IsRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, scripterrors.Wrap(scripterrors.ErrCodeProviderTimeout, ctx.Err())
		}
	}

	return nil, scripterrors.GenerationError("embedding failed after retries", lastErr).
		WithDetail("attempts", strconv.Itoa(p.config.MaxRetries))
}

func (p *HTTPProvider) doEmbed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, scripterrors.New(scripterrors.ErrCodeGenerationFailed, "cannot marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, scripterrors.Wrap(scripterrors.ErrCodeGenerationFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, scripterrors.New(scripterrors.ErrCodeProviderUnavailable, "embeddings endpoint unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		code := scripterrors.ErrCodeGenerationFailed
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = scripterrors.ErrCodeProviderUnavailable
		}
		return nil, scripterrors.New(code, "embedding request failed", nil).
			WithDetail("status", resp.Status).
			WithDetail("body", string(respBody))
	}

	var result EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, scripterrors.New(scripterrors.ErrCodeGenerationFailed, "cannot decode response", err)
	}

	if len(result.Data) != len(req.Input) {
		return nil, scripterrors.GenerationError("response length mismatch", nil).
			WithDetail("expected", strconv.Itoa(len(req.Input))).
			WithDetail("got", strconv.Itoa(len(result.Data)))
	}

	// Providers may return data out of order; index is authoritative.
	ordered := make([]EmbedData, len(result.Data))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(ordered) {
			return nil, scripterrors.GenerationError("response index out of range", nil)
		}
		ordered[d.Index] = d
	}
	result.Data = ordered

	return &result, nil
}

// ModelName returns the default model for requests.
func (p *HTTPProvider) ModelName() string {
	return p.config.Model
}

// Dimensions returns the configured embedding width, or 0 if unknown.
func (p *HTTPProvider) Dimensions() int {
	return p.config.Dimensions
}

// Close releases idle connections. Further calls to Embed fail.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}

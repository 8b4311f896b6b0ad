// Package config loads and validates ScriptRAG configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// Config represents the complete ScriptRAG configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
}

// SearchConfig configures the hybrid search engine.
// Values are overridable via env vars (SCRIPTRAG_VECTOR_THRESHOLD etc.),
// which take priority over file values.
type SearchConfig struct {
	// VectorThreshold is the minimum query word count that triggers
	// semantic search in AUTO mode.
	VectorThreshold int `yaml:"vector_threshold" json:"vector_threshold"`

	// VectorResultLimitFactor scales the requested limit when asking the
	// semantic adapter for candidates.
	VectorResultLimitFactor float64 `yaml:"vector_result_limit_factor" json:"vector_result_limit_factor"`

	// VectorMinResults floors the adaptive semantic limit.
	VectorMinResults int `yaml:"vector_min_results" json:"vector_min_results"`

	// DefaultLimit is the page size used when a query does not set one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps the page size.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// EmbeddingsConfig configures the embedding pipeline and provider.
type EmbeddingsConfig struct {
	Model      string        `yaml:"model" json:"model"`
	Endpoint   string        `yaml:"endpoint" json:"endpoint"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`

	// ModelDimensions maps model names to their expected vector dimension.
	// Used for soft validation only: mismatches log a warning.
	ModelDimensions map[string]int `yaml:"model_dimensions" json:"model_dimensions"`

	// CacheStrategy selects cache invalidation: "lru" or "ttl".
	CacheStrategy string        `yaml:"cache_strategy" json:"cache_strategy"`
	CacheMaxSize  int           `yaml:"cache_max_size" json:"cache_max_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// ChunkSize and ChunkOverlap control the chunking batch processor.
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// StorageConfig configures persistence paths.
type StorageConfig struct {
	// DatabasePath is the SQLite database holding screenplay entities.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// VectorPath is the root directory of the file-backed vector store.
	VectorPath string `yaml:"vector_path" json:"vector_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			VectorThreshold:         10,
			VectorResultLimitFactor: 2.0,
			VectorMinResults:        5,
			DefaultLimit:            10,
			MaxLimit:                100,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "text-embedding-3-small",
			Endpoint:   "http://localhost:11434/v1/embeddings",
			Timeout:    60 * time.Second,
			BatchSize:  32,
			Dimensions: 1536,
			ModelDimensions: map[string]int{
				"text-embedding-3-small": 1536,
				"text-embedding-3-large": 3072,
				"nomic-embed-text":       768,
			},
			CacheStrategy: "lru",
			CacheMaxSize:  1000,
			CacheTTL:      time.Hour,
			ChunkSize:     2000,
			ChunkOverlap:  200,
		},
		Storage: StorageConfig{
			DatabasePath: defaultDataPath("scriptrag.db"),
			VectorPath:   defaultDataPath("embeddings"),
		},
	}
}

// Load reads configuration from path, applies defaults for unset fields,
// applies env overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, scripterrors.New(scripterrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, scripterrors.ConfigError("cannot read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, scripterrors.ConfigError("cannot parse config file", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from path if it exists, otherwise
// returns defaults with env overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Search.VectorThreshold < 0 {
		return scripterrors.ConfigError("search.vector_threshold must be >= 0", nil)
	}
	if c.Search.VectorResultLimitFactor <= 0 {
		return scripterrors.ConfigError("search.vector_result_limit_factor must be > 0", nil)
	}
	if c.Search.VectorMinResults < 1 {
		return scripterrors.ConfigError("search.vector_min_results must be >= 1", nil)
	}
	if c.Search.DefaultLimit < 1 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return scripterrors.ConfigError("search limits must satisfy 1 <= default_limit <= max_limit", nil)
	}
	if c.Embeddings.BatchSize < 1 {
		return scripterrors.ConfigError("embeddings.batch_size must be >= 1", nil)
	}
	if c.Embeddings.ChunkSize > 0 && c.Embeddings.ChunkOverlap >= c.Embeddings.ChunkSize {
		return scripterrors.ConfigError("embeddings.chunk_overlap must be smaller than chunk_size", nil)
	}
	switch c.Embeddings.CacheStrategy {
	case "", "lru", "ttl":
	default:
		return scripterrors.ConfigError("embeddings.cache_strategy must be lru or ttl", nil)
	}
	return nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return scripterrors.ConfigError("cannot serialize config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return scripterrors.ConfigError("cannot create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return scripterrors.ConfigError("cannot write config file", err)
	}
	return nil
}

// applyEnvOverrides applies SCRIPTRAG_* environment variables.
// Env vars take priority over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCRIPTRAG_VECTOR_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.VectorThreshold = n
		}
	}
	if v := os.Getenv("SCRIPTRAG_VECTOR_LIMIT_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Search.VectorResultLimitFactor = f
		}
	}
	if v := os.Getenv("SCRIPTRAG_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SCRIPTRAG_EMBEDDING_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("SCRIPTRAG_DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("SCRIPTRAG_VECTOR_PATH"); v != "" {
		c.Storage.VectorPath = v
	}
}

// ExpectedDimensions returns the expected vector dimension for model.
// Falls back to the global dimensions setting for unknown models.
func (c *Config) ExpectedDimensions(model string) int {
	if d, ok := c.Embeddings.ModelDimensions[model]; ok {
		return d
	}
	return c.Embeddings.Dimensions
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return defaultDataPath("config.yaml")
}

// defaultDataPath returns a path under ~/.scriptrag/.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".scriptrag", name)
	}
	return filepath.Join(home, ".scriptrag", name)
}

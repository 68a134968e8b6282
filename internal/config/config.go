// Package config loads and validates Locus configuration.
//
// Precedence, highest first: command-line flags, environment variables
// (LOCUS_*), repo-local .locus.yaml, user-global config, built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RepoConfigName is the repo-local configuration file name.
const RepoConfigName = ".locus.yaml"

// Config is the complete Locus configuration.
type Config struct {
	Indexing  IndexingConfig  `yaml:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Graph     GraphConfig     `yaml:"graph"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexingConfig controls the ingestion pipeline.
type IndexingConfig struct {
	// MaxChunkTokens is the chunk token budget.
	MaxChunkTokens int `yaml:"max_chunk_tokens"`

	// BackwardOverlapTokens bounds the prepended overlap context.
	BackwardOverlapTokens int `yaml:"backward_overlap_tokens"`
	// BackwardOverlapLines bounds the prepended overlap context by lines.
	BackwardOverlapLines int `yaml:"backward_overlap_lines"`
	// ForwardOverlapTokens bounds the appended overlap context.
	ForwardOverlapTokens int `yaml:"forward_overlap_tokens"`
	// ForwardOverlapLines bounds the appended overlap context by lines.
	ForwardOverlapLines int `yaml:"forward_overlap_lines"`

	// MaxFileSize is the parse budget in bytes. Larger files fall back to
	// keyword-only indexing.
	MaxFileSize int64 `yaml:"max_file_size"`

	// ParseTimeoutMS is the per-file parse wall-time budget.
	ParseTimeoutMS int `yaml:"parse_timeout_ms"`

	// MaxASTDepth is the AST depth budget before degraded parsing.
	MaxASTDepth int `yaml:"max_ast_depth"`

	// ExcludedPaths are glob patterns never indexed (e.g. .git, vendor).
	ExcludedPaths []string `yaml:"excluded_paths"`

	// FullScanIntervalS is the period of the reconciliation scan.
	FullScanIntervalS int `yaml:"full_scan_interval_s"`
}

// EmbeddingConfig controls the embedder.
type EmbeddingConfig struct {
	// Endpoint is the local model server address.
	Endpoint string `yaml:"endpoint"`
	// Model is the embedding model identifier.
	Model string `yaml:"model"`
	// Dimensions is the vector dimension, fixed at index creation.
	Dimensions int `yaml:"dimensions"`
	// BatchSize is the embedding batch size.
	BatchSize int `yaml:"batch_size"`
	// MaxSeqLength is the truncation length for retried inputs.
	MaxSeqLength int `yaml:"max_seq_length"`
}

// SearchConfig controls retrieval and ranking.
type SearchConfig struct {
	// TokenBudget is the default context window budget.
	TokenBudget int `yaml:"token_budget"`
	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int `yaml:"rrf_k"`
	// RRFWeight is the fused-score share kept by RRF vs rerank.
	RRFWeight float64 `yaml:"rrf_weight"`
	// UnrankedDemotion is the factor applied to candidates the reranker
	// did not score.
	UnrankedDemotion float64 `yaml:"unranked_demotion"`
	// RecencyBoostEnabled toggles the recency boost.
	RecencyBoostEnabled bool `yaml:"recency_boost_enabled"`
	// RerankerEndpoint is the cross-encoder service address. Empty disables
	// reranking.
	RerankerEndpoint string `yaml:"reranker_endpoint"`
	// KeywordBackend selects the keyword index backend: "sqlite" or "bleve".
	KeywordBackend string `yaml:"keyword_backend"`
}

// GraphConfig controls dependency-graph enrichment.
type GraphConfig struct {
	// CochangeThreshold is the minimum coupling to keep a co-change pair.
	CochangeThreshold float64 `yaml:"cochange_threshold"`
	// CochangeCommits bounds the history walk.
	CochangeCommits int `yaml:"cochange_commits"`
}

// WatcherConfig controls filesystem watching.
type WatcherConfig struct {
	// DebounceMS is the event coalescing window.
	DebounceMS int `yaml:"debounce_ms"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Indexing: IndexingConfig{
			MaxChunkTokens:        512,
			BackwardOverlapTokens: 64,
			BackwardOverlapLines:  10,
			ForwardOverlapTokens:  32,
			ForwardOverlapLines:   5,
			MaxFileSize:           5 * 1024 * 1024,
			ParseTimeoutMS:        10000,
			MaxASTDepth:           50,
			ExcludedPaths: []string{
				".git/**", "node_modules/**", "vendor/**", "target/**",
				"dist/**", "build/**", "**/*.lock", "**/package-lock.json",
			},
			FullScanIntervalS: 300,
		},
		Embedding: EmbeddingConfig{
			Endpoint:     "http://localhost:11434",
			Model:        "nomic-embed-text",
			Dimensions:   768,
			BatchSize:    32,
			MaxSeqLength: 2048,
		},
		Search: SearchConfig{
			TokenBudget:         8000,
			RRFK:                60,
			RRFWeight:           0.7,
			UnrankedDemotion:    0.5,
			RecencyBoostEnabled: false,
			KeywordBackend:      "sqlite",
		},
		Graph: GraphConfig{
			CochangeThreshold: 0.15,
			CochangeCommits:   1000,
		},
		Watcher: WatcherConfig{
			DebounceMS: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load resolves the configuration for a repository root, applying the full
// precedence chain except command-line flags (the CLI applies those last).
func Load(repoRoot string) (*Config, error) {
	cfg := Default()

	// User-global file first, repo-local second so the repo wins.
	userPath := userConfigPath()
	if userPath != "" {
		if err := mergeFile(cfg, userPath); err != nil {
			return nil, err
		}
	}
	if repoRoot != "" {
		if err := mergeFile(cfg, filepath.Join(repoRoot, RepoConfigName)); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// userConfigPath returns the user-global config file path.
func userConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "locus", "config.yaml")
}

// mergeFile decodes a YAML config file over cfg. Missing files are ignored;
// unknown keys are rejected.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides config values from LOCUS_* environment variables.
func applyEnv(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("LOCUS_MAX_CHUNK_TOKENS", &cfg.Indexing.MaxChunkTokens)
	setInt("LOCUS_FULL_SCAN_INTERVAL_S", &cfg.Indexing.FullScanIntervalS)
	setString("LOCUS_EMBEDDING_ENDPOINT", &cfg.Embedding.Endpoint)
	setString("LOCUS_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setInt("LOCUS_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	setInt("LOCUS_EMBEDDING_BATCH_SIZE", &cfg.Embedding.BatchSize)
	setInt("LOCUS_SEARCH_TOKEN_BUDGET", &cfg.Search.TokenBudget)
	setInt("LOCUS_SEARCH_RRF_K", &cfg.Search.RRFK)
	setFloat("LOCUS_SEARCH_RRF_WEIGHT", &cfg.Search.RRFWeight)
	setString("LOCUS_SEARCH_KEYWORD_BACKEND", &cfg.Search.KeywordBackend)
	setString("LOCUS_RERANKER_ENDPOINT", &cfg.Search.RerankerEndpoint)
	setFloat("LOCUS_COCHANGE_THRESHOLD", &cfg.Graph.CochangeThreshold)
	setInt("LOCUS_COCHANGE_COMMITS", &cfg.Graph.CochangeCommits)
	setInt("LOCUS_WATCHER_DEBOUNCE_MS", &cfg.Watcher.DebounceMS)
	setString("LOCUS_LOG_LEVEL", &cfg.Logging.Level)
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Indexing.MaxChunkTokens <= 0 {
		return fmt.Errorf("indexing.max_chunk_tokens must be positive, got %d", c.Indexing.MaxChunkTokens)
	}
	if c.Indexing.MaxFileSize <= 0 {
		return fmt.Errorf("indexing.max_file_size must be positive, got %d", c.Indexing.MaxFileSize)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Search.RRFWeight < 0 || c.Search.RRFWeight > 1 {
		return fmt.Errorf("search.rrf_weight must be in [0,1], got %f", c.Search.RRFWeight)
	}
	if c.Search.UnrankedDemotion < 0 || c.Search.UnrankedDemotion > 1 {
		return fmt.Errorf("search.unranked_demotion must be in [0,1], got %f", c.Search.UnrankedDemotion)
	}
	switch c.Search.KeywordBackend {
	case "", "sqlite", "bleve":
	default:
		return fmt.Errorf("search.keyword_backend must be sqlite or bleve, got %q", c.Search.KeywordBackend)
	}
	if c.Graph.CochangeThreshold < 0 || c.Graph.CochangeThreshold > 1 {
		return fmt.Errorf("graph.cochange_threshold must be in [0,1], got %f", c.Graph.CochangeThreshold)
	}
	if c.Watcher.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms must be non-negative, got %d", c.Watcher.DebounceMS)
	}
	return nil
}

// ParseTimeout returns the parse budget as a duration.
func (c *Config) ParseTimeout() time.Duration {
	return time.Duration(c.Indexing.ParseTimeoutMS) * time.Millisecond
}

// DebounceWindow returns the watcher debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Watcher.DebounceMS) * time.Millisecond
}

// FullScanInterval returns the reconciliation scan period as a duration.
func (c *Config) FullScanInterval() time.Duration {
	return time.Duration(c.Indexing.FullScanIntervalS) * time.Second
}

// StateDir returns the per-repo state directory, keyed by a hash of the
// repository's absolute path. LOCUS_STATE_DIR overrides the base location.
func StateDir(repoRoot string) (string, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolve repo root: %w", err)
	}

	if base := os.Getenv("LOCUS_STATE_DIR"); base != "" {
		return filepath.Join(base, PathHash(abs)), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".locus", "index", PathHash(abs)), nil
}

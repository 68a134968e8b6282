package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Indexing.MaxChunkTokens)
	assert.Equal(t, int64(5*1024*1024), cfg.Indexing.MaxFileSize)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.InDelta(t, 0.5, cfg.Search.UnrankedDemotion, 1e-9)
	assert.InDelta(t, 0.15, cfg.Graph.CochangeThreshold, 1e-9)
	assert.Equal(t, 1000, cfg.Graph.CochangeCommits)
	assert.Equal(t, 100, cfg.Watcher.DebounceMS)
	assert.Equal(t, 300, cfg.Indexing.FullScanIntervalS)
}

func TestLoad_RepoFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	repoConfig := `
indexing:
  max_chunk_tokens: 256
search:
  rrf_k: 90
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, RepoConfigName), []byte(repoConfig), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Indexing.MaxChunkTokens)
	assert.Equal(t, 90, cfg.Search.RRFK)
	// Untouched values keep defaults.
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestLoad_EnvOverridesRepoFile(t *testing.T) {
	dir := t.TempDir()
	repoConfig := "search:\n  rrf_k: 90\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, RepoConfigName), []byte(repoConfig), 0o644))

	t.Setenv("LOCUS_SEARCH_RRF_K", "120")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Search.RRFK, "environment beats the repo file")
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RepoConfigName),
		[]byte("nonsense_key: true\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Indexing.MaxChunkTokens, cfg.Indexing.MaxChunkTokens)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk tokens", func(c *Config) { c.Indexing.MaxChunkTokens = 0 }},
		{"negative file size", func(c *Config) { c.Indexing.MaxFileSize = -1 }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"rrf weight above one", func(c *Config) { c.Search.RRFWeight = 1.5 }},
		{"unknown keyword backend", func(c *Config) { c.Search.KeywordBackend = "lucene" }},
		{"cochange threshold above one", func(c *Config) { c.Graph.CochangeThreshold = 2 }},
		{"negative debounce", func(c *Config) { c.Watcher.DebounceMS = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStateDir_KeyedByPathHash(t *testing.T) {
	a, err := StateDir("/tmp/project-a")
	require.NoError(t, err)
	b, err := StateDir("/tmp/project-b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "distinct repos get distinct state dirs")

	again, err := StateDir("/tmp/project-a")
	require.NoError(t, err)
	assert.Equal(t, a, again, "state dir derivation is stable")
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(10000), cfg.ParseTimeout().Milliseconds())
	assert.Equal(t, int64(100), cfg.DebounceWindow().Milliseconds())
	assert.Equal(t, int64(300), int64(cfg.FullScanInterval().Seconds()))
}

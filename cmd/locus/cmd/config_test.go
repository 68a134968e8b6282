package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locus-dev/locus/internal/config"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	configCmd, _, err := root.Find([]string{"config"})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, sc := range configCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["get"], "should have get subcommand")
	assert.True(t, names["set"], "should have set subcommand")
	assert.True(t, names["list"], "should have list subcommand")
}

func TestConfigGet_ResolvedDefault(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "config", "get", "search.rrf_k")
	require.NoError(t, err)
	assert.Equal(t, "60\n", out)
}

func TestConfigGet_UnknownKeyFails(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "config", "get", "no.such.key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration key")
}

func TestConfigGet_RequiresExactlyOneArg(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "config", "get")
	assert.Error(t, err)
}

func TestConfigList_ShowsAllKnownKeys(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "config", "list")
	require.NoError(t, err)

	for _, key := range config.KnownKeys() {
		assert.Contains(t, out, key+" = ")
	}
	assert.Contains(t, out, "indexing.max_chunk_tokens = 512")
	assert.Contains(t, out, "watcher.debounce_ms = 100")
}

func TestConfigSet_WritesRepoFileAndGetReflectsIt(t *testing.T) {
	repo := t.TempDir()

	out, err := runCLI(t, repo, "config", "set", "search.rrf_k", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "search.rrf_k = 90")

	// The repo-local file carries the value.
	data, err := os.ReadFile(filepath.Join(repo, config.RepoConfigName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "rrf_k: 90")

	// A later invocation resolves it through the precedence chain.
	got, err := runCLI(t, repo, "config", "get", "search.rrf_k")
	require.NoError(t, err)
	assert.Equal(t, "90\n", got)
}

func TestConfigSet_PreservesExistingKeys(t *testing.T) {
	repo := t.TempDir()

	_, err := runCLI(t, repo, "config", "set", "search.rrf_k", "90")
	require.NoError(t, err)
	_, err = runCLI(t, repo, "config", "set", "indexing.max_chunk_tokens", "256")
	require.NoError(t, err)

	got, err := runCLI(t, repo, "config", "get", "search.rrf_k")
	require.NoError(t, err)
	assert.Equal(t, "90\n", got, "earlier writes survive later ones")

	got, err = runCLI(t, repo, "config", "get", "indexing.max_chunk_tokens")
	require.NoError(t, err)
	assert.Equal(t, "256\n", got)
}

func TestConfigSet_RejectsInvalidValues(t *testing.T) {
	repo := t.TempDir()

	_, err := runCLI(t, repo, "config", "set", "search.rrf_k", "not-a-number")
	assert.Error(t, err)

	_, err = runCLI(t, repo, "config", "set", "search.rrf_weight", "1.5")
	assert.Error(t, err, "values failing config validation must be rejected")

	_, err = runCLI(t, repo, "config", "set", "no.such.key", "1")
	assert.Error(t, err)

	// Nothing invalid may reach the repo file.
	_, statErr := os.Stat(filepath.Join(repo, config.RepoConfigName))
	assert.True(t, os.IsNotExist(statErr), "rejected writes leave no config file")
}

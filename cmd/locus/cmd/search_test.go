package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	root := NewRootCmd()

	searchCmd, _, err := root.Find([]string{"search"})
	require.NoError(t, err)

	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "should have --limit flag")
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "search")
	assert.Error(t, err, "search without a query must fail")
}

func TestSearchCmd_EmptyRepositoryReturnsNoResults(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "no results")
}

func TestSearchCmd_FindsIndexedFunction(t *testing.T) {
	repo := t.TempDir()
	source := "def validate_token(t):\n    return bool(t)\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, "auth.py"), []byte(source), 0o644))

	// Same state dir across both invocations so the index persists.
	state := t.TempDir()
	t.Setenv("LOCUS_STATE_DIR", state)

	_, err := runCLI(t, repo, "index")
	require.NoError(t, err)

	out, err := runCLI(t, repo, "search", "validate token", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "auth.py")
	assert.Contains(t, out, "validate_token")
}

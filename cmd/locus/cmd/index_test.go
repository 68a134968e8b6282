package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_HasForceAndWatchFlags(t *testing.T) {
	root := NewRootCmd()

	indexCmd, _, err := root.Find([]string{"index"})
	require.NoError(t, err)

	force := indexCmd.Flags().Lookup("force")
	require.NotNil(t, force, "should have --force flag")
	assert.Equal(t, "false", force.DefValue)

	watch := indexCmd.Flags().Lookup("watch")
	require.NotNil(t, watch, "should have --watch flag")
	assert.Equal(t, "false", watch.DefValue)
}

func TestIndexCmd_IndexesRepository(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.py"),
		[]byte("def first():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "b.py"),
		[]byte("def second():\n    pass\n"), 0o644))

	out, err := runCLI(t, repo, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 files")
}

func TestIndexCmd_ForceReindexes(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.py"),
		[]byte("def first():\n    pass\n"), 0o644))

	state := t.TempDir()
	t.Setenv("LOCUS_STATE_DIR", state)

	_, err := runCLI(t, repo, "index")
	require.NoError(t, err)

	// A forced run rebuilds unchanged files without error.
	out, err := runCLI(t, repo, "index", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 1 files")
}

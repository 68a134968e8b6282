package cmd

import (
	"bytes"
	"os"
	"testing"
)

// runCLI executes a fresh command tree against an isolated home and state
// directory, returning captured stdout. Tests that need the index to
// survive across invocations set LOCUS_STATE_DIR themselves.
func runCLI(t *testing.T, repoRoot string, args ...string) (string, error) {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home+"/.config")
	if os.Getenv("LOCUS_STATE_DIR") == "" {
		t.Setenv("LOCUS_STATE_DIR", t.TempDir())
	}

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))

	cmd.SetArgs(append([]string{"--root", repoRoot}, args...))
	err := cmd.Execute()
	return out.String(), err
}

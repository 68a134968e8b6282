package gitx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCochanges_NoRepositoryYieldsNothing(t *testing.T) {
	pairs, err := AnalyzeCochanges(context.Background(), t.TempDir(), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, pairs, "a directory without git history has no coupling signal")
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 1000, opts.MaxCommits)
	assert.InDelta(t, 0.15, opts.Threshold, 1e-9)
	assert.Positive(t, opts.MaxFilesPerCommit)
}

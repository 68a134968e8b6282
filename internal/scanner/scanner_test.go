package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestScanner_WalksAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.go", []byte("package b"))
	writeFile(t, root, "a.go", []byte("package a"))
	writeFile(t, root, "sub/c.go", []byte("package c"))

	s, err := New(root, nil, 0)
	require.NoError(t, err)

	files, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.go", files[0].Path)
	assert.Equal(t, "b.go", files[1].Path)
	assert.Equal(t, "sub/c.go", files[2].Path)
}

func TestScanner_ExclusionGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main"))
	writeFile(t, root, "vendor/dep/dep.go", []byte("package dep"))
	writeFile(t, root, "app.lock", []byte("lockfile"))

	s, err := New(root, []string{"vendor/**", "**/*.lock", "*.lock"}, 0)
	require.NoError(t, err)

	files, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Path)
}

func TestScanner_HiddenPathsAlwaysExcluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/config", []byte("[core]"))
	writeFile(t, root, ".hidden.go", []byte("package hidden"))
	writeFile(t, root, "visible.go", []byte("package visible"))

	s, err := New(root, nil, 0)
	require.NoError(t, err)

	files, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "visible.go", files[0].Path)
}

func TestScanner_OversizedFilesSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", []byte("package small"))
	writeFile(t, root, "big.go", make([]byte, 2048))

	s, err := New(root, nil, 1024)
	require.NoError(t, err)

	files, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "small.go", files[0].Path)
}

func TestScanner_ReadFileRejectsBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bin.go", []byte{0x7f, 0x45, 0x4c, 0x46, 0x00, 0x01})
	writeFile(t, root, "text.go", []byte("package text"))

	s, err := New(root, nil, 0)
	require.NoError(t, err)

	_, err = s.ReadFile("bin.go")
	assert.Error(t, err)

	content, err := s.ReadFile("text.go")
	require.NoError(t, err)
	assert.Equal(t, "package text", string(content))
}

func TestIsBinary(t *testing.T) {
	assert.True(t, IsBinary([]byte{0x00, 0x01}))
	assert.False(t, IsBinary([]byte("plain source code")))
	assert.False(t, IsBinary(nil))
}

func TestScanner_InvalidPatternRejected(t *testing.T) {
	_, err := New(t.TempDir(), []string{"[unclosed"}, 0)
	assert.Error(t, err)
}

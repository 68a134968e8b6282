package parser

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DetectLanguage(t *testing.T) {
	r := NewRegistry(DefaultBudget())

	tests := []struct {
		path    string
		content string
		want    string
	}{
		{"main.go", "", "go"},
		{"app.py", "", "python"},
		{"index.js", "", "javascript"},
		{"component.tsx", "", "tsx"},
		{"server.ts", "", "typescript"},
		{"lib.rs", "", "rust"},
		{"README.md", "", ""},
		{"script", "#!/usr/bin/env python3\nprint(1)", "python"},
		{"run", "#!/usr/bin/env node\nconsole.log(1)", "javascript"},
		{"binary", "\x7fELF", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, r.DetectLanguage(tt.path, []byte(tt.content)), "path %q", tt.path)
	}
}

func TestRegistry_SeparatorPerLanguage(t *testing.T) {
	r := NewRegistry(DefaultBudget())
	assert.Equal(t, ".", r.SeparatorFor("go"))
	assert.Equal(t, ".", r.SeparatorFor("python"))
	assert.Equal(t, "::", r.SeparatorFor("rust"))
	assert.Equal(t, ".", r.SeparatorFor("unknown"))
}

func TestRegistry_OversizedFileDegrades(t *testing.T) {
	budget := DefaultBudget()
	budget.MaxFileSize = 64
	r := NewRegistry(budget)

	content := bytes.Repeat([]byte("func x() {}\n"), 32)
	result, err := r.Analyze(context.Background(), "big.go", content)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Degraded, "budget exceedance falls back to keyword indexing")
	require.Len(t, result.Elements, 1)
	assert.Equal(t, KindModule, result.Elements[0].Kind)
	assert.Equal(t, string(content), result.Elements[0].Content)
}

func TestRegistry_UnsupportedFileYieldsNil(t *testing.T) {
	r := NewRegistry(DefaultBudget())
	result, err := r.Analyze(context.Background(), "notes.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestGoAnalyzer_ExtractElements(t *testing.T) {
	source := []byte(`package auth

import (
	"crypto/hmac"
	"fmt"
)

// TokenError describes a rejected token.
type TokenError struct {
	Reason string
}

// ValidateToken checks a signed token.
func ValidateToken(token string) error {
	if !hmac.Equal([]byte(token), []byte(token)) {
		return fmt.Errorf("bad token")
	}
	return nil
}

func helper() int { return 1 }
`)

	r := NewRegistry(DefaultBudget())
	result, err := r.Analyze(context.Background(), "auth.go", source)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Degraded)

	byName := make(map[string]Element)
	for _, e := range result.Elements {
		byName[e.Name] = e
	}

	validate, ok := byName["ValidateToken"]
	require.True(t, ok, "ValidateToken must be extracted")
	assert.Equal(t, KindFunction, validate.Kind)
	assert.Equal(t, VisibilityPublic, validate.Visibility)
	assert.Contains(t, validate.DocComment, "checks a signed token")

	tokenErr, ok := byName["TokenError"]
	require.True(t, ok, "TokenError must be extracted")
	assert.Equal(t, KindStruct, tokenErr.Kind)

	helper, ok := byName["helper"]
	require.True(t, ok)
	assert.Equal(t, VisibilityPrivate, helper.Visibility)

	// Imports.
	paths := make([]string, 0, len(result.Imports))
	for _, imp := range result.Imports {
		paths = append(paths, imp.Path)
	}
	assert.Contains(t, paths, "crypto/hmac")
	assert.Contains(t, paths, "fmt")
}

func TestPythonAnalyzer_ClassAndMethods(t *testing.T) {
	source := []byte(`import os
from auth.crypto import sign

class Session:
    """Holds one user session."""

    def start(self):
        return sign(os.urandom(16))

    def _internal(self):
        pass

def test_session():
    assert Session() is not None
`)

	r := NewRegistry(DefaultBudget())
	result, err := r.Analyze(context.Background(), "session.py", source)
	require.NoError(t, err)
	require.NotNil(t, result)

	byName := make(map[string]Element)
	for _, e := range result.Elements {
		byName[e.Name] = e
	}

	session, ok := byName["Session"]
	require.True(t, ok)
	assert.Equal(t, KindClass, session.Kind)
	assert.Contains(t, session.DocComment, "user session")

	start, ok := byName["start"]
	require.True(t, ok)
	assert.Equal(t, []string{"Session"}, start.ScopePath)

	internal, ok := byName["_internal"]
	require.True(t, ok)
	assert.Equal(t, VisibilityPrivate, internal.Visibility)

	testFn, ok := byName["test_session"]
	require.True(t, ok)
	assert.Equal(t, KindTest, testFn.Kind)

	// from-import captures the imported name.
	var fromImport *Import
	for i := range result.Imports {
		if result.Imports[i].Path == "auth.crypto" {
			fromImport = &result.Imports[i]
		}
	}
	require.NotNil(t, fromImport)
	assert.Contains(t, fromImport.Names, "sign")
}

func TestRustAnalyzer_VisibilityAndTraits(t *testing.T) {
	source := []byte(`use std::collections::HashMap;

pub struct Index {
    entries: HashMap<String, u64>,
}

pub(crate) fn rebuild(index: &mut Index) {
    index.entries.clear();
}

trait Storage {
    fn persist(&self);
}

impl Storage for Index {
    fn persist(&self) {}
}
`)

	r := NewRegistry(DefaultBudget())
	result, err := r.Analyze(context.Background(), "index.rs", source)
	require.NoError(t, err)
	require.NotNil(t, result)

	byName := make(map[string]Element)
	for _, e := range result.Elements {
		if _, taken := byName[e.Name]; !taken {
			byName[e.Name] = e
		}
	}

	index, ok := byName["Index"]
	require.True(t, ok)
	assert.Equal(t, KindStruct, index.Kind)
	assert.Equal(t, VisibilityPublic, index.Visibility)

	rebuild, ok := byName["rebuild"]
	require.True(t, ok)
	assert.Equal(t, VisibilityCrate, rebuild.Visibility)

	storage, ok := byName["Storage"]
	require.True(t, ok)
	assert.Equal(t, KindTrait, storage.Kind)
}

func TestMalformedSourceStillYieldsElements(t *testing.T) {
	// Unclosed brace: the parse is error-tolerant, never an exception.
	source := []byte("package broken\n\nfunc Incomplete() {\n\tx := 1\n")

	r := NewRegistry(DefaultBudget())
	result, err := r.Analyze(context.Background(), "broken.go", source)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Elements, "best-effort extraction from malformed input")
}

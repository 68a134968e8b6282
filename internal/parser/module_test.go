package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleName(t *testing.T) {
	tests := []struct {
		path      string
		separator string
		want      string
	}{
		{"src/auth/token.py", ".", "auth.token"},
		{"lib/core/engine.rs", "::", "core::engine"},
		{"tests/test_auth.py", ".", "test_auth"},
		{"pkg/store/metadata.go", ".", "pkg.store.metadata"},
		{"auth.py", ".", "auth"},
		{"src/lib/utils.ts", ".", "utils"},
		{"src/pkg/__init__.py", ".", "pkg"},
		{"src/mymod/mod.rs", "::", "mymod"},
		{"src/components/index.ts", ".", "components"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ModuleName(tt.path, tt.separator), "path %q", tt.path)
	}
}

func TestFQN(t *testing.T) {
	assert.Equal(t, "auth.token.validate", FQN("auth.token", nil, "validate", "."))
	assert.Equal(t, "core::Engine::start", FQN("core", []string{"Engine"}, "start", "::"))
	assert.Equal(t, "validate", FQN("", nil, "validate", "."))
	assert.Equal(t, "Server.handler", FQN("", []string{"Server"}, "handler", "."))
}

func TestSymbolPath(t *testing.T) {
	assert.Equal(t, "Server.start", SymbolPath([]string{"Server"}, "start", "."))
	assert.Equal(t, "start", SymbolPath(nil, "start", "."))
	assert.Equal(t, "Server", SymbolPath([]string{"Server"}, "", "."))
}

func TestGoVisibility(t *testing.T) {
	assert.Equal(t, VisibilityPublic, goVisibility("Exported"))
	assert.Equal(t, VisibilityPrivate, goVisibility("unexported"))
	assert.Equal(t, VisibilityPrivate, goVisibility(""))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesTaxonomyFromCode(t *testing.T) {
	err := New(ErrCodeStoreCorrupt, "metadata store corrupted", nil)

	assert.Equal(t, CategoryStore, err.Category)
	assert.Equal(t, SeverityFatal, err.Severity)
	assert.False(t, err.Retryable)
	assert.Equal(t, "[ERR_203_STORE_CORRUPT] metadata store corrupted", err.Error())
}

func TestSeverityTiers(t *testing.T) {
	tests := []struct {
		code string
		want Severity
	}{
		{ErrCodeStoreCorrupt, SeverityFatal},
		{ErrCodeDiskFull, SeverityFatal},
		{ErrCodeLocked, SeverityFatal},
		{ErrCodeModelUnavailable, SeverityDegraded},
		{ErrCodeVectorCorrupt, SeverityDegraded},
		{ErrCodeDimensionMismatch, SeverityDegraded},
		{ErrCodeParseFailed, SeverityRecoverable},
		{ErrCodeEmbedFailed, SeverityRecoverable},
		{ErrCodeSymbolMissing, SeverityRecoverable},
	}

	for _, tt := range tests {
		err := New(tt.code, "x", nil)
		assert.Equal(t, tt.want, err.Severity, "code %s", tt.code)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk exploded")
	err := Wrap(ErrCodeDiskFull, cause)

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, New(ErrCodeDiskFull, "other message", nil)),
		"errors with the same code match via errors.Is")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeEmbedTimeout, "slow", nil)))
	assert.False(t, IsRetryable(New(ErrCodeStoreCorrupt, "broken", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestFatalAndDegradedPredicates(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeDiskFull, "full", nil)))
	assert.False(t, IsFatal(New(ErrCodeParseFailed, "oops", nil)))
	assert.False(t, IsFatal(nil))

	assert.True(t, IsDegraded(New(ErrCodeModelUnavailable, "no model", nil)))
	assert.False(t, IsDegraded(New(ErrCodeDiskFull, "full", nil)))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeParseFailed, "parse failed", nil).
		WithDetail("path", "a.go").
		WithDetail("language", "go")

	assert.Equal(t, "a.go", err.Details["path"])
	assert.Equal(t, "go", err.Details["language"])
}

func TestGetSeverity_DefaultsToRecoverable(t *testing.T) {
	assert.Equal(t, SeverityRecoverable, GetSeverity(fmt.Errorf("plain")))
	assert.Equal(t, SeverityFatal, GetSeverity(New(ErrCodeDiskFull, "x", nil)))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"config code", ErrCodeConfigInvalid, CategoryConfig},
		{"io code", ErrCodeCorruptIndex, CategoryIO},
		{"network code", ErrCodeEmbeddingProvider, CategoryNetwork},
		{"validation code", ErrCodeInvalidInput, CategoryValidation},
		{"internal code", ErrCodeIndexNotReady, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "message", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_DerivesRetryableFromCode(t *testing.T) {
	assert.True(t, New(ErrCodeEmbeddingProvider, "embed failed", nil).Retryable)
	assert.True(t, New(ErrCodeNetworkTimeout, "timeout", nil).Retryable)
	assert.False(t, New(ErrCodePublishConflict, "conflict", nil).Retryable)
	assert.False(t, New(ErrCodeCorruptIndex, "corrupt", nil).Retryable)
}

func TestError_FormatsCodeAndMessage(t *testing.T) {
	err := New(ErrCodeIndexNotReady, "no index has been built or loaded", nil)
	assert.Equal(t, "[ERR_502_INDEX_NOT_READY] no index has been built or loaded", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeEmbeddingProvider, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := IndexNotReady()
	target := New(ErrCodeIndexNotReady, "different message", nil)

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, PublishConflict("writer lost")))
}

func TestIndexNotReady_HasSuggestion(t *testing.T) {
	err := IndexNotReady()
	assert.Equal(t, ErrCodeIndexNotReady, err.Code)
	assert.Contains(t, err.Suggestion, "retreva index")
}

func TestCorruptIndexError_IsFatal(t *testing.T) {
	err := CorruptIndexError("generation mismatch", nil)
	assert.True(t, IsFatal(err))
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeFileNotFound, "missing", nil).
		WithDetail("path", "src/main.go").
		WithDetail("root", "/repo")

	assert.Equal(t, "src/main.go", err.Details["path"])
	assert.Equal(t, "/repo", err.Details["root"])
}

func TestGetCode_NonEngineError(t *testing.T) {
	assert.Equal(t, "", GetCode(fmt.Errorf("plain error")))
	assert.Equal(t, ErrCodeInternal, GetCode(InternalError("boom", nil)))
}

func TestIsRetryable_NonEngineError(t *testing.T) {
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
	assert.False(t, IsRetryable(nil))
}

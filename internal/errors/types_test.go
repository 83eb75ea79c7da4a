package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      New(ErrCodeInvalidInput, "bad body"),
			expected: "INVALID_INPUT: bad body",
		},
		{
			name:     "with cause",
			err:      Wrap(fmt.Errorf("disk full"), ErrCodeDatabaseQuery, "insert failed"),
			expected: "DATABASE_QUERY: insert failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, ErrCodeProviderAPI, "send failed")

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, cause, err.Unwrap())
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeNotFound, "missing").
		WithContext("resource", "conversation").
		WithContext("id", 42)

	assert.Equal(t, "conversation", err.Context["resource"])
	assert.Equal(t, 42, err.Context["id"])
}

func TestWrapRetryable(t *testing.T) {
	err := WrapRetryable(fmt.Errorf("locked"), ErrCodeDatabaseQuery, "busy")
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(New(ErrCodeDatabaseQuery, "busy")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestGetCode_FollowsWrappedChain(t *testing.T) {
	appErr := NewProviderAuthError(fmt.Errorf("all failed"))
	wrapped := fmt.Errorf("dispatch: %w", appErr)

	assert.Equal(t, ErrCodeProviderAuth, GetCode(wrapped))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain")))
}

func TestHasCode(t *testing.T) {
	inner := NewProviderAuthError(fmt.Errorf("exhausted"))
	outer := Wrap(inner, ErrCodeInternalError, "dispatch")

	assert.True(t, HasCode(outer, ErrCodeProviderAuth))
	assert.True(t, HasCode(outer, ErrCodeInternalError))
	assert.False(t, HasCode(outer, ErrCodeDatabaseQuery))
	assert.False(t, HasCode(nil, ErrCodeProviderAuth))
}

func TestGetUserMessage(t *testing.T) {
	assert.Equal(t, "friendly", GetUserMessage(New(ErrCodeTimeout, "x").WithUserMessage("friendly")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeTimeout, "x")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(fmt.Errorf("plain")))
}

func TestAsAppError(t *testing.T) {
	appErr, ok := AsAppError(fmt.Errorf("outer: %w", New(ErrCodeNotFound, "x")))
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotFound, appErr.Code)

	_, ok = AsAppError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

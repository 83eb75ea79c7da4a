package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"locked", errors.New("database is locked"), true},
		{"table locked", errors.New("database table is locked"), true},
		{"disk io", errors.New("disk I/O error"), true},
		{"unique", errors.New("UNIQUE constraint failed: messages.message_id"), false},
		{"no such table", errors.New("no such table: messages"), false},
		{"cancelled", context.Canceled, false},
		{"duplicate sentinel", ErrDuplicateMessage, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableDBError(tt.err))
		})
	}
}

func TestRetryableDBOperation_SucceedsAfterLock(t *testing.T) {
	calls := 0
	err := retryableDBOperationNoReturn(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	}, "test op")

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryableDBOperation_NonRetryableReturnedAsIs(t *testing.T) {
	calls := 0
	err := retryableDBOperationNoReturn(context.Background(), 3, func() error {
		calls++
		return ErrDuplicateMessage
	}, "test op")

	assert.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Equal(t, 1, calls)
}

func TestRetryableDBOperation_Exhausted(t *testing.T) {
	calls := 0
	err := retryableDBOperationNoReturn(context.Background(), 2, func() error {
		calls++
		return errors.New("database is locked")
	}, "test op")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestRetryableDBOperation_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryableDBOperationNoReturn(ctx, 3, func() error { return nil }, "test op")
	assert.ErrorIs(t, err, context.Canceled)
}

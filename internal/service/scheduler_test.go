package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestScheduler_RunMaintenance(t *testing.T) {
	store := &mockMaintainer{}
	scheduler := NewScheduler(store, 48*time.Hour, 24, quietLogger())
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return now }

	ctx := context.Background()
	store.On("DeactivateStaleConversations", ctx, now.Add(-48*time.Hour)).Return(int64(3), nil).Once()

	scheduler.runMaintenance(ctx)

	store.AssertExpectations(t)
}

func TestScheduler_RunMaintenanceError(t *testing.T) {
	store := &mockMaintainer{}
	scheduler := NewScheduler(store, time.Hour, 24, quietLogger())

	ctx := context.Background()
	store.On("DeactivateStaleConversations", ctx, mock.Anything).Return(int64(0), assert.AnError).Once()

	scheduler.runMaintenance(ctx)

	store.AssertExpectations(t)
}

func TestScheduler_Defaults(t *testing.T) {
	scheduler := NewScheduler(&mockMaintainer{}, 0, 0, quietLogger())

	assert.Equal(t, 24*time.Hour, scheduler.interval)
	assert.Equal(t, 30*24*time.Hour, scheduler.inactiveAfter)
}

func TestScheduler_StartStop(t *testing.T) {
	store := &mockMaintainer{}
	scheduler := NewScheduler(store, time.Hour, 24, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())

	store.On("DeactivateStaleConversations", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()

	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}

func TestScheduler_StopSignal(t *testing.T) {
	store := &mockMaintainer{}
	scheduler := NewScheduler(store, time.Hour, 24, quietLogger())

	store.On("DeactivateStaleConversations", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()

	done := make(chan struct{})
	go func() {
		scheduler.Start(context.Background())
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler did not stop within timeout")
	}
}

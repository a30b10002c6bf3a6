package worker

import (
	"ai-memory-chat-be/internal/pkg/logger"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(Config{Name: "test-run", Workers: 2, QueueSize: 8}, logger.NewNopLogger())

	var ran int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	p := NewPool(Config{Name: "test-drain", Workers: 1, QueueSize: 16}, logger.NewNopLogger())

	gate := make(chan struct{})
	var ran int32
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		<-gate
		atomic.AddInt32(&ran, 1)
		return nil
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}

	close(gate)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(11), atomic.LoadInt32(&ran))
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	p := NewPool(Config{Name: "test-closed", Workers: 1}, logger.NewNopLogger())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolQueueFull(t *testing.T) {
	p := NewPool(Config{Name: "test-full", Workers: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond}, logger.NewNopLogger())

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-gate
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	var full *QueueFullError
	require.True(t, errors.As(err, &full))
	assert.Equal(t, 1, full.Capacity)

	close(gate)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownDeadlineAbandonsJobs(t *testing.T) {
	p := NewPool(Config{Name: "test-abandon", Workers: 1, QueueSize: 4}, logger.NewNopLogger())

	started := make(chan struct{})
	var cancelled int32
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
		return ctx.Err()
	}))
	var queuedRan int32
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		atomic.StoreInt32(&queuedRan, 1)
		return nil
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&cancelled) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&queuedRan))
}

func TestPoolSurvivesPanics(t *testing.T) {
	p := NewPool(Config{Name: "test-panic", Workers: 1, QueueSize: 4}, logger.NewNopLogger())

	var ran int32
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return errors.New("ordinary failure")
	}))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&ran))
}

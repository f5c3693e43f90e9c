package main

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLifecycle(t *testing.T) (*lifecycle, context.Context) {
	t.Helper()
	runCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)

	workersDone := make(chan struct{})
	go func() {
		<-runCtx.Done()
		close(workersDone)
	}()
	return newLifecycle(&http.Server{}, stop, workersDone), runCtx
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestLifecycle_OperationNames(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	lc.closeAfterDrain("nats", func() error { return nil })
	lc.closeAfterDrain("database", func() error { return nil })

	ops := lc.operations()
	assert.Len(t, ops, 4)
	for _, name := range []string{"http", "hub", "nats", "database"} {
		assert.Contains(t, ops, name)
	}
}

func TestLifecycle_ClosesResourcesAfterDrain(t *testing.T) {
	lc, runCtx := newTestLifecycle(t)

	var mu sync.Mutex
	drainedFirst := map[string]bool{}
	for _, name := range []string{"nats", "database", "redis"} {
		lc.closeAfterDrain(name, func() error {
			mu.Lock()
			defer mu.Unlock()
			drainedFirst[name] = closed(lc.httpDrained) && closed(lc.workersDone)
			return nil
		})
	}

	require.NoError(t, lc.shutdownNow(context.Background()))

	assert.Error(t, runCtx.Err(), "workers are stopped")
	assert.True(t, lc.started())
	assert.Equal(t, map[string]bool{"nats": true, "database": true, "redis": true}, drainedFirst)
}

func TestLifecycle_CloserGivesUpWhenWorkersHang(t *testing.T) {
	lc := newLifecycle(&http.Server{}, func() {}, make(chan struct{}))
	called := false
	lc.closeAfterDrain("database", func() error {
		called = true
		return nil
	})

	ops := lc.operations()
	require.NoError(t, ops["http"](context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ops["database"](ctx), context.DeadlineExceeded)
	assert.False(t, called)
}

func TestLifecycle_RepeatedShutdownIsSafe(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	lc.closeAfterDrain("nats", func() error { return nil })

	require.NoError(t, lc.shutdownNow(context.Background()))
	assert.NotPanics(t, func() {
		_ = lc.shutdownNow(context.Background())
	})
}

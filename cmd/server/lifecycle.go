package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/sync/errgroup"
)

// lifecycle names the pieces torn down on shutdown. Resources the HTTP
// handlers and background workers use are closed only after the server has
// drained and the workers have returned.
type lifecycle struct {
	srv         *http.Server
	stopWorkers context.CancelFunc
	workersDone <-chan struct{}
	closers     map[string]func() error

	httpDrained chan struct{}
	drainOnce   sync.Once
	begun       chan struct{} // closed when any operation starts
	beginOnce   sync.Once
}

func newLifecycle(srv *http.Server, stopWorkers context.CancelFunc, workersDone <-chan struct{}) *lifecycle {
	return &lifecycle{
		srv:         srv,
		stopWorkers: stopWorkers,
		workersDone: workersDone,
		closers:     make(map[string]func() error),
		httpDrained: make(chan struct{}),
		begun:       make(chan struct{}),
	}
}

// closeAfterDrain registers a resource closed once nothing can use it anymore.
func (l *lifecycle) closeAfterDrain(name string, closeFn func() error) {
	l.closers[name] = closeFn
}

func (l *lifecycle) started() bool {
	select {
	case <-l.begun:
		return true
	default:
		return false
	}
}

func (l *lifecycle) begin() {
	l.beginOnce.Do(func() { close(l.begun) })
}

func (l *lifecycle) operations() map[string]gfshutdown.Operation {
	ops := map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			l.begin()
			defer l.drainOnce.Do(func() { close(l.httpDrained) })
			slog.Info("Shutting down HTTP server")
			return l.srv.Shutdown(ctx)
		},
		"hub": func(ctx context.Context) error {
			l.begin()
			l.stopWorkers()
			select {
			case <-l.workersDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	for name, closeFn := range l.closers {
		ops[name] = func(ctx context.Context) error {
			l.begin()
			for _, gate := range []<-chan struct{}{l.httpDrained, l.workersDone} {
				select {
				case <-gate:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			slog.Info("Closing resource", "name", name)
			return closeFn()
		}
	}
	return ops
}

// shutdownNow runs every operation at once. It is the path taken when a
// worker fails before any signal arrives.
func (l *lifecycle) shutdownNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var g errgroup.Group
	for name, op := range l.operations() {
		g.Go(func() error {
			if err := op(ctx); err != nil {
				slog.Error("Shutdown operation failed", "name", name, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

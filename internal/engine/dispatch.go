package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Dispatcher runs publish tasks off the caller's goroutine with bounded
// concurrency. Tasks are fire-and-forget: errors are logged, never returned,
// and a task is never cancelled by its submitter.
type Dispatcher struct {
	group   errgroup.Group
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher running at most workers tasks at once,
// each bounded by timeout.
func NewDispatcher(workers int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{timeout: timeout, logger: logger}
	d.group.SetLimit(max(workers, 1))
	return d
}

// Submit starts fn on a free worker. It returns false without running fn
// when every worker is busy.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	detached := context.WithoutCancel(ctx)
	return d.group.TryGo(func() error {
		taskCtx := detached
		if d.timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(detached, d.timeout)
			defer cancel()
		}
		if err := fn(taskCtx); err != nil {
			d.logger.Warn("dispatched task failed", "task", name, "error", err)
		}
		return nil
	})
}

// Drain waits for in-flight tasks until ctx expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package task provides a small recurring background task abstraction with
// explicit start/stop and graceful cancellation: Stop waits for an in-flight
// run to finish rather than tearing it down mid-step.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/memmesh/logging"
)

// Recurring invokes a run function at a fixed interval until stopped. A run
// returning an error is logged and retried on the next tick; the ticker
// itself is the retry mechanism for transient failures.
type Recurring struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecurring creates a stopped recurring task. The name is used only for
// logging.
func NewRecurring(name string, interval time.Duration, run func(ctx context.Context) error, logger logging.Logger) *Recurring {
	return &Recurring{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logging.OrNoOp(logger),
	}
}

// Start launches the background loop. Starting an already-running task is a
// no-op. The loop stops when Stop is called or ctx is cancelled.
func (r *Recurring) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.run(ctx); err != nil && ctx.Err() == nil {
					r.logger.Warn("recurring task run failed", "task", r.name, "error", err)
				}
			}
		}
	}()
	r.logger.Debug("recurring task started", "task", r.name, "interval", r.interval)
}

// Stop cancels the loop and blocks until the current run, if any, returns.
// Stopping a stopped task is a no-op.
func (r *Recurring) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Debug("recurring task stopped", "task", r.name)
}

// Running reports whether the loop is active.
func (r *Recurring) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

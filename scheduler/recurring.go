package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recurring runs an action again and again, interval apart.
//
// Each firing first arms the next timer and only then runs the action, so spacing is
// measured from the start of each run and a slow action may overlap the next one.
// Panics in the action are recovered and logged; the chain keeps going until Stop.
type Recurring struct {
	name     string
	interval time.Duration
	action   func(ctx context.Context)
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	running sync.WaitGroup
}

// NewRecurring creates a stopped task. interval must be positive.
func NewRecurring(name string, interval time.Duration, action func(ctx context.Context), logger *zap.Logger) (*Recurring, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("recurring task %q: interval must be positive, got %s", name, interval)
	}
	if action == nil {
		return nil, fmt.Errorf("recurring task %q: action is nil", name)
	}
	return &Recurring{
		name:     name,
		interval: interval,
		action:   action,
		logger:   logger.With(zap.String("task", name)),
	}, nil
}

// Start arms the first run interval from now. Later calls are no-ops.
func (r *Recurring) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.stopped {
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.armLocked()
}

// Stop cancels the pending timer and the context handed to actions,
// then waits for runs already in progress.
func (r *Recurring) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.running.Wait()
		return
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.running.Wait()
	r.logger.Info("Recurring task stopped")
}

// armLocked replaces the pending timer; r.mu must be held.
func (r *Recurring) armLocked() {
	r.logger.Info("Scheduling next call", zap.Duration("in", r.interval))
	r.timer = time.AfterFunc(r.interval, r.fire)
}

func (r *Recurring) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.running.Add(1)
	r.armLocked()
	ctx := r.ctx
	r.mu.Unlock()

	defer r.running.Done()
	r.logger.Info("Calling task now", zap.Duration("after", r.interval))
	r.invoke(ctx)
}

func (r *Recurring) invoke(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recurring task panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	r.action(ctx)
}

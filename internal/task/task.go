// Package task runs forward policy mutations off the owner loop.
//
// A task captures the policy surface before it starts, runs its function
// on a worker goroutine, captures the surface again and delivers exactly
// one Result on a buffered channel. Only the owner reading that channel
// journals the change.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/rollback"
)

// ErrBusy is returned when a task is already running.
var ErrBusy = errors.New("another change is still running")

// Outcome is what a task function reports back: a human description and
// any explicit undo commands the diff engine cannot derive.
type Outcome struct {
	Description string
	Commands    []string
}

// Func performs one forward mutation.
type Func func(ctx context.Context) (Outcome, error)

// Result is delivered once per task.
type Result struct {
	Action      string
	Description string
	Commands    []string
	Before      rollback.SystemState
	After       rollback.SystemState
	Duration    time.Duration
	Err         error
}

// Changed reports whether the surface differs between Before and After or
// the task supplied explicit undo commands.
func (r Result) Changed() bool {
	return len(r.Commands) > 0 || len(rollback.ComputeInverse(r.Before, r.After)) > 0
}

// Runner admits one task at a time.
type Runner struct {
	mu      sync.Mutex
	busy    bool
	current string

	snapshot func() rollback.SystemState
	logger   *logging.Logger
	timeout  time.Duration
}

// NewRunner creates a runner that snapshots through fn. A zero timeout
// leaves task functions bounded only by the caller's context.
func NewRunner(snapshot func() rollback.SystemState, timeout time.Duration, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.WithComponent("task")
	}
	return &Runner{snapshot: snapshot, timeout: timeout, logger: logger}
}

// Busy reports whether a task is running and which action it is.
func (r *Runner) Busy() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy, r.current
}

// Spawn starts fn on a worker. The Before snapshot is taken before Spawn
// returns.
func (r *Runner) Spawn(ctx context.Context, action string, fn Func) (<-chan Result, error) {
	r.mu.Lock()
	if r.busy {
		current := r.current
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBusy, current)
	}
	r.busy = true
	r.current = action
	r.mu.Unlock()

	before := r.snapshot()
	out := make(chan Result, 1)

	go func() {
		start := clock.Now()
		res := Result{Action: action, Before: before}

		defer func() {
			if p := recover(); p != nil {
				res.Err = fmt.Errorf("task %s panicked: %v", action, p)
				res.After = r.snapshot()
				r.logger.Error("task panicked", "action", action, "panic", p)
			}
			res.Duration = clock.Since(start)

			r.mu.Lock()
			r.busy = false
			r.current = ""
			r.mu.Unlock()

			out <- res
			close(out)
		}()

		runCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		outcome, err := fn(runCtx)
		res.Description = outcome.Description
		res.Commands = outcome.Commands
		res.Err = err
		res.After = r.snapshot()

		if err != nil {
			r.logger.Warn("task failed", "action", action, "error", err)
		} else {
			r.logger.Debug("task finished", "action", action, "description", outcome.Description)
		}
	}()

	return out, nil
}

// Package workbench wires the policy surface, the rollback journal and the
// task runner together. It is the single owner of the journal: the CLI and
// the TUI both drive changes through it.
package workbench

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/selab/internal/advisor"
	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/config"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/rollback"
	"grimm.is/selab/internal/stats"
	"grimm.is/selab/internal/task"
)

// Workbench owns the surface and the journal.
type Workbench struct {
	cfg     *config.Config
	logger  *logging.Logger
	surface *policy.Surface
	journal *rollback.Journal
	tasks   *task.Runner
	advisor *advisor.Advisor
	trend   *stats.Trend
}

// Option customizes New.
type Option func(*options)

type options struct {
	runner    policy.CommandRunner
	observers []rollback.Observer
	store     rollback.Store
	clock     clock.Clock
}

// WithRunner overrides the command runner. Simulation still uses a
// DryRunner unless this is set.
func WithRunner(r policy.CommandRunner) Option {
	return func(o *options) { o.runner = r }
}

// WithObserver attaches a journal observer (audit, metrics).
func WithObserver(obs rollback.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithStore replaces the history file store.
func WithStore(s rollback.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClock sets the clock for journal ids, timestamps and snapshots.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds a workbench from cfg and loads the journal. In simulation the
// surface is filled with the fixed dataset and the SELinux config file is
// never touched.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Workbench, error) {
	if logger == nil {
		logger = logging.WithComponent("workbench")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	runner := o.runner
	if runner == nil {
		if cfg.Simulation {
			runner = policy.NewDryRunner(logger.WithComponent("dryrun"))
		} else {
			runner = policy.DefaultCommandRunner
		}
	}

	surface := policy.NewSurface(runner, cfg.Simulation, logger.WithComponent("policy"))
	if cfg.Simulation {
		surface.Mode.ConfigPath = ""
		surface.LoadSimulationData()
	}

	store := o.store
	if store == nil {
		store = rollback.NewFileStore(cfg.HistoryPath())
	}
	jopts := []rollback.Option{
		rollback.WithMaxHistory(cfg.MaxHistory),
		rollback.WithLogger(logger.WithComponent("journal")),
		rollback.WithExecutor(rollback.NewExecutor(runner, logger.WithComponent("executor"))),
	}
	if o.clock != nil {
		jopts = append(jopts, rollback.WithClock(o.clock))
	}
	for _, obs := range o.observers {
		jopts = append(jopts, rollback.WithObserver(obs))
	}
	journal := rollback.NewJournal(store, jopts...)
	if err := journal.Load(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	w := &Workbench{
		cfg:     cfg,
		logger:  logger,
		surface: surface,
		journal: journal,
		advisor: advisor.New(cfg.TipsFile, logger.WithComponent("advisor")),
		trend:   stats.NewTrend(60),
	}
	w.tasks = task.NewRunner(w.Snapshot, 0, logger.WithComponent("task"))
	return w, nil
}

func (w *Workbench) Config() *config.Config { return w.cfg }
func (w *Workbench) Surface() *policy.Surface { return w.surface }
func (w *Workbench) Journal() *rollback.Journal { return w.journal }
func (w *Workbench) Advisor() *advisor.Advisor { return w.advisor }
func (w *Workbench) Simulated() bool { return w.surface.Simulated() }
func (w *Workbench) Snapshot() rollback.SystemState { return rollback.Capture(w.surface, w.journal.Clock()) }

// RollbackMode is the rollback mode matching the surface.
func (w *Workbench) RollbackMode() rollback.Mode {
	if w.Simulated() {
		return rollback.ModeSimulated
	}
	return rollback.ModeLive
}

// Refresh reloads the surface from the system. No-op in simulation.
func (w *Workbench) Refresh(ctx context.Context) error {
	return w.surface.Refresh(ctx)
}

// Busy reports whether a task is running.
func (w *Workbench) Busy() (bool, string) { return w.tasks.Busy() }

// Submit starts a forward mutation on a worker. The caller hands the
// Result back to Complete on the owner goroutine.
func (w *Workbench) Submit(ctx context.Context, action string, fn task.Func) (<-chan task.Result, error) {
	return w.tasks.Spawn(ctx, action, fn)
}

// Complete journals a finished task. A change is recorded whenever the
// surface moved or the task supplied undo commands, even if the task
// failed part way, so the partial change can still be rolled back.
func (w *Workbench) Complete(res task.Result) (rollback.ChangeRecord, bool) {
	if !res.Changed() {
		return rollback.ChangeRecord{}, false
	}
	desc := res.Description
	if desc == "" {
		desc = res.Action
	}
	rec := w.journal.RecordChange(res.Action, desc, res.Before, res.After, res.Commands)
	return rec, true
}

// Run submits fn and waits for it, journaling the result.
func (w *Workbench) Run(ctx context.Context, action string, fn task.Func) (task.Result, rollback.ChangeRecord, bool, error) {
	ch, err := w.Submit(ctx, action, fn)
	if err != nil {
		return task.Result{}, rollback.ChangeRecord{}, false, err
	}
	res := <-ch
	rec, recorded := w.Complete(res)
	return res, rec, recorded, res.Err
}

// UndoLast rolls back the newest record.
func (w *Workbench) UndoLast(ctx context.Context) (rollback.ChangeRecord, error) {
	marker, err := w.journal.RollbackLast(ctx, w.RollbackMode())
	if err != nil {
		if errors.Is(err, rollback.ErrExternalCommand) {
			w.resync(ctx, nil)
		}
		return marker, err
	}
	w.resync(ctx, &marker.NewState)
	return marker, nil
}

// RollbackTo undoes every record down to and including id. Markers are
// returned newest first.
func (w *Workbench) RollbackTo(ctx context.Context, id string) ([]rollback.ChangeRecord, error) {
	markers, err := w.journal.RollbackToID(ctx, id, w.RollbackMode())
	var target *rollback.SystemState
	if len(markers) > 0 {
		target = &markers[0].NewState
	}
	w.resync(ctx, target)
	return markers, err
}

// resync brings the in-memory surface in line after a rollback: in
// simulation from the restored snapshot, otherwise by reloading.
func (w *Workbench) resync(ctx context.Context, target *rollback.SystemState) {
	if w.Simulated() {
		if target == nil {
			return
		}
		if err := rollback.RestoreState(w.surface, *target); err != nil {
			w.logger.Warn("restore simulated state failed", "error", err)
		}
		return
	}
	if err := w.surface.Refresh(ctx); err != nil {
		w.logger.Warn("refresh after rollback failed", "error", err)
	}
}

// ClearHistory empties the journal.
func (w *Workbench) ClearHistory() { w.journal.ClearHistory() }

// Stats summarizes the surface and journal and records the risk score in
// the trend.
func (w *Workbench) Stats() stats.SystemStats {
	st := stats.Calculate(w.surface, w.journal.History())
	w.trend.Record(st.RiskScore)
	return st
}

// Trend returns the risk score history.
func (w *Workbench) Trend() *stats.Trend { return w.trend }

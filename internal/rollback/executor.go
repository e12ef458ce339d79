package rollback

import (
	"context"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

// Mode selects whether undo commands reach the host.
type Mode int

const (
	// ModeLive runs undo commands through the shell.
	ModeLive Mode = iota
	// ModeSimulated runs nothing; only in-memory state changes.
	ModeSimulated
)

func (m Mode) String() string {
	if m == ModeSimulated {
		return "simulated"
	}
	return "live"
}

// Executor replays a record's undo commands.
type Executor struct {
	runner policy.CommandRunner
	logger *logging.Logger
}

// NewExecutor runs commands as `sh -c CMD` through runner.
func NewExecutor(runner policy.CommandRunner, logger *logging.Logger) *Executor {
	if runner == nil {
		runner = policy.DefaultCommandRunner
	}
	if logger == nil {
		logger = logging.WithComponent("executor")
	}
	return &Executor{runner: runner, logger: logger}
}

// Run executes rec's rollback commands in order. Each command that
// succeeds is appended to rec.AppliedCommands; the first failure stops the
// sequence and is returned as a *CommandError. A record that failed before
// resumes after the commands already applied, as long as they are a prefix
// of its rollback commands; otherwise it starts over. In simulated mode
// nothing runs and nothing is appended.
func (e *Executor) Run(ctx context.Context, rec *ChangeRecord, mode Mode) error {
	if mode == ModeSimulated {
		e.logger.Debug("simulated rollback", "id", rec.ID, "commands", len(rec.RollbackCommands))
		return nil
	}

	start := resumeAt(rec.RollbackCommands, rec.AppliedCommands)
	if start > 0 {
		e.logger.Info("resuming rollback", "id", rec.ID, "skipped", start)
	} else if len(rec.AppliedCommands) > 0 {
		e.logger.Warn("applied commands do not match rollback commands, starting over", "id", rec.ID)
		rec.AppliedCommands = nil
	}

	for i := start; i < len(rec.RollbackCommands); i++ {
		cmd := rec.RollbackCommands[i]
		e.logger.Info("running undo command", "id", rec.ID, "cmd", cmd)
		if err := e.runner.Run(ctx, "sh", "-c", cmd); err != nil {
			e.logger.Error("undo command failed", "id", rec.ID, "cmd", cmd, "error", err)
			return &CommandError{RecordID: rec.ID, Index: i, Command: cmd, Err: err}
		}
		rec.AppliedCommands = append(rec.AppliedCommands, cmd)
	}
	return nil
}

// resumeAt returns len(applied) when applied is a prefix of cmds, else 0.
func resumeAt(cmds, applied []string) int {
	if len(applied) > len(cmds) {
		return 0
	}
	for i, c := range applied {
		if cmds[i] != c {
			return 0
		}
	}
	return len(applied)
}

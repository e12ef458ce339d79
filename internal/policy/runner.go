package policy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"grimm.is/selab/internal/logging"
)

// CommandRunner abstracts policy tool execution.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes actual commands.
type RealCommandRunner struct{}

// DefaultCommandRunner is the default command runner.
var DefaultCommandRunner CommandRunner = &RealCommandRunner{}

// Run executes a command, folding its combined output into the error.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Output executes a command and returns its stdout.
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("command %s failed: %w", name, err)
	}
	return out, nil
}

// DryRunner records commands instead of running them. It backs simulation
// mode: managers still update their in-memory view, nothing touches the
// host policy.
type DryRunner struct {
	mu       sync.Mutex
	commands []string
	logger   *logging.Logger
}

// NewDryRunner creates a runner that only records.
func NewDryRunner(logger *logging.Logger) *DryRunner {
	if logger == nil {
		logger = logging.WithComponent("dry-run")
	}
	return &DryRunner{logger: logger}
}

// Run records the command line.
func (r *DryRunner) Run(ctx context.Context, name string, args ...string) error {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.mu.Lock()
	r.commands = append(r.commands, line)
	r.mu.Unlock()
	r.logger.Debug("simulated command", "cmd", line)
	return nil
}

// Output records the command line and returns no output.
func (r *DryRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, r.Run(ctx, name, args...)
}

// Commands returns the recorded command lines.
func (r *DryRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

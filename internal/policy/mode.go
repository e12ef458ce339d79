package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"grimm.is/selab/internal/logging"
)

// DefaultSELinuxConfig is where the boot-time mode lives.
const DefaultSELinuxConfig = "/etc/selinux/config"

// ErrDisableAtRuntime is returned when asked to disable SELinux without a
// persistent change; that requires editing the config file and a reboot.
var ErrDisableAtRuntime = errors.New("disabling SELinux requires a persistent change and a reboot")

// ModeManager reads and changes the enforcement mode.
type ModeManager struct {
	mu     sync.RWMutex
	runner CommandRunner
	logger *logging.Logger
	mode   Mode

	// ConfigPath is rewritten for persistent changes. Empty disables
	// persistence, which is what simulation uses.
	ConfigPath string
}

// NewModeManager creates a manager that mutates through runner.
func NewModeManager(runner CommandRunner, logger *logging.Logger, configPath string) *ModeManager {
	if logger == nil {
		logger = logging.WithComponent("mode")
	}
	return &ModeManager{runner: runner, logger: logger, mode: ModeEnforcing, ConfigPath: configPath}
}

// Load reads the current mode from getenforce.
func (m *ModeManager) Load(ctx context.Context) error {
	out, err := m.runner.Output(ctx, "getenforce")
	if err != nil {
		return fmt.Errorf("getenforce: %w", err)
	}
	m.Replace(ParseMode(string(out)))
	return nil
}

// Current returns the last known mode.
func (m *ModeManager) Current() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *ModeManager) Replace(mode Mode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}

// Set changes the mode. A runtime change uses setenforce; a persistent one
// rewrites the SELINUX= line of the config file.
func (m *ModeManager) Set(ctx context.Context, mode Mode, persistent bool) error {
	if persistent {
		if err := m.writeConfig(mode); err != nil {
			return err
		}
	} else {
		var arg string
		switch mode {
		case ModeEnforcing:
			arg = "1"
		case ModePermissive:
			arg = "0"
		default:
			return ErrDisableAtRuntime
		}
		if err := m.runner.Run(ctx, "setenforce", arg); err != nil {
			return fmt.Errorf("setenforce %s: %w", arg, err)
		}
	}

	m.Replace(mode)
	m.logger.Info("mode changed", "mode", string(mode), "persistent", persistent)
	return nil
}

// Toggle switches between Enforcing and Permissive at runtime.
func (m *ModeManager) Toggle(ctx context.Context) (Mode, error) {
	next := ModePermissive
	if m.Current() != ModeEnforcing {
		next = ModeEnforcing
	}
	if err := m.Set(ctx, next, false); err != nil {
		return m.Current(), err
	}
	return next, nil
}

// UndoCommand returns the command that restores mode at runtime, or "" for
// Disabled, which cannot be restored that way.
func UndoCommand(mode Mode) string {
	switch mode {
	case ModeEnforcing:
		return "setenforce 1"
	case ModePermissive:
		return "setenforce 0"
	default:
		return ""
	}
}

func (m *ModeManager) writeConfig(mode Mode) error {
	if m.ConfigPath == "" {
		return nil
	}
	line := "SELINUX=" + strings.ToLower(string(mode))

	data, err := os.ReadFile(m.ConfigPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", m.ConfigPath, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	found := false
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "SELINUX=") {
			lines[i] = line
			found = true
		}
	}
	if !found {
		lines = append(lines, line)
	}

	info, err := os.Stat(m.ConfigPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.ConfigPath, []byte(strings.Join(lines, "\n")+"\n"), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", m.ConfigPath, err)
	}
	return nil
}

package policy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/validation"
)

// 400 container         pp
// 100 sandbox           pp disabled
var moduleLine = regexp.MustCompile(`^(\d+)\s+(\S+)\s+\S+(\s+disabled)?\s*$`)

// ModuleManager tracks loaded policy modules.
type ModuleManager struct {
	mu      sync.RWMutex
	runner  CommandRunner
	logger  *logging.Logger
	modules []Module
}

// NewModuleManager creates a manager that mutates through runner.
func NewModuleManager(runner CommandRunner, logger *logging.Logger) *ModuleManager {
	if logger == nil {
		logger = logging.WithComponent("modules")
	}
	return &ModuleManager{runner: runner, logger: logger}
}

// Load replaces the in-memory view with `semodule -lfull`.
func (m *ModuleManager) Load(ctx context.Context) error {
	out, err := m.runner.Output(ctx, "semodule", "-lfull")
	if err != nil {
		return fmt.Errorf("list modules: %w", err)
	}
	parsed := ParseModules(out)
	m.Replace(parsed)
	m.logger.Debug("loaded modules", "count", len(parsed))
	return nil
}

// ParseModules parses `semodule -lfull` output, sorted by name. When a
// module appears at several priorities the highest one wins.
func ParseModules(out []byte) []Module {
	byName := make(map[string]Module)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		mm := moduleLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if mm == nil {
			continue
		}
		prio, _ := strconv.Atoi(mm[1])
		mod := Module{Name: mm[2], Priority: prio, Enabled: mm[3] == ""}
		if prev, ok := byName[mod.Name]; ok && prev.Priority > prio {
			continue
		}
		byName[mod.Name] = mod
	}

	result := make([]Module, 0, len(byName))
	for _, mod := range byName {
		result = append(result, mod)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (m *ModuleManager) List() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Module(nil), m.modules...)
}

func (m *ModuleManager) Get(name string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mod := range m.modules {
		if mod.Name == name {
			return mod, true
		}
	}
	return Module{}, false
}

func (m *ModuleManager) Replace(modules []Module) {
	m.mu.Lock()
	m.modules = append([]Module(nil), modules...)
	m.mu.Unlock()
}

// Enable runs `semodule -e`.
func (m *ModuleManager) Enable(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, true)
}

// Disable runs `semodule -d`.
func (m *ModuleManager) Disable(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, false)
}

// Toggle flips a module and returns its new state.
func (m *ModuleManager) Toggle(ctx context.Context, name string) (Module, error) {
	mod, ok := m.Get(name)
	if !ok {
		return Module{}, fmt.Errorf("unknown module %q", name)
	}
	if err := m.setEnabled(ctx, name, !mod.Enabled); err != nil {
		return Module{}, err
	}
	mod.Enabled = !mod.Enabled
	return mod, nil
}

func (m *ModuleManager) setEnabled(ctx context.Context, name string, enabled bool) error {
	if err := validation.ValidateName(name); err != nil {
		return err
	}
	if _, ok := m.Get(name); !ok {
		return fmt.Errorf("unknown module %q", name)
	}
	flag := "-d"
	if enabled {
		flag = "-e"
	}
	if err := m.runner.Run(ctx, "semodule", flag, name); err != nil {
		return fmt.Errorf("semodule %s %s: %w", flag, name, err)
	}

	m.mu.Lock()
	for i := range m.modules {
		if m.modules[i].Name == name {
			m.modules[i].Enabled = enabled
		}
	}
	m.mu.Unlock()

	m.logger.Info("module updated", "name", name, "enabled", enabled)
	return nil
}

// EnabledCount returns how many modules are enabled.
func (m *ModuleManager) EnabledCount() int {
	n := 0
	for _, mod := range m.List() {
		if mod.Enabled {
			n++
		}
	}
	return n
}

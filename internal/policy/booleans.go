package policy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/validation"
)

// httpd_can_network_connect      (off  ,  off)  Allow httpd to can network connect
var booleanLine = regexp.MustCompile(`^(\S+)\s+\(\s*(on|off)\s*,\s*(on|off)\s*\)\s*(.*)$`)

// BooleanManager tracks SELinux booleans.
type BooleanManager struct {
	mu       sync.RWMutex
	runner   CommandRunner
	logger   *logging.Logger
	booleans []Boolean
}

// NewBooleanManager creates a manager that mutates through runner.
func NewBooleanManager(runner CommandRunner, logger *logging.Logger) *BooleanManager {
	if logger == nil {
		logger = logging.WithComponent("booleans")
	}
	return &BooleanManager{runner: runner, logger: logger}
}

// Load replaces the in-memory view with `semanage boolean -l`.
func (m *BooleanManager) Load(ctx context.Context) error {
	out, err := m.runner.Output(ctx, "semanage", "boolean", "-l")
	if err != nil {
		return fmt.Errorf("list booleans: %w", err)
	}
	parsed := ParseBooleans(out)
	m.Replace(parsed)
	m.logger.Debug("loaded booleans", "count", len(parsed))
	return nil
}

// ParseBooleans parses `semanage boolean -l` output. Header and unparsable
// lines are skipped. The result is sorted by name.
func ParseBooleans(out []byte) []Boolean {
	var result []Boolean
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		mm := booleanLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if mm == nil {
			continue
		}
		result = append(result, Boolean{
			Name:         mm[1],
			CurrentValue: mm[2] == "on",
			DefaultValue: mm[3] == "on",
			Persistent:   true,
			Description:  strings.TrimSpace(mm[4]),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// List returns a copy of the booleans in display order.
func (m *BooleanManager) List() []Boolean {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Boolean(nil), m.booleans...)
}

// Get looks up a boolean by name.
func (m *BooleanManager) Get(name string) (Boolean, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.booleans {
		if b.Name == name {
			return b, true
		}
	}
	return Boolean{}, false
}

// Replace swaps the in-memory collection.
func (m *BooleanManager) Replace(booleans []Boolean) {
	m.mu.Lock()
	m.booleans = append([]Boolean(nil), booleans...)
	m.mu.Unlock()
}

// Set changes a boolean persistently.
func (m *BooleanManager) Set(ctx context.Context, name string, value bool) error {
	if err := validation.ValidateName(name); err != nil {
		return err
	}
	if _, ok := m.Get(name); !ok {
		return fmt.Errorf("unknown boolean %q", name)
	}
	if err := m.runner.Run(ctx, "setsebool", "-P", name, OnOff(value)); err != nil {
		return fmt.Errorf("set boolean %s: %w", name, err)
	}

	m.mu.Lock()
	for i := range m.booleans {
		if m.booleans[i].Name == name {
			m.booleans[i].CurrentValue = value
			m.booleans[i].Persistent = true
		}
	}
	m.mu.Unlock()

	m.logger.Info("boolean set", "name", name, "value", OnOff(value))
	return nil
}

// Toggle flips a boolean and returns its new state.
func (m *BooleanManager) Toggle(ctx context.Context, name string) (Boolean, error) {
	b, ok := m.Get(name)
	if !ok {
		return Boolean{}, fmt.Errorf("unknown boolean %q", name)
	}
	if err := m.Set(ctx, name, !b.CurrentValue); err != nil {
		return Boolean{}, err
	}
	b.CurrentValue = !b.CurrentValue
	return b, nil
}

// SetMany applies several values in name order, stopping at the first
// failure. It returns the names actually changed.
func (m *BooleanManager) SetMany(ctx context.Context, values map[string]bool) ([]string, error) {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	var changed []string
	for _, n := range names {
		if b, ok := m.Get(n); ok && b.CurrentValue == values[n] {
			continue
		}
		if err := m.Set(ctx, n, values[n]); err != nil {
			return changed, err
		}
		changed = append(changed, n)
	}
	return changed, nil
}

// Changed returns booleans whose current value differs from the default.
func (m *BooleanManager) Changed() []Boolean {
	var out []Boolean
	for _, b := range m.List() {
		if b.CurrentValue != b.DefaultValue {
			out = append(out, b)
		}
	}
	return out
}

// Search filters by case-insensitive substring on name or description.
func (m *BooleanManager) Search(query string) []Boolean {
	all := m.List()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all
	}
	var out []Boolean
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Name), q) || strings.Contains(strings.ToLower(b.Description), q) {
			out = append(out, b)
		}
	}
	return out
}

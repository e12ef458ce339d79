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

// /var/www(/.*)?     all files     system_u:object_r:httpd_sys_content_t:s0
var fcontextLine = regexp.MustCompile(`^(/\S*)\s+(.+?)\s+[a-zA-Z0-9_]+:[a-zA-Z0-9_]+:([a-zA-Z0-9_]+)(?::\S+)?$`)

// FileContextRequest is the validated input for adding a rule.
type FileContextRequest struct {
	Path  string `json:"path" validate:"required,fcpath"`
	Label string `json:"label" validate:"required,selinux_type"`
}

// FileContextManager tracks file-context rules.
type FileContextManager struct {
	mu       sync.RWMutex
	runner   CommandRunner
	logger   *logging.Logger
	contexts []FileContext
}

// NewFileContextManager creates a manager that mutates through runner.
func NewFileContextManager(runner CommandRunner, logger *logging.Logger) *FileContextManager {
	if logger == nil {
		logger = logging.WithComponent("fcontext")
	}
	return &FileContextManager{runner: runner, logger: logger}
}

// Load replaces the in-memory view with `semanage fcontext -l`.
func (m *FileContextManager) Load(ctx context.Context) error {
	out, err := m.runner.Output(ctx, "semanage", "fcontext", "-l")
	if err != nil {
		return fmt.Errorf("list file contexts: %w", err)
	}
	parsed := ParseFileContexts(out)
	m.Replace(parsed)
	m.logger.Debug("loaded file contexts", "count", len(parsed))
	return nil
}

// ParseFileContexts parses `semanage fcontext -l` output. Entries without a
// context (<<None>>) are skipped; duplicates collapse.
func ParseFileContexts(out []byte) []FileContext {
	seen := make(map[string]bool)
	var result []FileContext
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		mm := fcontextLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if mm == nil {
			continue
		}
		fc := FileContext{Path: mm[1], Label: mm[3]}
		if seen[fc.Canonical()] {
			continue
		}
		seen[fc.Canonical()] = true
		result = append(result, fc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Canonical() < result[j].Canonical() })
	return result
}

func (m *FileContextManager) List() []FileContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FileContext(nil), m.contexts...)
}

func (m *FileContextManager) Replace(contexts []FileContext) {
	m.mu.Lock()
	m.contexts = append([]FileContext(nil), contexts...)
	m.mu.Unlock()
}

// Lookup returns the rule for path, if any.
func (m *FileContextManager) Lookup(path string) (FileContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fc := range m.contexts {
		if fc.Path == path {
			return fc, true
		}
	}
	return FileContext{}, false
}

// Add defines (or relabels) a rule and relabels the path on disk.
func (m *FileContextManager) Add(ctx context.Context, path, label string) error {
	if err := validation.Struct(FileContextRequest{Path: path, Label: label}); err != nil {
		return err
	}

	op := "-a"
	if existing, ok := m.Lookup(path); ok {
		if existing.Label == label {
			return fmt.Errorf("file context %s already labelled %s", path, label)
		}
		op = "-m"
	}
	if err := m.runner.Run(ctx, "semanage", "fcontext", op, "-t", label, path); err != nil {
		return fmt.Errorf("semanage fcontext %s %s: %w", op, path, err)
	}
	if err := m.runner.Run(ctx, "restorecon", "-v", path); err != nil {
		m.logger.Warn("restorecon failed", "path", path, "error", err)
	}

	m.mu.Lock()
	kept := m.contexts[:0]
	for _, fc := range m.contexts {
		if fc.Path != path {
			kept = append(kept, fc)
		}
	}
	m.contexts = append(kept, FileContext{Path: path, Label: label})
	sort.Slice(m.contexts, func(i, j int) bool { return m.contexts[i].Canonical() < m.contexts[j].Canonical() })
	m.mu.Unlock()

	m.logger.Info("file context added", "path", path, "label", label)
	return nil
}

// Remove deletes the rule for path.
func (m *FileContextManager) Remove(ctx context.Context, path string) error {
	if err := validation.ValidateFileContextPath(path); err != nil {
		return err
	}
	if _, ok := m.Lookup(path); !ok {
		return fmt.Errorf("no file context for %s", path)
	}
	if err := m.runner.Run(ctx, "semanage", "fcontext", "-d", path); err != nil {
		return fmt.Errorf("semanage fcontext -d %s: %w", path, err)
	}

	m.mu.Lock()
	kept := m.contexts[:0]
	for _, fc := range m.contexts {
		if fc.Path != path {
			kept = append(kept, fc)
		}
	}
	m.contexts = kept
	m.mu.Unlock()

	m.logger.Info("file context removed", "path", path)
	return nil
}

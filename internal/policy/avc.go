package policy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"grimm.is/selab/internal/logging"
)

// Severity ranks an AVC denial.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// AVCAlert is one parsed denial.
type AVCAlert struct {
	Timestamp     string   `json:"timestamp"`
	SourceContext string   `json:"source_context"`
	TargetContext string   `json:"target_context"`
	TargetClass   string   `json:"target_class"`
	Permission    string   `json:"permission"`
	Comm          string   `json:"comm"`
	Path          string   `json:"path"`
	Severity      Severity `json:"severity"`
}

// SourceType returns the type field of the source context.
func (a AVCAlert) SourceType() string {
	return contextType(a.SourceContext)
}

// TargetType returns the type field of the target context.
func (a AVCAlert) TargetType() string {
	return contextType(a.TargetContext)
}

func contextType(ctx string) string {
	parts := strings.Split(ctx, ":")
	if len(parts) >= 3 {
		return parts[2]
	}
	return ctx
}

// Solution proposes a local policy module that would allow a denial.
type Solution struct {
	Description   string   `json:"description"`
	ModuleName    string   `json:"module_name"`
	ModuleContent string   `json:"module_content"`
	Commands      []string `json:"commands"`
	UndoCommands  []string `json:"undo_commands"`
}

var (
	avcHeader = regexp.MustCompile(`audit\((\d+)(?:\.\d+)?:\d+\)`)
	avcPerms  = regexp.MustCompile(`denied\s+\{\s*([^}]+?)\s*\}`)
	avcField  = regexp.MustCompile(`(\w+)=("[^"]*"|\S+)`)
)

var highRiskPerms = map[string]bool{
	"execute": true, "execmem": true, "execstack": true, "execheap": true,
	"write": true, "create": true, "unlink": true, "setuid": true,
	"setgid": true, "sys_admin": true, "ptrace": true, "module_load": true,
}

var lowRiskPerms = map[string]bool{
	"getattr": true, "search": true, "ioctl": true,
}

// ClassifySeverity ranks a denial by the permission that was refused.
func ClassifySeverity(permission, class string) Severity {
	perm := strings.Fields(permission)
	sev := SeverityLow
	for _, p := range perm {
		switch {
		case highRiskPerms[p]:
			return SeverityHigh
		case lowRiskPerms[p]:
		default:
			sev = SeverityMedium
		}
	}
	if sev == SeverityLow && class == "capability" {
		return SeverityMedium
	}
	return sev
}

// AVCManager holds recent AVC denials.
type AVCManager struct {
	mu     sync.RWMutex
	runner CommandRunner
	logger *logging.Logger
	alerts []AVCAlert
}

// NewAVCManager creates a manager that reads through runner.
func NewAVCManager(runner CommandRunner, logger *logging.Logger) *AVCManager {
	if logger == nil {
		logger = logging.WithComponent("avc")
	}
	return &AVCManager{runner: runner, logger: logger}
}

// Load reads recent denials with ausearch. ausearch exits non-zero when
// nothing matches, so a failure yields an empty list.
func (m *AVCManager) Load(ctx context.Context) error {
	out, err := m.runner.Output(ctx, "ausearch", "-m", "AVC", "-ts", "recent")
	if err != nil {
		m.logger.Debug("ausearch returned no denials", "error", err)
		m.Replace(nil)
		return nil
	}
	alerts := ParseAVC(out)
	m.Replace(alerts)
	m.logger.Debug("loaded AVC denials", "count", len(alerts))
	return nil
}

// ParseAVC extracts denials from ausearch output, newest last as logged.
func ParseAVC(out []byte) []AVCAlert {
	var alerts []AVCAlert
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "avc:") || !strings.Contains(line, "denied") {
			continue
		}
		perms := avcPerms.FindStringSubmatch(line)
		if perms == nil {
			continue
		}

		fields := make(map[string]string)
		for _, f := range avcField.FindAllStringSubmatch(line, -1) {
			fields[f[1]] = strings.Trim(f[2], `"`)
		}

		alert := AVCAlert{
			SourceContext: fields["scontext"],
			TargetContext: fields["tcontext"],
			TargetClass:   fields["tclass"],
			Permission:    perms[1],
			Comm:          fields["comm"],
			Path:          fields["path"],
		}
		if alert.Path == "" {
			alert.Path = fields["name"]
		}
		if h := avcHeader.FindStringSubmatch(line); h != nil {
			if sec, err := strconv.ParseInt(h[1], 10, 64); err == nil {
				alert.Timestamp = time.Unix(sec, 0).Format("2006-01-02 15:04:05")
			}
		}
		alert.Severity = ClassifySeverity(alert.Permission, alert.TargetClass)
		alerts = append(alerts, alert)
	}
	return alerts
}

func (m *AVCManager) List() []AVCAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AVCAlert(nil), m.alerts...)
}

func (m *AVCManager) Replace(alerts []AVCAlert) {
	m.mu.Lock()
	m.alerts = append([]AVCAlert(nil), alerts...)
	m.mu.Unlock()
}

// CountBySeverity tallies alerts per severity.
func (m *AVCManager) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, a := range m.List() {
		counts[a.Severity]++
	}
	return counts
}

var moduleNameSanitizer = regexp.MustCompile(`[^a-z0-9_]`)

// Analyze proposes a local module allowing the denial, with the commands
// to build and install it and the command that removes it again.
func (m *AVCManager) Analyze(alert AVCAlert) Solution {
	comm := alert.Comm
	if comm == "" {
		comm = alert.SourceType()
	}
	name := "selab_" + moduleNameSanitizer.ReplaceAllString(strings.ToLower(comm), "_")

	content := fmt.Sprintf("module %s 1.0;\n\nrequire {\n\ttype %s;\n\ttype %s;\n\tclass %s { %s };\n}\n\nallow %s %s:%s { %s };\n",
		name, alert.SourceType(), alert.TargetType(), alert.TargetClass, alert.Permission,
		alert.SourceType(), alert.TargetType(), alert.TargetClass, alert.Permission)

	return Solution{
		Description:   fmt.Sprintf("Allow %s to %s %s (%s)", alert.SourceType(), alert.Permission, alert.TargetType(), alert.TargetClass),
		ModuleName:    name,
		ModuleContent: content,
		Commands: []string{
			fmt.Sprintf("ausearch -m AVC -c %s --raw | audit2allow -M %s", ShellQuote(comm), name),
			fmt.Sprintf("semodule -i %s.pp", name),
		},
		UndoCommands: []string{fmt.Sprintf("semodule -r %s", name)},
	}
}

// Apply runs a solution's commands through the shell, stopping at the
// first failure. It returns the commands that ran successfully.
func (m *AVCManager) Apply(ctx context.Context, sol Solution) ([]string, error) {
	var done []string
	for _, cmd := range sol.Commands {
		if err := m.runner.Run(ctx, "sh", "-c", cmd); err != nil {
			return done, fmt.Errorf("apply %s: %w", sol.ModuleName, err)
		}
		done = append(done, cmd)
	}
	m.logger.Info("AVC solution applied", "module", sol.ModuleName)
	return done, nil
}

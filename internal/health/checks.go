package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"grimm.is/selab/internal/policy"
)

// CoreTools must be present for the workbench to change anything.
var CoreTools = []string{"getenforce", "setenforce", "getsebool", "setsebool", "semanage", "semodule", "restorecon"}

// AuditTools are only needed for AVC alerts.
var AuditTools = []string{"ausearch", "audit2allow"}

// LookPath is swapped in tests.
var LookPath = exec.LookPath

// ToolsCheck reports missing policy tools. A simulated session needs none.
func ToolsCheck(simulated bool) CheckFunc {
	return func(ctx context.Context) Check {
		if simulated {
			return Check{Status: StatusHealthy, Message: "simulation: no tools required"}
		}
		if missing := missingTools(CoreTools); len(missing) > 0 {
			return Check{Status: StatusUnhealthy, Message: "missing: " + strings.Join(missing, ", ")}
		}
		if missing := missingTools(AuditTools); len(missing) > 0 {
			return Check{Status: StatusDegraded, Message: "AVC analysis unavailable, missing: " + strings.Join(missing, ", ")}
		}
		return Check{Status: StatusHealthy}
	}
}

func missingTools(names []string) []string {
	var missing []string
	for _, n := range names {
		if _, err := LookPath(n); err != nil {
			missing = append(missing, n)
		}
	}
	return missing
}

// ModeSource yields the current enforcement mode.
type ModeSource interface {
	CurrentMode() policy.Mode
}

// ModeCheck flags a host that is not enforcing.
func ModeCheck(src ModeSource) CheckFunc {
	return func(ctx context.Context) Check {
		switch mode := src.CurrentMode(); mode {
		case policy.ModeDisabled:
			return Check{Status: StatusUnhealthy, Message: "SELinux is disabled"}
		case policy.ModePermissive:
			return Check{Status: StatusDegraded, Message: "SELinux is permissive; denials are logged, not enforced"}
		default:
			return Check{Status: StatusHealthy, Message: string(mode)}
		}
	}
}

// WritableCheck verifies that the directory holding path accepts new files.
func WritableCheck(path string) CheckFunc {
	return func(ctx context.Context) Check {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		f, err := os.CreateTemp(dir, ".selab-probe-*")
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return Check{Status: StatusHealthy, Message: dir}
	}
}

// EventCounter is satisfied by the audit store.
type EventCounter interface {
	Count() (int64, error)
}

// AuditCheck reports whether the audit trail is readable. A nil counter
// means the trail failed to open.
func AuditCheck(store EventCounter) CheckFunc {
	return func(ctx context.Context) Check {
		if store == nil {
			return Check{Status: StatusDegraded, Message: "audit trail disabled"}
		}
		n, err := store.Count()
		if err != nil {
			return Check{Status: StatusDegraded, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d events", n)}
	}
}

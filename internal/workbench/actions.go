package workbench

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/profile"
	"grimm.is/selab/internal/task"
)

// Journal action names.
const (
	ActionBoolean     = "Boolean"
	ActionModule      = "Module"
	ActionMode        = "SELinux mode"
	ActionFileContext = "File context"
	ActionPort        = "Port"
	ActionAVC         = "AVC fix"
	ActionProfile     = "Profile"
	ActionHarden      = "Hardening"
)

// The functions below build task functions for Submit and Run. Undo
// commands for booleans, modules, file contexts and ports come from the
// snapshot diff; the rest supply them explicitly.

// ToggleBoolean flips a boolean.
func (w *Workbench) ToggleBoolean(name string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		b, err := w.surface.Booleans.Toggle(ctx, name)
		if err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Description: fmt.Sprintf("Set %s to %s", name, policy.OnOff(b.CurrentValue))}, nil
	}
}

// ToggleModule enables a disabled module or disables an enabled one.
func (w *Workbench) ToggleModule(name string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		m, err := w.surface.Modules.Toggle(ctx, name)
		if err != nil {
			return task.Outcome{}, err
		}
		verb := "Disabled"
		if m.Enabled {
			verb = "Enabled"
		}
		return task.Outcome{Description: fmt.Sprintf("%s module %s", verb, name)}, nil
	}
}

// ToggleMode switches between Enforcing and Permissive. Snapshots do not
// diff the mode, so the undo command is explicit.
func (w *Workbench) ToggleMode() task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		prev := w.surface.Mode.Current()
		next, err := w.surface.Mode.Toggle(ctx)
		if err != nil {
			return task.Outcome{}, err
		}
		out := task.Outcome{Description: fmt.Sprintf("SELinux mode %s -> %s", prev, next)}
		if undo := policy.UndoCommand(prev); undo != "" {
			out.Commands = []string{undo}
		}
		return out, nil
	}
}

// AddFileContext adds or relabels a file-context rule.
func (w *Workbench) AddFileContext(path, label string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		if err := w.surface.FileContexts.Add(ctx, path, label); err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Description: fmt.Sprintf("Added context %s for %s", label, path)}, nil
	}
}

// RemoveFileContext deletes the rule for path.
func (w *Workbench) RemoveFileContext(path string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		if err := w.surface.FileContexts.Remove(ctx, path); err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Description: "Removed context " + path}, nil
	}
}

// AddPort adds or relabels a port rule.
func (w *Workbench) AddPort(port, proto, label string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		if err := w.surface.Ports.Add(ctx, port, proto, label); err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Description: fmt.Sprintf("Added port %s/%s as %s", port, proto, label)}, nil
	}
}

// RemovePort deletes a port rule.
func (w *Workbench) RemovePort(port, proto string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		if err := w.surface.Ports.Remove(ctx, port, proto); err != nil {
			return task.Outcome{}, err
		}
		return task.Outcome{Description: fmt.Sprintf("Removed port %s/%s", port, proto)}, nil
	}
}

// ApplySolution installs the local module proposed for a denial. The undo
// command is only returned once the module install itself has run.
func (w *Workbench) ApplySolution(alert policy.AVCAlert) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		sol := w.surface.AVC.Analyze(alert)
		done, err := w.surface.AVC.Apply(ctx, sol)
		out := task.Outcome{Description: "Applied: " + sol.Description}
		if len(done) == len(sol.Commands) {
			out.Commands = sol.UndoCommands
		}
		return out, err
	}
}

// ApplyProfile brings the surface in line with p.
func (w *Workbench) ApplyProfile(p profile.Profile) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		undo, err := profile.Apply(ctx, p, w.surface)
		name := p.Name
		if name == "" {
			name = "unnamed"
		}
		return task.Outcome{Description: "Applied profile " + name, Commands: undo}, err
	}
}

// Harden applies a boolean preset. Skipped names are reported through
// skipped once the task has finished.
func (w *Workbench) Harden(p profile.Preset, skipped *[]string) task.Func {
	return func(ctx context.Context) (task.Outcome, error) {
		undo, missing, err := profile.Harden(ctx, p, w.surface.Booleans)
		if skipped != nil {
			*skipped = missing
		}
		desc := "Applied " + p.Name
		if len(missing) > 0 {
			desc += " (skipped " + strings.Join(missing, ", ") + ")"
		}
		return task.Outcome{Description: desc, Commands: undo}, err
	}
}

// SafePreset returns the safe-defaults preset with config overrides.
func (w *Workbench) SafePreset() profile.Preset {
	return profile.SafeDefaults(w.cfg.SafeBooleanMap())
}

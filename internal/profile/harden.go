package profile

import (
	"context"
	"fmt"
	"sort"

	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/rollback"
)

// Preset is a named set of boolean values.
type Preset struct {
	Name     string
	Booleans map[string]bool
}

// SafeDefaults turns off web access to home directories and ssh keysign.
// overrides, when non-empty, replaces the built-in values.
func SafeDefaults(overrides map[string]bool) Preset {
	if len(overrides) > 0 {
		return Preset{Name: "safe defaults", Booleans: overrides}
	}
	return Preset{Name: "safe defaults", Booleans: map[string]bool{
		"httpd_read_user_content": false,
		"httpd_enable_homedirs":   false,
		"allow_ssh_keysign":       false,
	}}
}

// Restrictive enables the deny_* and secure_mode booleans.
func Restrictive() Preset {
	return Preset{Name: "restrictive", Booleans: map[string]bool{
		"deny_ptrace":  true,
		"deny_execmem": true,
		"secure_mode":  true,
	}}
}

// Harden applies the preset to the booleans the system knows about and
// returns undo commands for the ones that changed. Unknown names are
// reported in skipped.
func Harden(ctx context.Context, p Preset, booleans *policy.BooleanManager) (undo, skipped []string, err error) {
	values := make(map[string]bool, len(p.Booleans))
	previous := make(map[string]bool, len(p.Booleans))
	for name, v := range p.Booleans {
		b, ok := booleans.Get(name)
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		values[name] = v
		previous[name] = b.CurrentValue
	}
	sort.Strings(skipped)

	changed, err := booleans.SetMany(ctx, values)
	for _, name := range changed {
		undo = append(undo, rollback.BooleanCommand(name, previous[name]))
	}
	if err != nil {
		return undo, skipped, fmt.Errorf("apply %s: %w", p.Name, err)
	}
	return undo, skipped, nil
}

// Package rollback implements the change journal: snapshots of the policy
// surface, the inverse-command diff engine, durable bounded history and
// cascading undo.
package rollback

import (
	"fmt"
	"time"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/policy"
)

// SystemState is a full point-in-time copy of the policy surface.
type SystemState struct {
	Timestamp    string           `json:"timestamp"`
	SELinuxMode  string           `json:"selinux_mode"`
	Booleans     []policy.Boolean `json:"booleans"`
	Modules      []policy.Module  `json:"modules"`
	FileContexts []string         `json:"file_contexts"`
	Ports        []string         `json:"ports"`
}

// Surface is what the snapshotter reads.
type Surface interface {
	CurrentMode() policy.Mode
	BooleanValues() []policy.Boolean
	ModuleStates() []policy.Module
	FileContextRules() []policy.FileContext
	PortRules() []policy.Port
}

// Restorer accepts a snapshot's contents back into in-memory managers.
type Restorer interface {
	Restore(mode policy.Mode, booleans, modules map[string]bool, fcontexts []policy.FileContext, ports []policy.Port)
}

// Capture snapshots src, stamped by c (the default clock when nil). The
// result shares no storage with src.
func Capture(src Surface, c clock.Clock) SystemState {
	if c == nil {
		c = clock.Default
	}
	s := SystemState{
		Timestamp:   c.Now().UTC().Format(time.RFC3339),
		SELinuxMode: string(src.CurrentMode()),
		Booleans:    append([]policy.Boolean{}, src.BooleanValues()...),
		Modules:     append([]policy.Module{}, src.ModuleStates()...),
	}

	fcs := src.FileContextRules()
	s.FileContexts = make([]string, 0, len(fcs))
	for _, fc := range fcs {
		s.FileContexts = append(s.FileContexts, fc.Canonical())
	}

	ports := src.PortRules()
	s.Ports = make([]string, 0, len(ports))
	for _, p := range ports {
		s.Ports = append(s.Ports, p.Canonical())
	}
	return s
}

// Clone returns a deep copy.
func (s SystemState) Clone() SystemState {
	return SystemState{
		Timestamp:    s.Timestamp,
		SELinuxMode:  s.SELinuxMode,
		Booleans:     append([]policy.Boolean{}, s.Booleans...),
		Modules:      append([]policy.Module{}, s.Modules...),
		FileContexts: append([]string{}, s.FileContexts...),
		Ports:        append([]string{}, s.Ports...),
	}
}

// BooleanMap returns name to current value.
func (s SystemState) BooleanMap() map[string]bool {
	m := make(map[string]bool, len(s.Booleans))
	for _, b := range s.Booleans {
		m[b.Name] = b.CurrentValue
	}
	return m
}

// ModuleMap returns name to enabled flag.
func (s SystemState) ModuleMap() map[string]bool {
	m := make(map[string]bool, len(s.Modules))
	for _, mod := range s.Modules {
		m[mod.Name] = mod.Enabled
	}
	return m
}

// RestoreState pushes a snapshot into dst. It fails without touching dst
// when a canonical rule string cannot be parsed.
func RestoreState(dst Restorer, s SystemState) error {
	fcs := make([]policy.FileContext, 0, len(s.FileContexts))
	for _, raw := range s.FileContexts {
		fc, err := policy.ParseFileContext(raw)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		fcs = append(fcs, fc)
	}
	ports := make([]policy.Port, 0, len(s.Ports))
	for _, raw := range s.Ports {
		p, err := policy.ParsePort(raw)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		ports = append(ports, p)
	}

	var mode policy.Mode
	if s.SELinuxMode != "" {
		mode = policy.ParseMode(s.SELinuxMode)
	}
	dst.Restore(mode, s.BooleanMap(), s.ModuleMap(), fcs, ports)
	return nil
}

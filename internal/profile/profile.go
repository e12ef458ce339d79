// Package profile exports the policy surface to a file, applies a saved
// profile back, and runs the hardening presets.
//
// Apply and Harden return the undo commands for what they actually
// changed. Callers pass those to the journal as explicit commands.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/rollback"
)

// BooleanSetting is a boolean value in a profile.
type BooleanSetting struct {
	Name  string `json:"name" yaml:"name"`
	Value bool   `json:"value" yaml:"value"`
}

// Profile is a portable description of the surface.
type Profile struct {
	Name         string               `json:"name" yaml:"name"`
	Description  string               `json:"description" yaml:"description"`
	Timestamp    string               `json:"timestamp" yaml:"timestamp"`
	Booleans     []BooleanSetting     `json:"booleans" yaml:"booleans"`
	Modules      []string             `json:"modules" yaml:"modules"`
	FileContexts []policy.FileContext `json:"file_contexts" yaml:"file_contexts"`
	Ports        []policy.Port        `json:"ports" yaml:"ports"`
}

// Export captures src. Only enabled modules are listed.
func Export(name, description string, src rollback.Surface) Profile {
	p := Profile{
		Name:        name,
		Description: description,
		Timestamp:   clock.Now().UTC().Format(time.RFC3339),
	}
	for _, b := range src.BooleanValues() {
		p.Booleans = append(p.Booleans, BooleanSetting{Name: b.Name, Value: b.CurrentValue})
	}
	for _, m := range src.ModuleStates() {
		if m.Enabled {
			p.Modules = append(p.Modules, m.Name)
		}
	}
	p.FileContexts = append(p.FileContexts, src.FileContextRules()...)
	p.Ports = append(p.Ports, src.PortRules()...)
	return p
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Save writes p as YAML for .yaml/.yml paths and as JSON otherwise.
func Save(p Profile, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(p)
	} else {
		data, err = json.MarshalIndent(p, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Load reads a profile written by Save.
func Load(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

// Apply brings s in line with p. Booleans are set to the profile's values,
// listed modules are enabled, and missing file-context and port rules are
// added; rules with a different label are relabelled. Nothing is removed.
// On error the commands for the steps that did succeed are returned.
func Apply(ctx context.Context, p Profile, s *policy.Surface) ([]string, error) {
	var undo []string

	values := make(map[string]bool, len(p.Booleans))
	previous := make(map[string]bool, len(p.Booleans))
	for _, b := range p.Booleans {
		cur, ok := s.Booleans.Get(b.Name)
		if !ok {
			continue
		}
		values[b.Name] = b.Value
		previous[b.Name] = cur.CurrentValue
	}
	changed, err := s.Booleans.SetMany(ctx, values)
	for _, name := range changed {
		undo = append(undo, rollback.BooleanCommand(name, previous[name]))
	}
	if err != nil {
		return undo, fmt.Errorf("apply booleans: %w", err)
	}

	mods := append([]string(nil), p.Modules...)
	sort.Strings(mods)
	for _, name := range mods {
		m, ok := s.Modules.Get(name)
		if !ok || m.Enabled {
			continue
		}
		if err := s.Modules.Enable(ctx, name); err != nil {
			return undo, fmt.Errorf("apply modules: %w", err)
		}
		undo = append(undo, rollback.ModuleCommand(name, false))
	}

	for _, fc := range p.FileContexts {
		existing, ok := s.FileContexts.Lookup(fc.Path)
		if ok && existing.Label == fc.Label {
			continue
		}
		if err := s.FileContexts.Add(ctx, fc.Path, fc.Label); err != nil {
			return undo, fmt.Errorf("apply file contexts: %w", err)
		}
		undo = append(undo, rollback.FileContextDeleteCommand(fc.Path))
		if ok {
			undo = append(undo, rollback.FileContextAddCommands(existing)...)
		}
	}

	for _, port := range p.Ports {
		existing, ok := s.Ports.Lookup(port.Port, port.Protocol)
		if ok && existing.Label == port.Label {
			continue
		}
		if err := s.Ports.Add(ctx, port.Port, port.Protocol, port.Label); err != nil {
			return undo, fmt.Errorf("apply ports: %w", err)
		}
		undo = append(undo, rollback.PortDeleteCommand(port.Port, port.Protocol))
		if ok {
			undo = append(undo, rollback.PortAddCommand(existing))
		}
	}

	return undo, nil
}

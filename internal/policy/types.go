// Package policy holds the SELinux setting managers: booleans, policy
// modules, file-context rules, port rules, enforcement mode and AVC denials.
//
// Each manager keeps an ordered in-memory view of its settings and performs
// forward mutations by invoking the policy tools through a CommandRunner.
// Managers are safe for concurrent use: a background task may mutate one
// while the owner loop reads it for display or snapshots.
package policy

import (
	"fmt"
	"strings"
)

// Boolean is one SELinux boolean as reported by semanage.
type Boolean struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	CurrentValue bool   `json:"current_value" yaml:"current_value"`
	DefaultValue bool   `json:"default_value" yaml:"default_value"`
	Persistent   bool   `json:"persistent" yaml:"persistent"`
}

// Module is one loaded policy module.
type Module struct {
	Name     string `json:"name" yaml:"name"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Priority int    `json:"priority" yaml:"priority"`
}

// FileContext maps a path specification to a file type label.
type FileContext struct {
	Path  string `json:"path" yaml:"path"`
	Label string `json:"label" yaml:"label"`
}

// Canonical returns the "path:label" form used in snapshots.
func (f FileContext) Canonical() string {
	return f.Path + ":" + f.Label
}

// ParseFileContext parses the "path:label" form. The label is taken after
// the last colon so paths containing colons survive.
func ParseFileContext(s string) (FileContext, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return FileContext{}, fmt.Errorf("malformed file context %q", s)
	}
	return FileContext{Path: s[:i], Label: s[i+1:]}, nil
}

// Port maps a port (or range) and protocol to a port type label.
type Port struct {
	Port     string `json:"port" yaml:"port"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Label    string `json:"label" yaml:"label"`
}

// Canonical returns the "port/protocol:label" form used in snapshots.
func (p Port) Canonical() string {
	return p.Port + "/" + p.Protocol + ":" + p.Label
}

// ParsePort parses the "port/protocol:label" form.
func ParsePort(s string) (Port, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Port{}, fmt.Errorf("malformed port rule %q", s)
	}
	portProto, label := s[:i], s[i+1:]
	j := strings.Index(portProto, "/")
	if j <= 0 || j == len(portProto)-1 {
		return Port{}, fmt.Errorf("malformed port rule %q", s)
	}
	return Port{Port: portProto[:j], Protocol: portProto[j+1:], Label: label}, nil
}

// Mode is the SELinux enforcement mode.
type Mode string

const (
	ModeEnforcing  Mode = "Enforcing"
	ModePermissive Mode = "Permissive"
	ModeDisabled   Mode = "Disabled"
)

// ParseMode maps getenforce output to a Mode. Unknown input is treated as
// Enforcing, the safe assumption.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permissive":
		return ModePermissive
	case "disabled":
		return ModeDisabled
	default:
		return ModeEnforcing
	}
}

const shellMeta = " \t\n'\"\\$`;&|<>()*?[]{}#~!"

// ShellQuote single-quotes s when it contains shell metacharacters.
func ShellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, shellMeta) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// OnOff renders a boolean the way setsebool expects it.
func OnOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

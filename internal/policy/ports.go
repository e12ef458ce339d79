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

// http_port_t                    tcp      80, 81, 443, 8008-8009
var portLine = regexp.MustCompile(`^([a-zA-Z0-9_]+)\s+(tcp|udp|sctp|dccp)\s+([0-9][0-9,\s-]*)$`)

// PortRequest is the validated input for adding a rule.
type PortRequest struct {
	Port     string `json:"port" validate:"required,portspec"`
	Protocol string `json:"protocol" validate:"required,selinux_proto"`
	Label    string `json:"label" validate:"required,selinux_type"`
}

// PortManager tracks port-type rules.
type PortManager struct {
	mu     sync.RWMutex
	runner CommandRunner
	logger *logging.Logger
	ports  []Port
}

// NewPortManager creates a manager that mutates through runner.
func NewPortManager(runner CommandRunner, logger *logging.Logger) *PortManager {
	if logger == nil {
		logger = logging.WithComponent("ports")
	}
	return &PortManager{runner: runner, logger: logger}
}

// Load replaces the in-memory view with `semanage port -l`.
func (m *PortManager) Load(ctx context.Context) error {
	out, err := m.runner.Output(ctx, "semanage", "port", "-l")
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	parsed := ParsePorts(out)
	m.Replace(parsed)
	m.logger.Debug("loaded ports", "count", len(parsed))
	return nil
}

// ParsePorts parses `semanage port -l` output. A line listing several ports
// yields one rule per port or range.
func ParsePorts(out []byte) []Port {
	seen := make(map[string]bool)
	var result []Port
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		mm := portLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if mm == nil {
			continue
		}
		for _, p := range strings.Split(mm[3], ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			rule := Port{Port: p, Protocol: mm[2], Label: mm[1]}
			if seen[rule.Canonical()] {
				continue
			}
			seen[rule.Canonical()] = true
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Canonical() < result[j].Canonical() })
	return result
}

func (m *PortManager) List() []Port {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Port(nil), m.ports...)
}

func (m *PortManager) Replace(ports []Port) {
	m.mu.Lock()
	m.ports = append([]Port(nil), ports...)
	m.mu.Unlock()
}

// Lookup returns the rule for port/proto, if any.
func (m *PortManager) Lookup(port, proto string) (Port, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.ports {
		if p.Port == port && p.Protocol == proto {
			return p, true
		}
	}
	return Port{}, false
}

// Add defines (or relabels) a port rule.
func (m *PortManager) Add(ctx context.Context, port, proto, label string) error {
	if err := validation.Struct(PortRequest{Port: port, Protocol: proto, Label: label}); err != nil {
		return err
	}

	op := "-a"
	if existing, ok := m.Lookup(port, proto); ok {
		if existing.Label == label {
			return fmt.Errorf("port %s/%s already labelled %s", port, proto, label)
		}
		op = "-m"
	}
	if err := m.runner.Run(ctx, "semanage", "port", op, "-t", label, "-p", proto, port); err != nil {
		return fmt.Errorf("semanage port %s %s/%s: %w", op, port, proto, err)
	}

	m.mu.Lock()
	kept := m.ports[:0]
	for _, p := range m.ports {
		if !(p.Port == port && p.Protocol == proto) {
			kept = append(kept, p)
		}
	}
	m.ports = append(kept, Port{Port: port, Protocol: proto, Label: label})
	sort.Slice(m.ports, func(i, j int) bool { return m.ports[i].Canonical() < m.ports[j].Canonical() })
	m.mu.Unlock()

	m.logger.Info("port added", "port", port, "protocol", proto, "label", label)
	return nil
}

// Remove deletes the rule for port/proto.
func (m *PortManager) Remove(ctx context.Context, port, proto string) error {
	if err := validation.ValidatePortSpec(port); err != nil {
		return err
	}
	if err := validation.ValidateProtocol(proto); err != nil {
		return err
	}
	if _, ok := m.Lookup(port, proto); !ok {
		return fmt.Errorf("no port rule for %s/%s", port, proto)
	}
	if err := m.runner.Run(ctx, "semanage", "port", "-d", "-p", proto, port); err != nil {
		return fmt.Errorf("semanage port -d %s/%s: %w", port, proto, err)
	}

	m.mu.Lock()
	kept := m.ports[:0]
	for _, p := range m.ports {
		if !(p.Port == port && p.Protocol == proto) {
			kept = append(kept, p)
		}
	}
	m.ports = kept
	m.mu.Unlock()

	m.logger.Info("port removed", "port", port, "protocol", proto)
	return nil
}

package rollback

import (
	"fmt"
	"sort"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

// ComputeInverse returns the commands that take the surface from next back
// to previous. Domains are emitted in the order booleans, modules, file
// contexts, ports; within a domain entries are sorted by key and, for rule
// domains, deletes come before re-adds.
func ComputeInverse(previous, next SystemState) []string {
	var cmds []string
	cmds = append(cmds, inverseToggles(previous.BooleanMap(), next.BooleanMap(), BooleanCommand)...)
	cmds = append(cmds, inverseToggles(previous.ModuleMap(), next.ModuleMap(), ModuleCommand)...)
	cmds = append(cmds, inverseRules(previous.FileContexts, next.FileContexts, fileContextDelete, fileContextReAdd)...)
	cmds = append(cmds, inverseRules(previous.Ports, next.Ports, portDelete, portReAdd)...)
	return cmds
}

func inverseToggles(prev, next map[string]bool, render func(string, bool) string) []string {
	names := make([]string, 0, len(prev))
	for name, was := range prev {
		if now, ok := next[name]; ok && now != was {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	cmds := make([]string, 0, len(names))
	for _, name := range names {
		cmds = append(cmds, render(name, prev[name]))
	}
	return cmds
}

func inverseRules(prev, next []string, del func(string) []string, readd func(string) []string) []string {
	added := difference(next, prev)
	removed := difference(prev, next)

	var cmds []string
	for _, rule := range added {
		cmds = append(cmds, del(rule)...)
	}
	for _, rule := range removed {
		cmds = append(cmds, readd(rule)...)
	}
	return cmds
}

// difference returns the sorted, de-duplicated members of a missing from b.
func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, s := range b {
		inB[s] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, s := range a {
		if _, ok := inB[s]; ok {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// BooleanCommand sets a boolean persistently.
func BooleanCommand(name string, value bool) string {
	return fmt.Sprintf("setsebool -P %s %s", name, policy.OnOff(value))
}

// ModuleCommand enables or disables a module.
func ModuleCommand(name string, enabled bool) string {
	if enabled {
		return "semodule -e " + name
	}
	return "semodule -d " + name
}

// FileContextAddCommands re-adds a rule and relabels the path.
func FileContextAddCommands(fc policy.FileContext) []string {
	path := policy.ShellQuote(fc.Path)
	return []string{
		fmt.Sprintf("semanage fcontext -a -t %s %s", fc.Label, path),
		fmt.Sprintf("restorecon -v %s", path),
	}
}

// FileContextDeleteCommand deletes the rule for path.
func FileContextDeleteCommand(path string) string {
	return "semanage fcontext -d " + policy.ShellQuote(path)
}

// PortAddCommand re-adds a port rule.
func PortAddCommand(p policy.Port) string {
	return fmt.Sprintf("semanage port -a -t %s -p %s %s", p.Label, p.Protocol, p.Port)
}

// PortDeleteCommand deletes a port rule.
func PortDeleteCommand(port, proto string) string {
	return fmt.Sprintf("semanage port -d -p %s %s", proto, port)
}

func fileContextDelete(raw string) []string {
	fc, err := policy.ParseFileContext(raw)
	if err != nil {
		skipRule("file context", raw, err)
		return nil
	}
	return []string{FileContextDeleteCommand(fc.Path)}
}

func fileContextReAdd(raw string) []string {
	fc, err := policy.ParseFileContext(raw)
	if err != nil {
		skipRule("file context", raw, err)
		return nil
	}
	return FileContextAddCommands(fc)
}

func portDelete(raw string) []string {
	p, err := policy.ParsePort(raw)
	if err != nil {
		skipRule("port", raw, err)
		return nil
	}
	return []string{PortDeleteCommand(p.Port, p.Protocol)}
}

func portReAdd(raw string) []string {
	p, err := policy.ParsePort(raw)
	if err != nil {
		skipRule("port", raw, err)
		return nil
	}
	return []string{PortAddCommand(p)}
}

// skipRule reports a snapshot rule that yields no undo command.
func skipRule(domain, raw string, err error) {
	logging.WithComponent("rollback").Warn("no undo generated for unparsable rule",
		"domain", domain, "rule", raw, "error", err)
}

// MergeCommands keeps explicit commands first, in order, and appends each
// generated command not already present.
func MergeCommands(explicit, generated []string) []string {
	out := make([]string, 0, len(explicit)+len(generated))
	present := make(map[string]struct{}, len(explicit)+len(generated))
	for _, c := range explicit {
		out = append(out, c)
		present[c] = struct{}{}
	}
	for _, c := range generated {
		if _, ok := present[c]; ok {
			continue
		}
		out = append(out, c)
		present[c] = struct{}{}
	}
	return out
}

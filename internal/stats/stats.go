// Package stats summarizes the policy surface and the journal for the
// dashboard and the `stats` command, and keeps a short risk trend for
// sparkline rendering.
package stats

import (
	"sort"
	"strings"

	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/rollback"
)

// RecentChangeLimit is how many journal entries the summary lists.
const RecentChangeLimit = 10

// modeAction marks journal entries that only flip the enforcement mode.
// Those do not count towards the risk score.
const modeAction = "SELinux mode"

// ChangeSummary is one recent journal entry.
type ChangeSummary struct {
	ID          string `json:"id" yaml:"id"`
	Timestamp   string `json:"timestamp" yaml:"timestamp"`
	Action      string `json:"action" yaml:"action"`
	Description string `json:"description" yaml:"description"`
}

// SystemStats is the dashboard summary.
type SystemStats struct {
	Mode            policy.Mode     `json:"mode" yaml:"mode"`
	TotalAVCAlerts  int             `json:"total_avc_alerts" yaml:"total_avc_alerts"`
	AVCBySeverity   map[string]int  `json:"avc_by_severity" yaml:"avc_by_severity"`
	AVCByPermission map[string]int  `json:"avc_by_permission" yaml:"avc_by_permission"`
	AVCBySource     map[string]int  `json:"avc_by_source" yaml:"avc_by_source"`
	TotalBooleans   int             `json:"total_booleans" yaml:"total_booleans"`
	BooleansChanged int             `json:"booleans_changed" yaml:"booleans_changed"`
	TotalModules    int             `json:"total_modules" yaml:"total_modules"`
	ModulesEnabled  int             `json:"modules_enabled" yaml:"modules_enabled"`
	TotalChanges    int             `json:"total_changes" yaml:"total_changes"`
	RecentChanges   []ChangeSummary `json:"recent_changes" yaml:"recent_changes"`
	RiskScore       float64         `json:"risk_score" yaml:"risk_score"`
	RiskLevel       string          `json:"risk_level" yaml:"risk_level"`
}

// Source is the read side of the policy surface used here.
type Source interface {
	CurrentMode() policy.Mode
	BooleanValues() []policy.Boolean
	ModuleStates() []policy.Module
	AVCAlerts() []policy.AVCAlert
}

// Calculate builds the summary. history is newest first.
func Calculate(src Source, history []rollback.ChangeRecord) SystemStats {
	alerts := src.AVCAlerts()
	st := SystemStats{
		Mode:            src.CurrentMode(),
		TotalAVCAlerts:  len(alerts),
		AVCBySeverity:   make(map[string]int),
		AVCByPermission: make(map[string]int),
		AVCBySource:     make(map[string]int),
		TotalChanges:    len(history),
	}

	for _, a := range alerts {
		st.AVCBySeverity[string(a.Severity)]++
		st.AVCByPermission[a.Permission]++
		source := strings.SplitN(a.SourceContext, ":", 2)[0]
		if source == "" {
			source = "unknown"
		}
		st.AVCBySource[source]++
	}

	booleans := src.BooleanValues()
	st.TotalBooleans = len(booleans)
	for _, b := range booleans {
		if b.CurrentValue != b.DefaultValue {
			st.BooleansChanged++
		}
	}

	modules := src.ModuleStates()
	st.TotalModules = len(modules)
	for _, m := range modules {
		if m.Enabled {
			st.ModulesEnabled++
		}
	}

	securityChanges := 0
	for i, rec := range history {
		if i < RecentChangeLimit {
			st.RecentChanges = append(st.RecentChanges, ChangeSummary{
				ID:          rec.ID,
				Timestamp:   rec.Timestamp,
				Action:      rec.Action,
				Description: rec.Description,
			})
		}
		if !strings.Contains(rec.Action, modeAction) && !strings.Contains(rec.Description, modeAction) {
			securityChanges++
		}
	}

	st.RiskScore = RiskScore(
		st.AVCBySeverity[string(policy.SeverityHigh)],
		st.AVCBySeverity[string(policy.SeverityMedium)],
		st.BooleansChanged,
		securityChanges,
	)
	st.RiskLevel = RiskLevel(st.RiskScore)
	return st
}

// RiskScore weighs high and medium denials, changed booleans and
// non-mode journal entries.
func RiskScore(high, medium, booleansChanged, changes int) float64 {
	return float64(high)*10 + float64(medium)*5 + float64(booleansChanged)*2 + float64(changes)*0.5
}

// RiskLevel maps a score to High, Medium or Low.
func RiskLevel(score float64) string {
	switch {
	case score >= 50:
		return "High"
	case score >= 20:
		return "Medium"
	default:
		return "Low"
	}
}

// Count is a key with its tally, used for sorted breakdowns.
type Count struct {
	Key   string
	Value int
}

// Top returns the n largest entries of m, ties broken by key.
func Top(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

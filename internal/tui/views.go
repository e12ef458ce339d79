package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/selab/internal/advisor"
	"grimm.is/selab/internal/metrics"
	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/profile"
	"grimm.is/selab/internal/rollback"
	"grimm.is/selab/internal/stats"
)

var (
	dashboardColumns = []table.Column{
		{Title: "Section", Width: 18},
		{Title: "Summary", Width: 40},
	}
	avcColumns = []table.Column{
		{Title: "Time", Width: 19},
		{Title: "Severity", Width: 8},
		{Title: "Process", Width: 12},
		{Title: "Permission", Width: 12},
		{Title: "Class", Width: 10},
		{Title: "Target", Width: 30},
	}
	moduleColumns = []table.Column{
		{Title: "Module", Width: 28},
		{Title: "Priority", Width: 8},
		{Title: "Status", Width: 10},
	}
	booleanColumns = []table.Column{
		{Title: "Boolean", Width: 32},
		{Title: "Value", Width: 5},
		{Title: "Default", Width: 7},
		{Title: "Description", Width: 44},
	}
	historyColumns = []table.Column{
		{Title: "ID", Width: 18},
		{Title: "Time", Width: 19},
		{Title: "Action", Width: 12},
		{Title: "Description", Width: 40},
		{Title: "Undo", Width: 4},
	}
	safeColumns = []table.Column{
		{Title: "Preset", Width: 26},
		{Title: "Booleans", Width: 60},
	}
	fileContextColumns = []table.Column{
		{Title: "Path", Width: 44},
		{Title: "Type", Width: 30},
	}
	portColumns = []table.Column{
		{Title: "Port", Width: 12},
		{Title: "Proto", Width: 6},
		{Title: "Type", Width: 30},
	}
)

// dashboardTargets is where enter on each dashboard row goes.
var dashboardTargets = []View{ViewAVC, ViewModules, ViewBooleans, ViewHistory, ViewSafe, ViewFileContexts, ViewPorts}

var viewHints = [viewCount]string{
	ViewDashboard:    "enter open  m toggle mode  s safe defaults  r undo  R refresh  ? help  q quit",
	ViewAVC:          "enter apply fix  ? explain  r undo",
	ViewModules:      "enter enable/disable  r undo",
	ViewBooleans:     "enter toggle  / search  ? advice  r undo",
	ViewHistory:      "d diff  x roll back to here  r undo last",
	ViewSafe:         "enter apply preset",
	ViewFileContexts: "a add  enter remove  r undo",
	ViewPorts:        "a add  enter remove  r undo",
}

const helpText = `tab / shift+tab   next / previous view
1-8               jump to view
enter             act on the selected row
a                 add a port or file context
/                 search booleans
?                 advice for the selection
d                 diff a history entry
x                 roll back to the selected history entry
r                 undo the last change
s                 apply safe defaults
m                 toggle Enforcing / Permissive
R                 reload from the system
q                 quit`

func dashboardRows(st stats.SystemStats, fileContexts, ports int) []table.Row {
	return []table.Row{
		{"AVC alerts", fmt.Sprintf("%d (High %d, Medium %d, Low %d)", st.TotalAVCAlerts,
			st.AVCBySeverity[string(policy.SeverityHigh)],
			st.AVCBySeverity[string(policy.SeverityMedium)],
			st.AVCBySeverity[string(policy.SeverityLow)])},
		{"Modules", fmt.Sprintf("%d of %d enabled", st.ModulesEnabled, st.TotalModules)},
		{"Booleans", fmt.Sprintf("%d of %d changed from default", st.BooleansChanged, st.TotalBooleans)},
		{"History", fmt.Sprintf("%d journal entries", st.TotalChanges)},
		{"Safe defaults", "harden booleans"},
		{"File contexts", fmt.Sprintf("%d rules", fileContexts)},
		{"Ports", fmt.Sprintf("%d rules", ports)},
	}
}

func avcRows(alerts []policy.AVCAlert) []table.Row {
	rows := make([]table.Row, len(alerts))
	for i, a := range alerts {
		target := a.Path
		if target == "" {
			target = a.TargetType()
		}
		rows[i] = table.Row{a.Timestamp, string(a.Severity), a.Comm, a.Permission, a.TargetClass, target}
	}
	return rows
}

func moduleRows(mods []policy.Module) []table.Row {
	rows := make([]table.Row, len(mods))
	for i, m := range mods {
		status := "disabled"
		if m.Enabled {
			status = "enabled"
		}
		rows[i] = table.Row{m.Name, fmt.Sprint(m.Priority), status}
	}
	return rows
}

func booleanRows(bs []policy.Boolean) []table.Row {
	rows := make([]table.Row, len(bs))
	for i, b := range bs {
		rows[i] = table.Row{b.Name, policy.OnOff(b.CurrentValue), policy.OnOff(b.DefaultValue), b.Description}
	}
	return rows
}

func historyRows(history []rollback.ChangeRecord) []table.Row {
	rows := make([]table.Row, len(history))
	for i, r := range history {
		action := r.Action
		if r.IsMarker() {
			action = "↺ " + action
		}
		rows[i] = table.Row{r.ID, r.Timestamp, action, r.Description, fmt.Sprint(len(r.RollbackCommands))}
	}
	return rows
}

func safeRows(safe, restrictive profile.Preset) []table.Row {
	return []table.Row{
		{"Apply Safe Defaults", presetSummary(safe)},
		{"Apply Restrictive Policy", presetSummary(restrictive)},
	}
}

func presetSummary(p profile.Preset) string {
	names := make([]string, 0, len(p.Booleans))
	for name, v := range p.Booleans {
		names = append(names, name+"="+policy.OnOff(v))
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

func fileContextRows(fcs []policy.FileContext) []table.Row {
	rows := make([]table.Row, len(fcs))
	for i, fc := range fcs {
		rows[i] = table.Row{fc.Path, fc.Label}
	}
	return rows
}

func portRows(ports []policy.Port) []table.Row {
	rows := make([]table.Row, len(ports))
	for i, p := range ports {
		rows[i] = table.Row{p.Port, p.Protocol, p.Label}
	}
	return rows
}

func renderDashboard(st stats.SystemStats, spark string, collector *metrics.Collector) string {
	mode := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Mode"),
		modeStyle(st.Mode).Render(string(st.Mode)),
	))

	riskLines := []string{
		StyleTitle.Render("Risk"),
		riskStyle(st.RiskLevel).Render(fmt.Sprintf("%.1f %s", st.RiskScore, st.RiskLevel)),
	}
	if spark != "" {
		riskLines = append(riskLines, StyleDim.Render(spark))
	}
	risk := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, riskLines...))

	avcLines := []string{StyleTitle.Render("Top denied")}
	for _, c := range stats.Top(st.AVCBySource, 3) {
		avcLines = append(avcLines, fmt.Sprintf("%-14s %d", c.Key, c.Value))
	}
	if len(avcLines) == 1 {
		avcLines = append(avcLines, StyleGood.Render("no denials"))
	}
	avc := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, avcLines...))

	cards := []string{mode, risk, avc}
	if collector != nil {
		if snap := collector.Last(); !snap.Taken.IsZero() {
			cards = append(cards, StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
				StyleTitle.Render("Metrics"),
				StyleDim.Render("collected "+snap.Taken.Format("15:04:05")),
			)))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderAdvice(a advisor.Advice) string {
	lines := []string{StyleTitle.Render(a.Title)}
	if a.Description != "" {
		lines = append(lines, a.Description)
	}
	if a.Risk != "" {
		lines = append(lines, "Risk: "+riskStyle(a.Risk).Render(a.Risk))
	}
	if a.Suggestion != "" {
		lines = append(lines, "", a.Suggestion)
	}
	return strings.Join(lines, "\n")
}

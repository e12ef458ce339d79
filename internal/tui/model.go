// Package tui is the interactive terminal front end. All journal access
// happens inside Update; forward mutations run as workbench tasks and
// come back as taskDoneMsg.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/selab/internal/brand"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/metrics"
	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/profile"
	"grimm.is/selab/internal/rollback"
	"grimm.is/selab/internal/stats"
	"grimm.is/selab/internal/task"
	"grimm.is/selab/internal/workbench"
)

// View is the active screen.
type View int

const (
	ViewDashboard View = iota
	ViewAVC
	ViewModules
	ViewBooleans
	ViewHistory
	ViewSafe
	ViewFileContexts
	ViewPorts
	viewCount
)

var viewNames = [viewCount]string{"Dash", "AVC", "Mod", "Bool", "Roll", "Safe", "File", "Port"}

func (v View) String() string {
	if v < 0 || v >= viewCount {
		return "?"
	}
	return viewNames[v]
}

type (
	taskDoneMsg    struct{ res task.Result }
	refreshDoneMsg struct{ err error }
	tickMsg        time.Time
)

type formKind int

const (
	formNone formKind = iota
	formPort
	formFileContext
)

// Option customizes New.
type Option func(*Model)

// WithCollector shows the metrics collector's last snapshot on the dashboard.
func WithCollector(c *metrics.Collector) Option {
	return func(m *Model) { m.collector = c }
}

// WithContext sets the context tasks and rollbacks run under.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// Model is the root bubbletea model.
type Model struct {
	wb        *workbench.Workbench
	ctx       context.Context
	logger    *logging.Logger
	collector *metrics.Collector

	active View
	width  int
	height int
	table  table.Model

	// Row sources for the active table, indexed by cursor.
	alerts    []policy.AVCAlert
	modules   []policy.Module
	booleans  []policy.Boolean
	history   []rollback.ChangeRecord
	fcontexts []policy.FileContext
	ports     []policy.Port
	stats     stats.SystemStats

	search    textinput.Model
	searching bool
	query     string

	form     *huh.Form
	formKind formKind
	portIn   *portInput
	fcIn     *fileContextInput

	overlayTitle string
	overlay      string

	spinner   spinner.Model
	pending   <-chan task.Result
	status    string
	statusBad bool
}

// New builds the model over wb.
func New(wb *workbench.Workbench, opts ...Option) Model {
	t := table.New(table.WithFocused(true), table.WithHeight(12))
	t.SetStyles(tableStyles())
	t.KeyMap.HalfPageDown.SetEnabled(false)
	t.KeyMap.HalfPageUp.SetEnabled(false)

	search := textinput.New()
	search.Placeholder = "boolean name or description"
	search.Prompt = "/ "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StyleTitle

	m := Model{
		wb:      wb,
		ctx:     context.Background(),
		logger:  logging.WithComponent("tui"),
		table:   t,
		search:  search,
		spinner: sp,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if wb.Simulated() {
		m.status = "Simulation mode: no commands are executed"
	}
	m.reload()
	return m
}

// Init starts the periodic refresh on live systems.
func (m Model) Init() tea.Cmd {
	if m.wb.Simulated() {
		return nil
	}
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.wb.Config().Interval(), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refresh() tea.Cmd {
	wb, ctx := m.wb, m.ctx
	return func() tea.Msg { return refreshDoneMsg{err: wb.Refresh(ctx)} }
}

func waitTask(ch <-chan task.Result) tea.Cmd {
	return func() tea.Msg { return taskDoneMsg{res: <-ch} }
}

// Active returns the visible view.
func (m Model) Active() View { return m.active }

// Status returns the status line text.
func (m Model) Status() string { return m.status }

// Busy reports whether a task is in flight.
func (m Model) Busy() bool { return m.pending != nil }

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetHeight(max(msg.Height-12, 5))
		return m, nil

	case spinner.TickMsg:
		if !m.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case taskDoneMsg:
		return m.finishTask(msg.res), nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.setStatus("Refresh failed: "+msg.err.Error(), true)
		}
		m.reload()
		return m, nil

	case tickMsg:
		if m.Busy() {
			return m, m.tick()
		}
		return m, tea.Batch(m.refresh(), m.tick())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.form != nil {
		if msg.Type == tea.KeyEsc {
			m.closeForm()
			m.setStatus("Cancelled", false)
			return m, nil
		}
		return m.updateForm(msg)
	}
	if m.searching {
		return m.updateSearch(msg)
	}
	if m.overlay != "" {
		m.overlay, m.overlayTitle = "", ""
		return m, nil
	}

	switch key := msg.String(); key {
	case "q":
		return m, tea.Quit
	case "tab":
		m.switchView((m.active + 1) % viewCount)
		return m, nil
	case "shift+tab":
		m.switchView((m.active + viewCount - 1) % viewCount)
		return m, nil
	case "1", "2", "3", "4", "5", "6", "7", "8":
		m.switchView(View(key[0] - '1'))
		return m, nil
	case "R":
		if m.Busy() {
			return m, nil
		}
		m.setStatus("Refreshing...", false)
		return m, m.refresh()
	case "r":
		return m.undoLast()
	case "s":
		return m.submit(workbench.ActionHarden, m.wb.Harden(m.wb.SafePreset(), nil))
	case "m":
		return m.submit(workbench.ActionMode, m.wb.ToggleMode())
	case "?":
		m.showAdvice()
		return m, nil
	case "enter":
		return m.activate()
	case "a":
		return m.openForm()
	case "/":
		if m.active == ViewBooleans {
			m.searching = true
			m.search.SetValue(m.query)
			return m, m.search.Focus()
		}
	case "x":
		if m.active == ViewHistory {
			return m.rollbackToSelected()
		}
	case "d":
		if m.active == ViewHistory {
			m.showDiff()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) switchView(v View) {
	if v == m.active {
		return
	}
	m.active = v
	m.table.SetCursor(0)
	m.reload()
}

// submit starts fn as a workbench task.
func (m Model) submit(action string, fn task.Func) (tea.Model, tea.Cmd) {
	if m.Busy() {
		m.setStatus("Busy: wait for the running change to finish", true)
		return m, nil
	}
	ch, err := m.wb.Submit(m.ctx, action, fn)
	if err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.pending = ch
	m.setStatus(action+"...", false)
	return m, tea.Batch(m.spinner.Tick, waitTask(ch))
}

func (m Model) finishTask(res task.Result) Model {
	m.pending = nil
	rec, recorded := m.wb.Complete(res)
	switch {
	case res.Err != nil && recorded:
		m.setStatus(fmt.Sprintf("%s failed: %v (partial change journaled as %s)", res.Action, res.Err, rec.ID), true)
	case res.Err != nil:
		m.setStatus(fmt.Sprintf("%s failed: %v", res.Action, res.Err), true)
	case recorded:
		m.setStatus(fmt.Sprintf("%s (%s)", rec.Description, rec.ID), false)
	default:
		m.setStatus("Nothing to change", false)
	}
	m.reload()
	return m
}

func (m Model) undoLast() (tea.Model, tea.Cmd) {
	if m.Busy() {
		m.setStatus("Busy: wait for the running change to finish", true)
		return m, nil
	}
	marker, err := m.wb.UndoLast(m.ctx)
	if err != nil {
		m.setStatus(rollback.Describe(err), true)
	} else {
		m.setStatus(fmt.Sprintf("Rolled back %s: %s", marker.RolledBackID, marker.Description), false)
	}
	m.reload()
	return m, nil
}

func (m Model) rollbackToSelected() (tea.Model, tea.Cmd) {
	rec, ok := pick(m.history, m.table.Cursor())
	if !ok {
		return m, nil
	}
	if m.Busy() {
		m.setStatus("Busy: wait for the running change to finish", true)
		return m, nil
	}
	markers, err := m.wb.RollbackTo(m.ctx, rec.ID)
	switch {
	case err != nil && len(markers) > 0:
		m.setStatus(fmt.Sprintf("Rolled back %d change(s), then: %s", len(markers), rollback.Describe(err)), true)
	case err != nil:
		m.setStatus(rollback.Describe(err), true)
	default:
		m.setStatus(fmt.Sprintf("Rolled back %d change(s) through %s", len(markers), rec.ID), false)
	}
	m.reload()
	return m, nil
}

// activate is the enter key.
func (m Model) activate() (tea.Model, tea.Cmd) {
	i := m.table.Cursor()
	switch m.active {
	case ViewDashboard:
		if i >= 0 && i < len(dashboardTargets) {
			m.switchView(dashboardTargets[i])
		}
	case ViewAVC:
		if a, ok := pick(m.alerts, i); ok {
			return m.submit(workbench.ActionAVC, m.wb.ApplySolution(a))
		}
	case ViewModules:
		if mod, ok := pick(m.modules, i); ok {
			return m.submit(workbench.ActionModule, m.wb.ToggleModule(mod.Name))
		}
	case ViewBooleans:
		if b, ok := pick(m.booleans, i); ok {
			return m.submit(workbench.ActionBoolean, m.wb.ToggleBoolean(b.Name))
		}
	case ViewHistory:
		m.showDiff()
	case ViewSafe:
		switch i {
		case 0:
			return m.submit(workbench.ActionHarden, m.wb.Harden(m.wb.SafePreset(), nil))
		case 1:
			return m.submit(workbench.ActionHarden, m.wb.Harden(profile.Restrictive(), nil))
		}
	case ViewFileContexts:
		if fc, ok := pick(m.fcontexts, i); ok {
			return m.submit(workbench.ActionFileContext, m.wb.RemoveFileContext(fc.Path))
		}
	case ViewPorts:
		if p, ok := pick(m.ports, i); ok {
			return m.submit(workbench.ActionPort, m.wb.RemovePort(p.Port, p.Protocol))
		}
	}
	return m, nil
}

func (m Model) openForm() (tea.Model, tea.Cmd) {
	switch m.active {
	case ViewPorts:
		m.portIn = &portInput{}
		m.form = AutoForm(m.portIn)
		m.formKind = formPort
	case ViewFileContexts:
		m.fcIn = &fileContextInput{}
		m.form = AutoForm(m.fcIn)
		m.formKind = formFileContext
	default:
		return m, nil
	}
	return m, m.form.Init()
}

func (m *Model) closeForm() {
	m.form, m.formKind, m.portIn, m.fcIn = nil, formNone, nil, nil
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateAborted:
		m.closeForm()
		m.setStatus("Cancelled", false)
		return m, nil
	case huh.StateCompleted:
		kind, pin, fin := m.formKind, m.portIn, m.fcIn
		m.closeForm()
		switch kind {
		case formPort:
			return m.submit(workbench.ActionPort, m.wb.AddPort(
				strings.TrimSpace(pin.Port), pin.Protocol, strings.TrimSpace(pin.Label)))
		case formFileContext:
			return m.submit(workbench.ActionFileContext, m.wb.AddFileContext(
				strings.TrimSpace(fin.Path), strings.TrimSpace(fin.Label)))
		}
	}
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.query = ""
		m.search.Blur()
		m.reload()
		return m, nil
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.query = strings.TrimSpace(m.search.Value())
	m.table.SetCursor(0)
	m.reload()
	return m, cmd
}

func (m *Model) showAdvice() {
	i := m.table.Cursor()
	switch m.active {
	case ViewBooleans:
		if b, ok := pick(m.booleans, i); ok {
			m.overlayTitle = b.Name
			if adv, found := m.wb.Advisor().Get(b.Name); found {
				m.overlay = renderAdvice(adv)
			} else {
				m.overlay = b.Description + "\n\nNo advice recorded for this boolean."
			}
			return
		}
	case ViewAVC:
		if a, ok := pick(m.alerts, i); ok {
			sol := m.wb.Surface().AVC.Analyze(a)
			m.overlayTitle = sol.ModuleName
			m.overlay = renderAdvice(m.wb.Advisor().ForAlert(a)) + "\n\n" + sol.ModuleContent
			return
		}
	}
	m.overlayTitle = "Keys"
	m.overlay = helpText
}

func (m *Model) showDiff() {
	rec, ok := pick(m.history, m.table.Cursor())
	if !ok {
		return
	}
	diff, err := rollback.RecordDiff(rec)
	if err != nil {
		m.setStatus("Diff failed: "+err.Error(), true)
		return
	}
	if diff == "" {
		diff = "(snapshots are identical)"
	}
	m.overlayTitle = rec.ID + " " + rec.Description
	m.overlay = diff + "\nUndo:\n  " + strings.Join(rec.RollbackCommands, "\n  ")
}

func (m *Model) setStatus(s string, bad bool) {
	m.status, m.statusBad = s, bad
	if bad {
		m.logger.Warn("tui status", "message", s)
	}
}

// reload refreshes the row sources and the table from the workbench.
func (m *Model) reload() {
	s := m.wb.Surface()
	m.stats = m.wb.Stats()

	var cols []table.Column
	var rows []table.Row
	switch m.active {
	case ViewDashboard:
		cols, rows = dashboardColumns, dashboardRows(m.stats, len(s.FileContextRules()), len(s.PortRules()))
	case ViewAVC:
		m.alerts = s.AVC.List()
		cols, rows = avcColumns, avcRows(m.alerts)
	case ViewModules:
		m.modules = s.Modules.List()
		cols, rows = moduleColumns, moduleRows(m.modules)
	case ViewBooleans:
		if m.query != "" {
			m.booleans = s.Booleans.Search(m.query)
		} else {
			m.booleans = s.Booleans.List()
		}
		cols, rows = booleanColumns, booleanRows(m.booleans)
	case ViewHistory:
		m.history = m.wb.Journal().History()
		cols, rows = historyColumns, historyRows(m.history)
	case ViewSafe:
		cols, rows = safeColumns, safeRows(m.wb.SafePreset(), profile.Restrictive())
	case ViewFileContexts:
		m.fcontexts = s.FileContexts.List()
		cols, rows = fileContextColumns, fileContextRows(m.fcontexts)
	case ViewPorts:
		m.ports = s.Ports.List()
		cols, rows = portColumns, portRows(m.ports)
	}

	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	m.table.SetCursor(max(cursor, 0))
}

// View renders the screen.
func (m Model) View() string {
	var body string
	switch {
	case m.form != nil:
		title := "ADD PORT"
		if m.formKind == formFileContext {
			title = "ADD FILE CONTEXT"
		}
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render(title),
			StyleCard.Render(m.form.View()),
			StyleSubtitle.Render("Esc to cancel"),
		)
	case m.overlay != "":
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render(m.overlayTitle),
			StyleOverlay.Render(m.overlay),
			StyleSubtitle.Render("Any key to close"),
		)
	default:
		body = m.viewBody()
	}
	return StyleApp.Render(lipgloss.JoinVertical(lipgloss.Left, m.viewTopBar(), body, m.viewStatus()))
}

func (m Model) viewBody() string {
	parts := []string{}
	switch m.active {
	case ViewDashboard:
		parts = append(parts, renderDashboard(m.stats, m.wb.Trend().Sparkline(), m.collector))
	case ViewBooleans:
		if m.searching || m.query != "" {
			parts = append(parts, m.search.View())
		}
	}
	parts = append(parts, StyleCard.Render(m.table.View()), StyleSubtitle.Render(viewHints[m.active]))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewTopBar() string {
	items := []string{StyleTitle.Render(strings.ToUpper(brand.Name) + " ")}
	for v := View(0); v < viewCount; v++ {
		label := StyleMenuKey.Render(fmt.Sprintf("[%d]", v+1)) + " " + v.String()
		if v == m.active {
			items = append(items, StyleMenuItemActive.Render(label))
		} else {
			items = append(items, StyleMenuItem.Render(label))
		}
	}
	mode := m.stats.Mode
	items = append(items, " ", modeStyle(mode).Render(string(mode)))
	if m.wb.Simulated() {
		items = append(items, StyleWarn.Render(" SIM"))
	}
	return StyleTopBar.Render(lipgloss.JoinHorizontal(lipgloss.Top, items...))
}

func (m Model) viewStatus() string {
	text := m.status
	if m.Busy() {
		text = m.spinner.View() + " " + text
	}
	style := StyleStatusBar
	if m.statusBad {
		style = style.Foreground(ColorBad)
	}
	return style.Render(text)
}

func pick[T any](s []T, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(s) {
		return zero, false
	}
	return s[i], true
}

package tui

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/config"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/profile"
	"grimm.is/selab/internal/rollback"
	"grimm.is/selab/internal/workbench"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation = true
	cfg.HistoryFile = filepath.Join(t.TempDir(), "history.json")
	wb, err := workbench.New(cfg, logging.Discard())
	require.NoError(t, err)
	return New(wb)
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

// finish waits for the running task and feeds its result back.
func finish(t *testing.T, m Model) Model {
	t.Helper()
	require.True(t, m.Busy())
	res := <-m.pending
	return send(t, m, taskDoneMsg{res: res})
}

func TestNavigation(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, ViewDashboard, m.Active())

	m = send(t, m, runes("4"))
	assert.Equal(t, ViewBooleans, m.Active())

	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, ViewHistory, m.Active())

	m = send(t, m, tea.KeyMsg{Type: tea.KeyShiftTab}, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, ViewModules, m.Active())

	m = send(t, m, runes("1"), enter)
	assert.Equal(t, ViewAVC, m.Active(), "enter on the first dashboard row opens AVC")
}

func TestToggleBooleanAndUndo(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("4"), enter)
	m = finish(t, m)

	assert.Contains(t, m.Status(), "Set allow_ssh_keysign to off")
	b, _ := m.wb.Surface().Booleans.Get("allow_ssh_keysign")
	assert.False(t, b.CurrentValue)
	assert.Equal(t, 1, m.wb.Journal().Len())

	m = send(t, m, runes("r"))
	assert.Contains(t, m.Status(), "Rolled back chg_")
	b, _ = m.wb.Surface().Booleans.Get("allow_ssh_keysign")
	assert.True(t, b.CurrentValue)

	m = send(t, m, runes("r"), runes("r"))
	assert.Contains(t, m.Status(), "Rolled back", "the marker itself can be undone")
}

func TestUndoWithEmptyHistory(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("r"))
	assert.Equal(t, rollback.Describe(rollback.ErrNoChanges), m.Status())
	assert.True(t, m.statusBad)
}

func TestBusyRejectsSecondChange(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("3"), enter)
	require.True(t, m.Busy())

	m = send(t, m, runes("m"))
	assert.Contains(t, m.Status(), "Busy")

	m = finish(t, m)
	assert.False(t, m.Busy())
	assert.Contains(t, m.Status(), "module apache")
}

func TestBooleanSearch(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("4"), runes("/"))
	require.True(t, m.searching)

	m = send(t, m, runes("httpd"))
	assert.Len(t, m.booleans, 3)

	m = send(t, m, enter)
	assert.False(t, m.searching)
	assert.Len(t, m.booleans, 3, "query stays after enter")

	m = send(t, m, runes("/"), esc)
	assert.Len(t, m.booleans, 6)
}

func TestHistoryDiffOverlay(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("m"))
	m = finish(t, m)
	assert.Equal(t, policy.ModePermissive, m.wb.Surface().CurrentMode())

	m = send(t, m, runes("5"), runes("d"))
	assert.Contains(t, m.overlay, `"selinux_mode": "Permissive"`)
	assert.Contains(t, m.overlay, "setenforce 1")

	m = send(t, m, runes("j"))
	assert.Empty(t, m.overlay)
}

func TestRollbackToSelected(t *testing.T) {
	m := newTestModel(t)
	m = finish(t, send(t, m, runes("8"), enter))
	m = finish(t, send(t, m, runes("7"), enter))
	require.Equal(t, 2, m.wb.Journal().Len())

	// Oldest entry is the last row.
	m = send(t, m, runes("5"), tea.KeyMsg{Type: tea.KeyEnd}, runes("x"))
	assert.Contains(t, m.Status(), "Rolled back 2 change(s)")
	assert.Len(t, m.wb.Surface().PortRules(), 3)
	assert.Len(t, m.wb.Surface().FileContextRules(), 2)
}

func TestSafeDefaultsPreset(t *testing.T) {
	m := newTestModel(t)
	m = finish(t, send(t, m, runes("s")))
	assert.Contains(t, m.Status(), "Applied safe defaults")

	m = finish(t, send(t, m, runes("6"), tea.KeyMsg{Type: tea.KeyDown}, enter))
	assert.Equal(t, "Nothing to change", m.Status(), "restrictive booleans are absent from the simulation")
}

func TestAddFormOpensAndCancels(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("8"), runes("a"))
	require.NotNil(t, m.form)
	assert.Equal(t, formPort, m.formKind)
	assert.Contains(t, m.View(), "ADD PORT")

	m = send(t, m, esc)
	assert.Nil(t, m.form)
	assert.Equal(t, "Cancelled", m.Status())

	m = send(t, m, runes("2"), runes("a"))
	assert.Nil(t, m.form, "no form outside the port and file views")
}

func TestAdviceOverlay(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, runes("4"), tea.KeyMsg{Type: tea.KeyDown}, runes("?"))
	assert.Equal(t, "ftpd_anon_write", m.overlayTitle)
	assert.Contains(t, m.overlay, "Anonymous FTP uploads")

	m = send(t, m, esc, runes("1"), runes("?"))
	assert.Equal(t, helpText, m.overlay)
}

func TestViewRenders(t *testing.T) {
	m := newTestModel(t)
	m = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	for v := View(0); v < viewCount; v++ {
		m.switchView(v)
		out := m.View()
		assert.Contains(t, out, "SIM")
		assert.Contains(t, out, viewHints[v])
	}
}

func TestHistoryRowsMarkMarkers(t *testing.T) {
	rows := historyRows([]rollback.ChangeRecord{
		{ID: "chg_2", Action: rollback.ActionRollback, RolledBackID: "chg_1", RollbackCommands: []string{"a", "b"}},
		{ID: "chg_1", Action: "Port"},
	})
	assert.Equal(t, "↺ Rollback", rows[0][2])
	assert.Equal(t, "2", rows[0][4])
	assert.Equal(t, "Port", rows[1][2])
}

func TestPresetSummarySorted(t *testing.T) {
	assert.Equal(t, "deny_execmem=on deny_ptrace=on secure_mode=on", presetSummary(profile.Restrictive()))
}

func TestPick(t *testing.T) {
	_, ok := pick([]int{}, 0)
	assert.False(t, ok)
	v, ok := pick([]int{4, 5}, 1)
	assert.True(t, ok)
	assert.Equal(t, 5, v)
}

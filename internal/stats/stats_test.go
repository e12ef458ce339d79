package stats

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
	"grimm.is/selab/internal/rollback"
)

func simulatedSurface() *policy.Surface {
	s := policy.NewSurface(policy.NewDryRunner(logging.Discard()), true, logging.Discard())
	s.LoadSimulationData()
	return s
}

func TestCalculate(t *testing.T) {
	history := []rollback.ChangeRecord{
		{ID: "chg_2", Action: "SELinux mode", Description: "Enforcing -> Permissive"},
		{ID: "chg_1", Action: "Boolean", Description: "sample_boolean -> on"},
	}

	st := Calculate(simulatedSurface(), history)

	assert.Equal(t, policy.ModeEnforcing, st.Mode)
	assert.Equal(t, 2, st.TotalAVCAlerts)
	assert.Equal(t, map[string]int{"High": 1, "Medium": 1}, st.AVCBySeverity)
	assert.Equal(t, map[string]int{"read": 1, "execute": 1}, st.AVCByPermission)
	assert.Equal(t, map[string]int{"system_u": 2}, st.AVCBySource)
	assert.Equal(t, 6, st.TotalBooleans)
	assert.Equal(t, 1, st.BooleansChanged)
	assert.Equal(t, 4, st.TotalModules)
	assert.Equal(t, 2, st.ModulesEnabled)
	assert.Equal(t, 2, st.TotalChanges)
	require.Len(t, st.RecentChanges, 2)
	assert.Equal(t, "chg_2", st.RecentChanges[0].ID)

	// 1*10 + 1*5 + 1*2 + 1*0.5; the mode change does not count
	assert.InDelta(t, 17.5, st.RiskScore, 1e-9)
	assert.Equal(t, "Low", st.RiskLevel)
}

func TestCalculate_LimitsRecentChanges(t *testing.T) {
	var history []rollback.ChangeRecord
	for i := 0; i < 15; i++ {
		history = append(history, rollback.ChangeRecord{ID: fmt.Sprintf("chg_%d", i), Action: "Boolean"})
	}
	st := Calculate(simulatedSurface(), history)
	assert.Len(t, st.RecentChanges, RecentChangeLimit)
	assert.Equal(t, 15, st.TotalChanges)
	assert.InDelta(t, 17+7.5, st.RiskScore, 1e-9)
	assert.Equal(t, "Medium", st.RiskLevel)
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "Low"},
		{19.5, "Low"},
		{20, "Medium"},
		{49.9, "Medium"},
		{50, "High"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevel(tt.score), "score %v", tt.score)
	}
}

func TestTop(t *testing.T) {
	got := Top(map[string]int{"read": 3, "write": 1, "exec": 3}, 2)
	assert.Equal(t, []Count{{"exec", 3}, {"read", 3}}, got)
	assert.Len(t, Top(map[string]int{"a": 1}, 0), 1)
}

func TestRingBuffer_Wrap(t *testing.T) {
	buf := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Add(float64(i))
	}
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, []float64{2, 3, 4}, buf.Snapshot())
}

func TestRingBuffer_Partial(t *testing.T) {
	buf := NewRingBuffer(4)
	buf.Add(1)
	buf.Add(2)
	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, []float64{1, 2}, buf.Snapshot())
}

func TestTrend_Sparkline(t *testing.T) {
	tr := NewTrend(4)
	assert.Empty(t, tr.Sparkline())

	for _, v := range []float64{0, 7, 14, 28, 14} {
		tr.Record(v)
	}
	assert.Equal(t, []float64{7, 14, 28, 14}, tr.Values())
	assert.Equal(t, "▂▄█▄", tr.Sparkline())
	assert.Equal(t, "▁▁", Sparkline([]float64{0, 0}))
}

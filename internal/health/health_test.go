package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/policy"
)

func mockClock(t *testing.T) *clock.MockClock {
	t.Helper()
	mc := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	prev := clock.Default
	clock.Default = mc
	t.Cleanup(func() { clock.Default = prev })
	return mc
}

func TestCheckerAggregatesWorstStatus(t *testing.T) {
	mockClock(t)
	c := NewChecker()
	c.Register("ok", func(ctx context.Context) Check { return Check{Status: StatusHealthy} })
	c.Register("meh", func(ctx context.Context) Check { return Check{Status: StatusDegraded} })

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, []string{"meh", "ok"}, report.Names())
	assert.Equal(t, "meh", report.Checks["meh"].Name)

	c.Register("bad", func(ctx context.Context) Check { return Check{Status: StatusUnhealthy} })
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status, "register drops the cache")
}

func TestCheckerCachesReport(t *testing.T) {
	mc := mockClock(t)
	calls := 0
	c := NewChecker()
	c.Register("count", func(ctx context.Context) Check {
		calls++
		return Check{Status: StatusHealthy}
	})

	c.Check(context.Background())
	c.Check(context.Background())
	assert.Equal(t, 1, calls)

	mc.Advance(6 * time.Second)
	c.Check(context.Background())
	assert.Equal(t, 2, calls)
}

func TestHandlerStatusCodes(t *testing.T) {
	mockClock(t)
	c := NewChecker()
	c.Register("mode", ModeCheck(modeOf(policy.ModeDisabled)))

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "SELinux is disabled", report.Checks["mode"].Message)
}

type modeOf policy.Mode

func (m modeOf) CurrentMode() policy.Mode { return policy.Mode(m) }

func TestModeCheck(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, ModeCheck(modeOf(policy.ModeEnforcing))(ctx).Status)
	assert.Equal(t, StatusDegraded, ModeCheck(modeOf(policy.ModePermissive))(ctx).Status)
	assert.Equal(t, StatusUnhealthy, ModeCheck(modeOf(policy.ModeDisabled))(ctx).Status)
}

func TestToolsCheck(t *testing.T) {
	ctx := context.Background()
	prev := LookPath
	t.Cleanup(func() { LookPath = prev })

	missing := map[string]bool{}
	LookPath = func(name string) (string, error) {
		if missing[name] {
			return "", errors.New("not found")
		}
		return "/usr/sbin/" + name, nil
	}

	assert.Equal(t, StatusHealthy, ToolsCheck(false)(ctx).Status)

	missing["ausearch"] = true
	res := ToolsCheck(false)(ctx)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "ausearch")

	missing["semanage"] = true
	res = ToolsCheck(false)(ctx)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "missing: semanage", res.Message)

	assert.Equal(t, StatusHealthy, ToolsCheck(true)(ctx).Status)
}

func TestWritableCheck(t *testing.T) {
	dir := t.TempDir()
	res := WritableCheck(filepath.Join(dir, "sub", "history.json"))(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.DirExists(t, filepath.Join(dir, "sub"))
}

type counter struct {
	n   int64
	err error
}

func (c counter) Count() (int64, error) { return c.n, c.err }

func TestAuditCheck(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "3 events", AuditCheck(counter{n: 3})(ctx).Message)
	assert.Equal(t, StatusDegraded, AuditCheck(counter{err: errors.New("locked")})(ctx).Status)
	assert.Equal(t, StatusDegraded, AuditCheck(nil)(ctx).Status)
}

package rollback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

func TestCapture_IsIndependentOfManagers(t *testing.T) {
	surface := policy.NewSurface(policy.NewDryRunner(logging.Discard()), true, logging.Discard())
	surface.LoadSimulationData()

	snap := Capture(surface, clock.NewMockClock(epoch))
	assert.Equal(t, epoch.Format(time.RFC3339), snap.Timestamp)
	assert.Equal(t, "Enforcing", snap.SELinuxMode)
	assert.Contains(t, snap.FileContexts, "/var/www(/.*)?:httpd_sys_content_t")
	assert.Contains(t, snap.Ports, "22/tcp:ssh_port_t")

	require.NoError(t, surface.Booleans.Set(context.Background(), "sample_boolean", true))
	require.NoError(t, surface.Ports.Remove(context.Background(), "22", "tcp"))

	assert.False(t, snap.BooleanMap()["sample_boolean"])
	assert.Contains(t, snap.Ports, "22/tcp:ssh_port_t")
}

func TestClone_IsDeep(t *testing.T) {
	s := SystemState{
		Booleans:     []policy.Boolean{{Name: "a", CurrentValue: true}},
		Modules:      []policy.Module{{Name: "m", Enabled: true}},
		FileContexts: []string{"/a:b_t"},
		Ports:        []string{"80/tcp:http_port_t"},
	}
	c := s.Clone()
	c.Booleans[0].CurrentValue = false
	c.Modules[0].Enabled = false
	c.FileContexts[0] = "/x:y_t"
	c.Ports[0] = "1/tcp:z_t"

	assert.True(t, s.Booleans[0].CurrentValue)
	assert.True(t, s.Modules[0].Enabled)
	assert.Equal(t, "/a:b_t", s.FileContexts[0])
	assert.Equal(t, "80/tcp:http_port_t", s.Ports[0])
}

func TestRestoreState_RejectsMalformedRules(t *testing.T) {
	surface := policy.NewSurface(policy.NewDryRunner(logging.Discard()), true, logging.Discard())
	surface.LoadSimulationData()
	before := Capture(surface, nil)

	err := RestoreState(surface, SystemState{Ports: []string{"broken"}})
	require.Error(t, err)
	assert.Equal(t, before.Ports, Capture(surface, nil).Ports)
}

func TestDescribe(t *testing.T) {
	assert.Empty(t, Describe(nil))
	assert.Equal(t, "nothing to roll back", Describe(ErrNoChanges))
	assert.Equal(t, "change not found in history", Describe(ErrIDNotFound))

	err := &CommandError{RecordID: "chg_1", Command: "semodule -d x", Err: errors.New("exit status 1\nmore output")}
	assert.Equal(t, "undo command failed: semodule -d x (exit status 1)", Describe(err))
	assert.Equal(t, "plain", Describe(errors.New("plain")))
}

func TestStateDiff(t *testing.T) {
	prev := SystemState{
		Timestamp:   "2024-01-15 10:30:00",
		SELinuxMode: "Enforcing",
		Ports:       []string{"22/tcp:ssh_port_t"},
	}
	next := prev.Clone()
	next.Timestamp = "2024-01-15 10:31:00"
	next.Ports = append(next.Ports, "8080/tcp:http_port_t")

	diff, err := StateDiff(prev, next)
	require.NoError(t, err)
	assert.Contains(t, diff, "+    \"8080/tcp:http_port_t\"")
	assert.NotContains(t, diff, "10:31:00")

	same, err := StateDiff(prev, prev)
	require.NoError(t, err)
	assert.Empty(t, same)
}

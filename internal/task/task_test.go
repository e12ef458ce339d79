package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

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

func TestSpawn_DeliversOneResult(t *testing.T) {
	surface := simulatedSurface()
	r := NewRunner(func() rollback.SystemState { return rollback.Capture(surface, nil) }, 0, logging.Discard())

	ch, err := r.Spawn(context.Background(), "Boolean", func(ctx context.Context) (Outcome, error) {
		return Outcome{Description: "sample_boolean -> on"}, surface.Booleans.Set(ctx, "sample_boolean", true)
	})
	require.NoError(t, err)

	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, "Boolean", res.Action)
	assert.Equal(t, "sample_boolean -> on", res.Description)
	assert.False(t, res.Before.BooleanMap()["sample_boolean"])
	assert.True(t, res.After.BooleanMap()["sample_boolean"])
	assert.True(t, res.Changed())

	_, open := <-ch
	assert.False(t, open, "channel closed after the single result")

	busy, _ := r.Busy()
	assert.False(t, busy)
}

func TestSpawn_RefusesWhileBusy(t *testing.T) {
	r := NewRunner(func() rollback.SystemState { return rollback.SystemState{} }, 0, logging.Discard())
	release := make(chan struct{})

	ch, err := r.Spawn(context.Background(), "Slow", func(ctx context.Context) (Outcome, error) {
		<-release
		return Outcome{}, nil
	})
	require.NoError(t, err)

	busy, action := r.Busy()
	assert.True(t, busy)
	assert.Equal(t, "Slow", action)

	_, err = r.Spawn(context.Background(), "Other", func(ctx context.Context) (Outcome, error) { return Outcome{}, nil })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	res := <-ch
	assert.NoError(t, res.Err)
	assert.False(t, res.Changed())

	ch, err = r.Spawn(context.Background(), "Other", func(ctx context.Context) (Outcome, error) { return Outcome{}, nil })
	require.NoError(t, err)
	<-ch
}

func TestSpawn_ReportsErrorsAndExplicitCommands(t *testing.T) {
	r := NewRunner(func() rollback.SystemState { return rollback.SystemState{} }, 0, logging.Discard())

	ch, err := r.Spawn(context.Background(), "SELinux mode", func(ctx context.Context) (Outcome, error) {
		return Outcome{Description: "Permissive", Commands: []string{"setenforce 1"}}, errors.New("setenforce failed")
	})
	require.NoError(t, err)

	res := <-ch
	assert.EqualError(t, res.Err, "setenforce failed")
	assert.Equal(t, []string{"setenforce 1"}, res.Commands)
	assert.True(t, res.Changed())
}

func TestSpawn_RecoversPanic(t *testing.T) {
	var snaps int32
	r := NewRunner(func() rollback.SystemState {
		atomic.AddInt32(&snaps, 1)
		return rollback.SystemState{}
	}, 0, logging.Discard())

	ch, err := r.Spawn(context.Background(), "Broken", func(ctx context.Context) (Outcome, error) {
		panic("boom")
	})
	require.NoError(t, err)

	res := <-ch
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")
	assert.Equal(t, int32(2), atomic.LoadInt32(&snaps))

	busy, _ := r.Busy()
	assert.False(t, busy)
}

func TestSpawn_Timeout(t *testing.T) {
	r := NewRunner(func() rollback.SystemState { return rollback.SystemState{} }, 10*time.Millisecond, logging.Discard())

	ch, err := r.Spawn(context.Background(), "Hang", func(ctx context.Context) (Outcome, error) {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	})
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not honour its timeout")
	}
}

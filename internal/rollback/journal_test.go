package rollback

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type failingStore struct {
	saves int
}

func (s *failingStore) Load() ([]ChangeRecord, error) { return []ChangeRecord{}, nil }
func (s *failingStore) Save([]ChangeRecord) error {
	s.saves++
	return &PersistenceError{Op: "write", Path: "/readonly", Err: errors.New("read-only file system")}
}
func (s *failingStore) Path() string { return "/readonly" }

type recordingObserver struct {
	recorded, rolledBack, failed, saveFailed int
}

func (o *recordingObserver) ChangeRecorded(ChangeRecord)          { o.recorded++ }
func (o *recordingObserver) RolledBack(ChangeRecord, ChangeRecord) { o.rolledBack++ }
func (o *recordingObserver) RollbackFailed(ChangeRecord, error)    { o.failed++ }
func (o *recordingObserver) SaveFailed(error)                      { o.saveFailed++ }

func newTestJournal(t *testing.T, runner policy.CommandRunner, opts ...Option) (*Journal, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	base := []Option{
		WithClock(clock.NewSteppingClock(epoch, time.Second)),
		WithLogger(logging.Discard()),
		WithExecutor(NewExecutor(runner, logging.Discard())),
	}
	return NewJournal(store, append(base, opts...)...), store
}

func booleanState(value bool) SystemState {
	return SystemState{
		SELinuxMode:  "Enforcing",
		Booleans:     []policy.Boolean{{Name: "sample_boolean", CurrentValue: value}},
		Modules:      []policy.Module{},
		FileContexts: []string{},
		Ports:        []string{},
	}
}

func TestRecordChange(t *testing.T) {
	j, store := newTestJournal(t, new(policy.MockCommandRunner))

	prev, next := booleanState(false), booleanState(true)
	rec := j.RecordChange("Boolean", "sample_boolean -> on", prev, next, nil)

	assert.Equal(t, fmt.Sprintf("chg_%d", epoch.UnixMilli()), rec.ID)
	assert.Equal(t, epoch.Format(time.RFC3339), rec.Timestamp)
	assert.Equal(t, []string{"setsebool -P sample_boolean off"}, rec.RollbackCommands)
	assert.Empty(t, rec.AppliedCommands)
	assert.NotNil(t, rec.AppliedCommands)

	// Snapshots are copies: later mutation of the caller's state is not seen.
	next.Booleans[0].CurrentValue = false
	assert.True(t, j.History()[0].NewState.Booleans[0].CurrentValue)

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, rec.ID, persisted[0].ID)
}

func TestRecordChange_ExplicitCommandsFirst(t *testing.T) {
	j, _ := newTestJournal(t, new(policy.MockCommandRunner))

	rec := j.RecordChange("Safe settings", "apply", booleanState(false), booleanState(true),
		[]string{"setenforce 1", "setsebool -P sample_boolean off"})

	assert.Equal(t, []string{"setenforce 1", "setsebool -P sample_boolean off"}, rec.RollbackCommands)
}

func TestRecordChange_IDsUniqueWithinMillisecond(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	j := NewJournal(store, WithClock(clock.NewMockClock(epoch)), WithLogger(logging.Discard()))

	a := j.RecordChange("A", "", booleanState(false), booleanState(true), nil)
	b := j.RecordChange("B", "", booleanState(true), booleanState(false), nil)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, fmt.Sprintf("chg_%d", epoch.UnixMilli()+1), b.ID)
	assert.Equal(t, b.ID, j.History()[0].ID, "newest at the front")
}

func TestRecordChange_EvictsOldest(t *testing.T) {
	j, _ := newTestJournal(t, new(policy.MockCommandRunner), WithMaxHistory(3))

	var ids []string
	for i := 0; i < 4; i++ {
		rec := j.RecordChange("Boolean", fmt.Sprintf("change %d", i), booleanState(i%2 == 0), booleanState(i%2 != 0), nil)
		ids = append(ids, rec.ID)
		assert.LessOrEqual(t, j.Len(), 3)
	}

	history := j.History()
	require.Len(t, history, 3)
	assert.Equal(t, []string{ids[3], ids[2], ids[1]}, []string{history[0].ID, history[1].ID, history[2].ID})
	_, _, found := j.Find(ids[0])
	assert.False(t, found)
}

func TestRecordChange_SaveFailureIsNotFatal(t *testing.T) {
	store := &failingStore{}
	obs := &recordingObserver{}
	j := NewJournal(store, WithLogger(logging.Discard()), WithObserver(obs))

	rec := j.RecordChange("Boolean", "x", booleanState(false), booleanState(true), nil)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, j.Len())
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 1, obs.saveFailed)
	assert.Equal(t, 1, obs.recorded)
}

func TestRollbackLast_Empty(t *testing.T) {
	j, _ := newTestJournal(t, new(policy.MockCommandRunner))
	_, err := j.RollbackLast(context.Background(), ModeLive)
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestRollbackLast_SampleBooleanScenario(t *testing.T) {
	runner := new(policy.MockCommandRunner)
	obs := &recordingObserver{}
	j, store := newTestJournal(t, runner, WithObserver(obs))

	orig := j.RecordChange("Boolean", "sample_boolean -> on", booleanState(false), booleanState(true), nil)

	runner.On("Run", "sh", "-c", "setsebool -P sample_boolean off").Return(nil).Once()
	marker, err := j.RollbackLast(context.Background(), ModeLive)
	require.NoError(t, err)
	runner.AssertExpectations(t)

	assert.Equal(t, ActionRollback, marker.Action)
	assert.Equal(t, orig.ID, marker.RolledBackID)
	assert.True(t, marker.IsMarker())
	assert.Empty(t, marker.RollbackCommands)
	assert.Equal(t, []string{"setsebool -P sample_boolean off"}, marker.AppliedCommands)
	assert.Equal(t, orig.NewState, marker.PreviousState)
	assert.Equal(t, orig.PreviousState, marker.NewState)

	history := j.History()
	require.Len(t, history, 1)
	assert.Equal(t, marker.ID, history[0].ID)
	assert.Equal(t, 1, obs.rolledBack)

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, orig.ID, persisted[0].RolledBackID)
}

func TestRollbackLast_RestoresPreviousState(t *testing.T) {
	surface := policy.NewSurface(policy.NewDryRunner(logging.Discard()), true, logging.Discard())
	surface.LoadSimulationData()
	j, _ := newTestJournal(t, new(policy.MockCommandRunner))

	before := Capture(surface, j.Clock())
	require.NoError(t, surface.Booleans.Set(context.Background(), "sample_boolean", true))
	require.NoError(t, surface.FileContexts.Add(context.Background(), "/var/www/app", "httpd_sys_content_t"))
	require.NoError(t, surface.Ports.Remove(context.Background(), "22", "tcp"))
	after := Capture(surface, j.Clock())

	j.RecordChange("Batch", "several edits", before, after, nil)

	marker, err := j.RollbackLast(context.Background(), ModeSimulated)
	require.NoError(t, err)
	assert.Empty(t, marker.AppliedCommands)
	require.NoError(t, RestoreState(surface, marker.NewState))

	restored := Capture(surface, j.Clock())
	assert.True(t, sameDomains(before, restored))
}

func TestRollbackLast_CommandFailure(t *testing.T) {
	runner := new(policy.MockCommandRunner)
	obs := &recordingObserver{}
	j, store := newTestJournal(t, runner, WithObserver(obs))

	prev := SystemState{Booleans: []policy.Boolean{{Name: "a_bool"}, {Name: "b_bool"}, {Name: "c_bool"}}}
	next := prev.Clone()
	for i := range next.Booleans {
		next.Booleans[i].CurrentValue = true
	}
	orig := j.RecordChange("Batch", "three booleans", prev, next, nil)
	require.Len(t, orig.RollbackCommands, 3)

	runner.On("Run", "sh", "-c", "setsebool -P a_bool off").Return(nil).Once()
	runner.On("Run", "sh", "-c", "setsebool -P b_bool off").Return(errors.New("exit status 1")).Once()

	_, err := j.RollbackLast(context.Background(), ModeLive)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalCommand)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "setsebool -P b_bool off", cmdErr.Command)
	assert.Equal(t, 1, cmdErr.Index)
	assert.Contains(t, Describe(err), "setsebool -P b_bool off")

	// c_bool was never attempted.
	runner.AssertExpectations(t)

	history := j.History()
	require.Len(t, history, 1, "no marker on failure")
	assert.Equal(t, orig.ID, history[0].ID)
	assert.Equal(t, []string{"setsebool -P a_bool off"}, history[0].AppliedCommands)
	assert.Equal(t, 1, obs.failed)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"setsebool -P a_bool off"}, persisted[0].AppliedCommands)
}

func TestRollbackLast_RetryResumesAfterApplied(t *testing.T) {
	runner := new(policy.MockCommandRunner)
	j, store := newTestJournal(t, runner)

	undo := []string{
		"semanage fcontext -a -t public_content_t /srv/a",
		"restorecon -v /srv/a",
		"semanage port -d -p tcp 8080",
	}
	orig := j.RecordChange("Rules", "web rules", booleanState(false), booleanState(false), undo)
	require.Equal(t, undo, orig.RollbackCommands)

	runner.On("Run", "sh", "-c", undo[0]).Return(nil).Once()
	runner.On("Run", "sh", "-c", undo[1]).Return(errors.New("exit status 1")).Once()

	_, err := j.RollbackLast(context.Background(), ModeLive)
	require.ErrorIs(t, err, ErrExternalCommand)
	require.Equal(t, undo[:1], j.History()[0].AppliedCommands)

	runner.On("Run", "sh", "-c", undo[1]).Return(nil).Once()
	runner.On("Run", "sh", "-c", undo[2]).Return(nil).Once()

	marker, err := j.RollbackLast(context.Background(), ModeLive)
	require.NoError(t, err)
	assert.Equal(t, orig.ID, marker.RolledBackID)
	assert.Equal(t, undo, marker.AppliedCommands)

	// The fcontext add ran exactly once across both attempts.
	runner.AssertNumberOfCalls(t, "Run", 4)
	runner.AssertExpectations(t)

	history := j.History()
	require.Len(t, history, 2)
	assert.Equal(t, marker.ID, history[0].ID)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ActionRollback, persisted[0].Action)
}

func TestRollbackLast_MismatchedAppliedStartsOver(t *testing.T) {
	runner := new(policy.MockCommandRunner)
	j, _ := newTestJournal(t, runner)

	rec := ChangeRecord{
		ID:               "chg_1",
		RollbackCommands: []string{"semodule -d sandbox"},
		AppliedCommands:  []string{"semodule -e telnet"},
	}
	runner.On("Run", "sh", "-c", "semodule -d sandbox").Return(nil).Once()

	require.NoError(t, j.executor.Run(context.Background(), &rec, ModeLive))
	assert.Equal(t, []string{"semodule -d sandbox"}, rec.AppliedCommands)
	runner.AssertExpectations(t)
}

func TestRollbackToID_NotFound(t *testing.T) {
	j, _ := newTestJournal(t, new(policy.MockCommandRunner))
	j.RecordChange("A", "", booleanState(false), booleanState(true), nil)
	before := j.History()

	_, err := j.RollbackToID(context.Background(), "chg_1", ModeSimulated)
	assert.ErrorIs(t, err, ErrIDNotFound)
	assert.Equal(t, before, j.History())
}

func TestRollbackToID_Cascades(t *testing.T) {
	for k := 1; k <= 4; k++ {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			j, _ := newTestJournal(t, new(policy.MockCommandRunner))

			var recs []ChangeRecord
			for i := 0; i < 5; i++ {
				recs = append(recs, j.RecordChange("Boolean", fmt.Sprintf("change %d", i), booleanState(i%2 == 0), booleanState(i%2 != 0), nil))
			}
			// Front is recs[4]; the K-th record from the front is recs[5-k].
			target := recs[5-k]

			markers, err := j.RollbackToID(context.Background(), target.ID, ModeSimulated)
			require.NoError(t, err)
			require.Len(t, markers, k)
			assert.Equal(t, target.ID, markers[0].RolledBackID, "newest marker undid the target")

			history := j.History()
			require.Len(t, history, 5)
			for i := 0; i < k; i++ {
				assert.True(t, history[i].IsMarker())
			}
			for i := k; i < 5; i++ {
				assert.False(t, history[i].IsMarker())
			}
			_, _, found := j.Find(target.ID)
			assert.False(t, found)
		})
	}
}

func TestRollbackToID_StopsAtFirstFailure(t *testing.T) {
	runner := new(policy.MockCommandRunner)
	j, _ := newTestJournal(t, runner)

	first := j.RecordChange("Module", "enable sandbox",
		SystemState{Modules: []policy.Module{{Name: "sandbox", Enabled: false}}},
		SystemState{Modules: []policy.Module{{Name: "sandbox", Enabled: true}}}, nil)
	j.RecordChange("Boolean", "on", booleanState(false), booleanState(true), nil)

	runner.On("Run", "sh", "-c", "setsebool -P sample_boolean off").Return(nil).Once()
	runner.On("Run", "sh", "-c", "semodule -d sandbox").Return(errors.New("boom")).Once()

	markers, err := j.RollbackToID(context.Background(), first.ID, ModeLive)
	require.Error(t, err)
	require.Len(t, markers, 1)

	history := j.History()
	require.Len(t, history, 2)
	assert.True(t, history[0].IsMarker())
	assert.Equal(t, first.ID, history[1].ID, "failed record kept in place")
	runner.AssertExpectations(t)
}

func TestClearHistory(t *testing.T) {
	j, store := newTestJournal(t, new(policy.MockCommandRunner))
	j.RecordChange("A", "", booleanState(false), booleanState(true), nil)
	j.ClearHistory()

	assert.Empty(t, j.History())
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestLoad(t *testing.T) {
	j, store := newTestJournal(t, new(policy.MockCommandRunner), WithMaxHistory(2))
	recs := []ChangeRecord{
		{ID: "chg_300", Action: "C"},
		{ID: "chg_200", Action: "B"},
		{ID: "chg_100", Action: "A"},
	}
	require.NoError(t, store.Save(recs))

	require.NoError(t, j.Load())
	history := j.History()
	require.Len(t, history, 2)
	assert.Equal(t, "chg_300", history[0].ID)

	// A clock behind the loaded ids still yields a newer id.
	j.clock = clock.NewMockClock(time.UnixMilli(50))
	rec := j.RecordChange("D", "", booleanState(false), booleanState(true), nil)
	assert.Equal(t, "chg_301", rec.ID)
}

func TestLoad_MalformedLeavesHistory(t *testing.T) {
	j, store := newTestJournal(t, new(policy.MockCommandRunner))
	j.RecordChange("A", "", booleanState(false), booleanState(true), nil)
	require.NoError(t, writeFile(store.Path(), "{not json"))

	err := j.Load()
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, j.Len())
}

package rollback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/policy"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	history, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestFileStore_RoundTripKeepsOrderAndFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.json")
	s := NewFileStore(path)

	history := []ChangeRecord{
		{
			ID: "chg_2", Action: ActionRollback, RolledBackID: "chg_1",
			PreviousState:    SystemState{Booleans: []policy.Boolean{{Name: "x", CurrentValue: true}}},
			RollbackCommands: []string{},
			AppliedCommands:  []string{"setsebool -P x off"},
		},
		{ID: "chg_1", Action: "Boolean", RollbackCommands: []string{"setsebool -P x off"}, AppliedCommands: []string{}},
	}
	require.NoError(t, s.Save(history))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "chg_2", loaded[0].ID)
	assert.Equal(t, "chg_1", loaded[0].RolledBackID)
	assert.Equal(t, []string{"setsebool -P x off"}, loaded[0].AppliedCommands)
	assert.Equal(t, "chg_1", loaded[1].ID)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, field := range []string{`"id"`, `"timestamp"`, `"action"`, `"description"`, `"previous_state"`, `"new_state"`, `"rollback_commands"`, `"applied_commands"`} {
		assert.Contains(t, string(raw), field)
	}
	assert.Equal(t, 1, countOccurrences(string(raw), `"rolled_back_id"`), "omitted on ordinary records")
}

func TestFileStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, writeFile(path, "[{"))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "parse", perr.Op)
	assert.Equal(t, path, perr.Path)
}

func TestFileStore_SaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestDefaultHistoryPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SELAB_CONFIG_DIR", dir)
	assert.Equal(t, filepath.Join(dir, "rollback_history.json"), DefaultHistoryPath())
	assert.Equal(t, filepath.Join(dir, "rollback_history.json"), NewFileStore("").Path())
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestFileStore_FailedRenameLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	// A non-empty directory in the way makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0o700))

	err := NewFileStore(path).Save([]ChangeRecord{{ID: "chg_1"}})
	require.ErrorIs(t, err, ErrPersistence)
	assert.NoFileExists(t, path+".tmp")
}

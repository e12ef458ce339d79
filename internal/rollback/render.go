package rollback

import (
	"encoding/json"

	"github.com/pmezard/go-difflib/difflib"
)

// StateDiff renders a unified diff between two snapshots as indented JSON.
// Timestamps are left out so only settings show up.
func StateDiff(previous, next SystemState) (string, error) {
	a, err := stateLines(previous)
	if err != nil {
		return "", err
	}
	b, err := stateLines(next)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
}

// RecordDiff is StateDiff over a record's snapshots.
func RecordDiff(rec ChangeRecord) (string, error) {
	return StateDiff(rec.PreviousState, rec.NewState)
}

func stateLines(s SystemState) ([]string, error) {
	s = s.Clone()
	s.Timestamp = ""
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return difflib.SplitLines(string(data) + "\n"), nil
}

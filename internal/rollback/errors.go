package rollback

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoChanges is returned when rolling back an empty history.
	ErrNoChanges = errors.New("no changes to roll back")

	// ErrIDNotFound is returned when the target record is not in history.
	ErrIDNotFound = errors.New("change id not found")

	// ErrExternalCommand marks a failed or unstartable undo command.
	ErrExternalCommand = errors.New("undo command failed")

	// ErrPersistence marks a failure reading or writing the history file.
	ErrPersistence = errors.New("history persistence failed")
)

// CommandError reports which undo command failed and how far the record got.
type CommandError struct {
	RecordID string
	Index    int
	Command  string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("rollback of %s stopped at command %d (%s): %v", e.RecordID, e.Index+1, e.Command, e.Err)
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrExternalCommand, e.Err}
}

// PersistenceError wraps an I/O or encoding failure on the history file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s history %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Describe renders an error as the one-line status text shown to the
// operator. Command failures name the command.
func Describe(err error) string {
	var cmdErr *CommandError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cmdErr):
		msg := strings.TrimSpace(cmdErr.Err.Error())
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		return fmt.Sprintf("undo command failed: %s (%s)", cmdErr.Command, msg)
	case errors.Is(err, ErrNoChanges):
		return "nothing to roll back"
	case errors.Is(err, ErrIDNotFound):
		return "change not found in history"
	default:
		return err.Error()
	}
}

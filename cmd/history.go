package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"grimm.is/selab/internal/i18n"
	"grimm.is/selab/internal/rollback"
	"grimm.is/selab/internal/validation"
)

// RunHistory lists the journal, newest first.
func RunHistory(g Globals, asJSON bool) error {
	e, err := setup(context.Background(), g, false)
	if err != nil {
		return err
	}
	defer e.close()

	history := e.wb.Journal().History()
	if asJSON {
		enc := json.NewEncoder(Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	if len(history) == 0 {
		printf(i18n.MsgHistoryEmpty)
		return nil
	}
	printf(i18n.MsgHistoryHeader, "ID", "TIME", "ACTION", "DESCRIPTION")
	for _, rec := range history {
		printf(i18n.MsgHistoryHeader, rec.ID, rec.Timestamp, rec.Action, rec.Description)
	}
	return nil
}

// RunShow prints one record with its undo commands and a diff of the
// snapshots.
func RunShow(g Globals, id string) error {
	if err := validation.ValidateChangeID(id); err != nil {
		return err
	}
	e, err := setup(context.Background(), g, false)
	if err != nil {
		return err
	}
	defer e.close()

	rec, _, ok := e.wb.Journal().Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", rollback.ErrIDNotFound, id)
	}

	printf(i18n.MsgChangeHeader, rec.ID, rec.Description, rec.Timestamp)
	if len(rec.RollbackCommands) > 0 {
		printf(i18n.MsgUndoCommands)
		printCommands(rec.RollbackCommands)
	}
	if len(rec.AppliedCommands) > 0 {
		printf(i18n.MsgAppliedCommands)
		printCommands(rec.AppliedCommands)
	}

	diff, err := rollback.RecordDiff(rec)
	if err != nil {
		return fmt.Errorf("diff %s: %w", id, err)
	}
	if diff != "" {
		fmt.Fprintln(Stdout)
		fmt.Fprint(Stdout, diff)
	}
	return nil
}

// RunRollback undoes the newest change, or every change down to id.
func RunRollback(g Globals, id string) error {
	if id != "" {
		if err := validation.ValidateChangeID(id); err != nil {
			return err
		}
	}
	ctx := context.Background()
	e, err := setup(ctx, g, false)
	if err != nil {
		return err
	}
	defer e.close()
	simulationNotice(e)

	if id == "" {
		marker, err := e.wb.UndoLast(ctx)
		if err != nil {
			return describeRollback(err)
		}
		printf(i18n.MsgRolledBack, marker.RolledBackID, marker.Description)
		return nil
	}

	markers, err := e.wb.RollbackTo(ctx, id)
	for i := len(markers) - 1; i >= 0; i-- {
		printf(i18n.MsgRolledBack, markers[i].RolledBackID, markers[i].Description)
	}
	if err != nil {
		return describeRollback(err)
	}
	return nil
}

// RunClearHistory empties the journal.
func RunClearHistory(g Globals) error {
	e, err := setup(context.Background(), g, false)
	if err != nil {
		return err
	}
	defer e.close()

	e.wb.ClearHistory()
	printf(i18n.MsgHistoryCleared)
	return nil
}

func printCommands(cmds []string) {
	for _, c := range cmds {
		fmt.Fprintln(Stdout, "  "+c)
	}
}

// describeRollback shows the operator-facing text while keeping the
// original error reachable through errors.Is and errors.As.
func describeRollback(err error) error {
	return &describedError{msg: rollback.Describe(err), err: err}
}

type describedError struct {
	msg string
	err error
}

func (e *describedError) Error() string { return e.msg }
func (e *describedError) Unwrap() error { return e.err }

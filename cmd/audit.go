package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
)

// RunAudit prints the audit trail, optionally for one record.
func RunAudit(g Globals, recordID string, limit int, asJSON bool) error {
	e, err := setup(context.Background(), g, false)
	if err != nil {
		return err
	}
	defer e.close()
	if e.audit == nil {
		return fmt.Errorf("audit trail unavailable at %s", e.cfg.AuditPath())
	}

	events, err := e.audit.Query(recordID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "TIME\tUSER\tEVENT\tRECORD\tACTION\tDETAIL")
	for _, evt := range events {
		detail := evt.Description
		if evt.Error != "" {
			detail = evt.Error
		} else if len(evt.Commands) > 0 {
			detail = strings.Join(evt.Commands, "; ")
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			evt.Timestamp.Local().Format("2006-01-02 15:04:05"), evt.User, evt.Kind, evt.RecordID, evt.Action, detail)
	}
	return w.Flush()
}

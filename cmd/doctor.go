package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"grimm.is/selab/internal/health"
)

// newChecker registers the readiness checks for this environment.
func newChecker(e *env) *health.Checker {
	c := health.NewChecker()
	c.Register("tools", health.ToolsCheck(e.cfg.Simulation))
	c.Register("mode", health.ModeCheck(e.wb.Surface()))
	c.Register("history", health.WritableCheck(e.cfg.HistoryPath()))
	if e.audit != nil {
		c.Register("audit", health.AuditCheck(e.audit))
	} else {
		c.Register("audit", health.AuditCheck(nil))
	}
	return c
}

// RunDoctor runs the readiness checks and fails when any is unhealthy.
func RunDoctor(g Globals, asJSON bool) error {
	ctx := context.Background()
	e, err := setup(ctx, g, false)
	if err != nil {
		return err
	}
	defer e.close()

	report := newChecker(e).Check(ctx)
	if asJSON {
		enc := json.NewEncoder(Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
		Printer.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
		for _, name := range report.Names() {
			c := report.Checks[name]
			Printer.Fprintf(w, "%s\t%s\t%s\n", name, c.Status, c.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("host not ready")
	}
	return nil
}

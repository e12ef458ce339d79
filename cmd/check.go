package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"grimm.is/selab/internal/brand"
	"grimm.is/selab/internal/config"
)

// RunCheck validates a configuration file and prints the effective values.
func RunCheck(configFile string, verbose bool) error {
	if configFile == "" {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s/%s",
			brand.BinaryName, brand.BinaryName, brand.DefaultConfigDir, brand.ConfigFileName)
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(Stdout, "Configuration valid!\n")
	Printer.Fprintf(Stdout, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(Stdout, "Simulation: %v\n", cfg.Simulation)
	Printer.Fprintf(Stdout, "Safe booleans: %d\n", len(cfg.SafeBooleans))

	if verbose {
		printSummary(cfg)
	}
	return nil
}

func printSummary(cfg *config.Config) {
	w := tabwriter.NewWriter(Stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w)
	Printer.Fprintln(w, "SETTING\tVALUE")
	Printer.Fprintf(w, "max_history\t%d\n", cfg.MaxHistory)
	Printer.Fprintf(w, "history_file\t%s\n", cfg.HistoryPath())
	Printer.Fprintf(w, "update_interval\t%s\n", cfg.Interval())
	Printer.Fprintf(w, "log_level\t%s\n", cfg.LogLevel)
	Printer.Fprintf(w, "audit_db\t%s\n", cfg.AuditPath())
	Printer.Fprintf(w, "audit_retention_days\t%d\n", cfg.AuditRetentionDays)
	if cfg.MetricsListen != "" {
		Printer.Fprintf(w, "metrics_listen\t%s\n", cfg.MetricsListen)
	}
	w.Flush()

	if len(cfg.SafeBooleans) == 0 {
		return
	}
	Printer.Fprintln(w)
	Printer.Fprintln(w, "SAFE BOOLEAN\tVALUE\tREASON")
	for _, b := range cfg.SafeBooleans {
		Printer.Fprintf(w, "%s\t%v\t%s\n", b.Name, b.Value, b.Reason)
	}
	w.Flush()
}

// RunConfigInit writes a default configuration file. An existing file is
// left alone unless force is set.
func RunConfigInit(path string, force bool) error {
	if path == "" {
		return fmt.Errorf("config init: output file required")
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.SaveFile(config.Default(), path); err != nil {
		return err
	}
	Printer.Fprintf(Stdout, "Wrote %s\n", path)
	return nil
}

// Package cmd holds the run functions behind each selab subcommand.
package cmd

import (
	"context"
	"io"
	"os"

	"grimm.is/selab/internal/audit"
	"grimm.is/selab/internal/brand"
	"grimm.is/selab/internal/config"
	"grimm.is/selab/internal/i18n"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/metrics"
	"grimm.is/selab/internal/workbench"
)

// Printer localizes CLI output.
var Printer = i18n.NewCLIPrinter()

// Stdout is where command output goes. Tests swap it.
var Stdout io.Writer = os.Stdout

// Globals are the flags every subcommand accepts.
type Globals struct {
	ConfigFile string
	Simulate   bool
	LogFile    string
	Debug      bool
}

// env is everything a command needs once config is loaded.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	wb      *workbench.Workbench
	metrics *metrics.Registry
	audit   *audit.Store
}

// setup loads config, builds the logger, opens the audit trail and the
// workbench. Interactive sessions always log to a file.
func setup(ctx context.Context, g Globals, interactive bool) (*env, error) {
	res, err := config.Load(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg := res.Config
	if g.Simulate {
		cfg.Simulation = true
	}
	if g.LogFile != "" {
		cfg.LogFile = g.LogFile
	}
	if g.Debug {
		cfg.LogLevel = "debug"
	}

	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.LogLevel)
	lc.JSON = cfg.LogJSON
	lc.File = cfg.LogFile
	switch {
	case interactive && lc.File == "":
		lc.File = brand.UserFile(brand.LowerName + ".log")
	case !interactive && lc.File == "" && !g.Debug && lc.Level < logging.LevelWarn:
		// Keep CLI output readable.
		lc.Level = logging.LevelWarn
	}
	logger := logging.New(lc)
	logging.SetDefault(logger)
	if res.Path != "" {
		logger.Info("config loaded", "path", res.Path)
	}

	e := &env{cfg: cfg, logger: logger, metrics: metrics.NewRegistry()}
	opts := []workbench.Option{workbench.WithObserver(e.metrics)}

	if store, err := audit.NewStore(cfg.AuditPath(), cfg.AuditRetentionDays); err != nil {
		logger.Warn("audit trail disabled", "path", cfg.AuditPath(), "error", err)
	} else {
		e.audit = store
		if n, err := store.Prune(); err != nil {
			logger.Warn("audit prune failed", "error", err)
		} else if n > 0 {
			logger.Info("audit events pruned", "removed", n)
		}
		opts = append(opts, workbench.WithObserver(audit.NewRecorder(store, logger.WithComponent("audit"))))
	}

	wb, err := workbench.New(cfg, logger.WithComponent("workbench"), opts...)
	if err != nil {
		e.close()
		return nil, err
	}
	e.wb = wb

	if !cfg.Simulation {
		if err := wb.Refresh(ctx); err != nil {
			logger.Warn("initial policy load incomplete", "error", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.audit != nil {
		if err := e.audit.Close(); err != nil {
			e.logger.Warn("close audit store", "error", err)
		}
	}
	_ = e.logger.Close()
}

func printf(format string, args ...any) {
	Printer.Fprintf(Stdout, format, args...)
}

func simulationNotice(e *env) {
	if e.cfg.Simulation {
		printf(i18n.MsgSimulation)
	}
}

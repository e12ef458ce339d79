package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"grimm.is/selab/internal/metrics"
	"grimm.is/selab/internal/tui"
)

// RunConsole starts the interactive workbench.
func RunConsole(g Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, g, true)
	if err != nil {
		return err
	}
	defer e.close()

	collector := metrics.NewCollector(e.metrics, e.wb.Surface(), e.logger.WithComponent("metrics"), e.cfg.Interval())
	collector.Start()
	defer collector.Stop()

	if addr := e.cfg.MetricsListen; addr != "" {
		extra := map[string]http.Handler{"/healthz": newChecker(e).Handler()}
		go func() {
			if err := e.metrics.Serve(ctx, addr, extra); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Warn("metrics listener stopped", "addr", addr, "error", err)
			}
		}()
	}

	e.logger.Info("console started", "simulation", e.cfg.Simulation, "history", e.wb.Journal().Len())
	model := tui.New(e.wb, tui.WithContext(ctx), tui.WithCollector(collector))
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

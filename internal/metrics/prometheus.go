package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/selab/internal/rollback"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all selab metrics.
type Registry struct {
	reg *prometheus.Registry

	// Journal metrics
	ChangesRecorded *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
	UndoCommands    prometheus.Counter
	SaveFailures    prometheus.Counter

	// Policy surface
	AVCAlerts       *prometheus.GaugeVec
	ChangedBooleans prometheus.Gauge
	EnabledModules  prometheus.Gauge
	Enforcing       prometheus.Gauge
	LastCollect     prometheus.Gauge
}

var _ rollback.Observer = (*Registry)(nil)

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry creates a registry backed by its own prometheus.Registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.ChangesRecorded = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "selab_changes_recorded_total",
		Help: "Changes recorded in the rollback journal",
	}, []string{"action"})

	r.Rollbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "selab_rollbacks_total",
		Help: "Rollback attempts by result",
	}, []string{"result"})

	r.UndoCommands = factory.NewCounter(prometheus.CounterOpts{
		Name: "selab_undo_commands_total",
		Help: "Undo commands executed during rollbacks",
	})

	r.SaveFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "selab_history_save_failures_total",
		Help: "Failed writes of the history file",
	})

	r.AVCAlerts = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "selab_avc_alerts",
		Help: "Recent AVC denials by severity",
	}, []string{"severity"})

	r.ChangedBooleans = factory.NewGauge(prometheus.GaugeOpts{
		Name: "selab_booleans_changed",
		Help: "Booleans whose current value differs from the default",
	})

	r.EnabledModules = factory.NewGauge(prometheus.GaugeOpts{
		Name: "selab_modules_enabled",
		Help: "Enabled policy modules",
	})

	r.Enforcing = factory.NewGauge(prometheus.GaugeOpts{
		Name: "selab_enforcing",
		Help: "1 when the enforcement mode is Enforcing",
	})

	r.LastCollect = factory.NewGauge(prometheus.GaugeOpts{
		Name: "selab_last_collect_timestamp",
		Help: "Unix timestamp of the last surface sample",
	})

	return r
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ChangeRecorded(rec rollback.ChangeRecord) {
	r.ChangesRecorded.WithLabelValues(rec.Action).Inc()
}

func (r *Registry) RolledBack(marker, _ rollback.ChangeRecord) {
	r.Rollbacks.WithLabelValues("success").Inc()
	r.UndoCommands.Add(float64(len(marker.AppliedCommands)))
}

func (r *Registry) RollbackFailed(rec rollback.ChangeRecord, _ error) {
	r.Rollbacks.WithLabelValues("failure").Inc()
	r.UndoCommands.Add(float64(len(rec.AppliedCommands)))
}

func (r *Registry) SaveFailed(error) {
	r.SaveFailures.Inc()
}

// Serve exposes /metrics, plus any extra routes, on addr until ctx is
// cancelled.
func (r *Registry) Serve(ctx context.Context, addr string, extra map[string]http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	for path, h := range extra {
		mux.Handle(path, h)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

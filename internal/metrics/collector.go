package metrics

import (
	"sync"
	"time"

	"grimm.is/selab/internal/clock"
	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

// Source is the part of the policy surface the collector samples.
type Source interface {
	CurrentMode() policy.Mode
	BooleanValues() []policy.Boolean
	ModuleStates() []policy.Module
	AVCAlerts() []policy.AVCAlert
}

// Snapshot is the last sampled view, cached for the dashboard.
type Snapshot struct {
	Mode            policy.Mode
	AVCBySeverity   map[policy.Severity]int
	ChangedBooleans int
	EnabledModules  int
	Taken           time.Time
}

// Collector samples the policy surface into the registry on an interval.
type Collector struct {
	registry *Registry
	source   Source
	logger   *logging.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	last Snapshot
}

// NewCollector creates a collector. A nil registry uses Get().
func NewCollector(registry *Registry, source Source, logger *logging.Logger, interval time.Duration) *Collector {
	if registry == nil {
		registry = Get()
	}
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		registry: registry,
		source:   source,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect samples the surface once.
func (c *Collector) Collect() Snapshot {
	snap := Snapshot{
		Mode:          c.source.CurrentMode(),
		AVCBySeverity: map[policy.Severity]int{policy.SeverityHigh: 0, policy.SeverityMedium: 0, policy.SeverityLow: 0},
		Taken:         clock.Now(),
	}
	for _, a := range c.source.AVCAlerts() {
		snap.AVCBySeverity[a.Severity]++
	}
	for _, b := range c.source.BooleanValues() {
		if b.CurrentValue != b.DefaultValue {
			snap.ChangedBooleans++
		}
	}
	for _, m := range c.source.ModuleStates() {
		if m.Enabled {
			snap.EnabledModules++
		}
	}

	r := c.registry
	for sev, n := range snap.AVCBySeverity {
		r.AVCAlerts.WithLabelValues(string(sev)).Set(float64(n))
	}
	r.ChangedBooleans.Set(float64(snap.ChangedBooleans))
	r.EnabledModules.Set(float64(snap.EnabledModules))
	if snap.Mode == policy.ModeEnforcing {
		r.Enforcing.Set(1)
	} else {
		r.Enforcing.Set(0)
	}
	r.LastCollect.Set(float64(snap.Taken.Unix()))

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
	return snap
}

// Last returns the most recent sample.
func (c *Collector) Last() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

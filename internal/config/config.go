package config

import (
	"fmt"
	"time"

	"grimm.is/selab/internal/brand"
	"grimm.is/selab/internal/rollback"
	"grimm.is/selab/internal/validation"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Config is the top-level selab configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" validate:"omitempty,eq=1.0"`

	// Simulation runs against a fixed in-memory dataset; nothing is executed.
	Simulation bool `hcl:"simulation,optional" json:"simulation"`

	MaxHistory     int    `hcl:"max_history,optional" json:"max_history" validate:"min=0,max=10000"`
	HistoryFile    string `hcl:"history_file,optional" json:"history_file,omitempty"`
	UpdateInterval string `hcl:"update_interval,optional" json:"update_interval,omitempty"`

	LogFile  string `hcl:"log_file,optional" json:"log_file,omitempty"`
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogJSON  bool   `hcl:"log_json,optional" json:"log_json"`

	AuditDB            string `hcl:"audit_db,optional" json:"audit_db,omitempty"`
	AuditRetentionDays int    `hcl:"audit_retention_days,optional" json:"audit_retention_days,omitempty" validate:"min=0"`

	TipsFile      string `hcl:"tips_file,optional" json:"tips_file,omitempty"`
	MetricsListen string `hcl:"metrics_listen,optional" json:"metrics_listen,omitempty" validate:"omitempty,hostname_port"`

	// Safe booleans override the built-in "safe defaults" preset.
	SafeBooleans []SafeBoolean `hcl:"safe_boolean,block" json:"safe_booleans,omitempty" validate:"dive"`
}

// SafeBoolean is one entry of the hardening preset.
type SafeBoolean struct {
	Name   string `hcl:"name,label" json:"name" validate:"required,selinux_name"`
	Value  bool   `hcl:"value" json:"value"`
	Reason string `hcl:"reason,optional" json:"reason,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		SchemaVersion:      CurrentSchemaVersion,
		MaxHistory:         rollback.DefaultMaxHistory,
		UpdateInterval:     "30s",
		LogLevel:           "info",
		AuditRetentionDays: 90,
	}
}

// applyDefaults fills zero-valued fields from Default.
func (c *Config) applyDefaults() {
	d := Default()
	if c.SchemaVersion == "" {
		c.SchemaVersion = d.SchemaVersion
	}
	if c.MaxHistory == 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.UpdateInterval == "" {
		c.UpdateInterval = d.UpdateInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.AuditRetentionDays == 0 {
		c.AuditRetentionDays = d.AuditRetentionDays
	}
	if len(c.SafeBooleans) == 0 {
		c.SafeBooleans = nil
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.UpdateInterval != "" {
		if d, err := time.ParseDuration(c.UpdateInterval); err != nil || d <= 0 {
			return fmt.Errorf("invalid config: update_interval %q is not a positive duration", c.UpdateInterval)
		}
	}
	return nil
}

// Interval returns UpdateInterval as a duration.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.UpdateInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// HistoryPath returns the journal file, falling back to the per-user default.
func (c *Config) HistoryPath() string {
	if c.HistoryFile != "" {
		return c.HistoryFile
	}
	return rollback.DefaultHistoryPath()
}

// AuditPath returns the audit database path.
func (c *Config) AuditPath() string {
	if c.AuditDB != "" {
		return c.AuditDB
	}
	return brand.UserFile(brand.AuditFileName)
}

// SafeBooleanMap returns the configured safe values by name.
func (c *Config) SafeBooleanMap() map[string]bool {
	out := make(map[string]bool, len(c.SafeBooleans))
	for _, b := range c.SafeBooleans {
		out[b.Name] = b.Value
	}
	return out
}

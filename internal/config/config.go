// Package config provides configuration types for Contract Gate.
//
// Configuration is file based (contract-gate.yaml) with environment
// overrides. Durations are written as Go duration strings ("5s", "1m").
package config

import (
	"time"

	"github.com/spf13/viper"
)

// GateConfig is the top-level configuration.
type GateConfig struct {
	// Connector identifies this connector to its counterparts.
	Connector ConnectorConfig `yaml:"connector" mapstructure:"connector"`

	// Server configures the HTTP listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// UsageControl configures access-time enforcement.
	UsageControl UsageControlConfig `yaml:"usage_control" mapstructure:"usage_control"`

	// Storage selects the store backend.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Audit configures where USAGE_LOGGING records go.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Notification configures USAGE_NOTIFICATION delivery.
	Notification NotificationConfig `yaml:"notification" mapstructure:"notification"`

	// Sweep configures the scheduled enforcement sweep.
	Sweep SweepConfig `yaml:"sweep" mapstructure:"sweep"`

	// Tracing enables OpenTelemetry spans written to stdout.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// Catalog seeds offers, artifacts and resources at startup.
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`

	// DevMode enables debug logging and a local connector identity.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ConnectorConfig identifies the local connector.
type ConnectorConfig struct {
	// ID is the connector URI stamped into requests and agreements.
	ID string `yaml:"id" mapstructure:"id" validate:"required,url"`

	// Title is a display name.
	Title string `yaml:"title" mapstructure:"title"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel is one of "debug", "info", "warn", "error". DevMode forces "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// UsageControlConfig configures the decision point.
type UsageControlConfig struct {
	// AllowUnsupportedPatterns lets rules with no recognized pattern pass.
	// Off by default: such rules deny.
	AllowUnsupportedPatterns bool `yaml:"allow_unsupported_patterns" mapstructure:"allow_unsupported_patterns"`

	// EnforcedPatterns lists the patterns checked when serving data.
	// Defaults to all nine.
	EnforcedPatterns []string `yaml:"enforced_patterns" mapstructure:"enforced_patterns" validate:"omitempty,dive,usage_pattern"`

	// Guards are CEL conditions evaluated before any rule.
	Guards []GuardConfig `yaml:"guards" mapstructure:"guards" validate:"omitempty,dive"`
}

// GuardConfig defines one access guard.
type GuardConfig struct {
	// Name identifies the guard in logs and responses.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over the access request
	// (agreement_id, artifact_id, issuer, target, access_count, patterns).
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Action is "deny" or "audit". Defaults to "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"omitempty,oneof=deny audit"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite". Defaults to "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=memory sqlite"`

	// SQLitePath is the database file, required for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// BusyTimeout is how long SQLite waits on locks. Defaults to "5s".
	BusyTimeout string `yaml:"busy_timeout" mapstructure:"busy_timeout" validate:"omitempty,duration"`
}

// AuditConfig configures audit output.
type AuditConfig struct {
	// Output is "stdout" or "file:///absolute/dir". Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// RetentionDays is how long audit files are kept. Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB rotates an audit file at this size. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// NotificationConfig configures the notification sink.
type NotificationConfig struct {
	// Timeout bounds one delivery. Defaults to "10s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// SweepConfig configures the enforcement sweep.
type SweepConfig struct {
	// Enabled runs the sweep on Schedule. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Schedule is a cron expression or descriptor. Defaults to "@every 1m".
	Schedule string `yaml:"schedule" mapstructure:"schedule" validate:"omitempty,cron_schedule"`

	// ExpiryEnabled adds the resource expiry pass.
	ExpiryEnabled bool `yaml:"expiry_enabled" mapstructure:"expiry_enabled"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// CatalogConfig configures the startup seed.
type CatalogConfig struct {
	// SeedFile is a YAML catalog applied idempotently at startup.
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file" validate:"omitempty,file"`
}

// SetDevDefaults applies defaults that let the gate start with no config
// file. Applied before validation.
func (c *GateConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Connector.ID == "" {
		c.Connector.ID = "https://localhost/connectors/dev"
	}
	if c.Connector.Title == "" {
		c.Connector.Title = "Development Connector"
	}
	c.Server.LogLevel = "debug"
}

// SetDefaults applies default values to unset fields.
func (c *GateConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.BusyTimeout == "" {
		c.Storage.BusyTimeout = "5s"
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 30
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}

	if c.Notification.Timeout == "" {
		c.Notification.Timeout = "10s"
	}

	// The sweep is on unless explicitly disabled.
	if !viper.IsSet("sweep.enabled") {
		c.Sweep.Enabled = true
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "@every 1m"
	}

	for i := range c.UsageControl.Guards {
		if c.UsageControl.Guards[i].Action == "" {
			c.UsageControl.Guards[i].Action = "deny"
		}
	}
}

// BusyTimeout returns the parsed storage busy timeout.
func (c *GateConfig) BusyTimeout() time.Duration {
	return parseDurationOr(c.Storage.BusyTimeout, 5*time.Second)
}

// NotificationTimeout returns the parsed notification timeout.
func (c *GateConfig) NotificationTimeout() time.Duration {
	return parseDurationOr(c.Notification.Timeout, 10*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

package config

import (
	"fmt"
	"time"

	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/artifact"
	"github.com/moolen/tripwire/internal/timeseries"
)

// CurrentSchemaVersion is written by Default and accepted by Load.
const CurrentSchemaVersion = "1.0"

// Config holds all configuration for tripwire.
//
// Example YAML structure:
//
//	schema_version: "1.0"
//	detector:
//	  window_seconds: 300
//	  threshold_multiplier: 2.5
//	metrics: [cpu_usage, checkout_latency_p99]
//	output:
//	  dir: rca_reports
//	  format: yaml
//	upload:
//	  bucket: ops-artifacts
type Config struct {
	// SchemaVersion must satisfy the supported constraint (>= 1.0, < 2.0)
	SchemaVersion string `yaml:"schema_version"`

	Detector DetectorConfig `yaml:"detector"`

	// Metrics is the ordered list of metrics checked on every run
	Metrics []string `yaml:"metrics"`

	Source   SourceConfig   `yaml:"source"`
	Incident IncidentConfig `yaml:"incident"`
	Output   OutputConfig   `yaml:"output"`
	Store    StoreConfig    `yaml:"store"`
	Upload   UploadConfig   `yaml:"upload"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Watch    WatchConfig    `yaml:"watch"`
}

// DetectorConfig configures anomaly detection.
type DetectorConfig struct {
	WindowSeconds       int     `yaml:"window_seconds"`
	ThresholdMultiplier float64 `yaml:"threshold_multiplier"`

	// Concurrency bounds how many metrics are evaluated at once
	Concurrency int `yaml:"concurrency"`
}

// Anomaly returns the detector parameters.
func (d DetectorConfig) Anomaly() anomaly.Config {
	return anomaly.Config{
		WindowSeconds:       d.WindowSeconds,
		ThresholdMultiplier: d.ThresholdMultiplier,
	}
}

// SourceConfig configures the synthetic metric source.
type SourceConfig struct {
	Seed     uint64                        `yaml:"seed"`
	Points   int                           `yaml:"points"`
	Interval time.Duration                 `yaml:"interval"`
	Profiles map[string]timeseries.Profile `yaml:"profiles"`
}

// IncidentConfig configures incident construction.
type IncidentConfig struct {
	// Lookback is the investigation window before the trigger
	Lookback time.Duration `yaml:"lookback"`
}

// OutputConfig configures artifact files.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// StoreConfig configures the incident ledger.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// UploadConfig configures artifact uploads. An empty bucket disables uploads.
type UploadConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	// Static credentials; both or neither. The default AWS credential chain
	// is used when unset.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Enabled reports whether a bucket is configured.
func (u UploadConfig) Enabled() bool {
	return u.Bucket != ""
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	TLSCAPath   string `yaml:"tls_ca_path"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

// WatchConfig configures periodic runs.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`

	// MetricsAddr is the listen address of the /metrics endpoint; empty disables it
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	det := anomaly.DefaultConfig()
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Detector: DetectorConfig{
			WindowSeconds:       det.WindowSeconds,
			ThresholdMultiplier: det.ThresholdMultiplier,
			Concurrency:         4,
		},
		Metrics: timeseries.BuiltinMetrics(),
		Source: SourceConfig{
			Points:   100,
			Interval: time.Minute,
		},
		Incident: IncidentConfig{Lookback: 30 * time.Minute},
		Output: OutputConfig{
			Dir:    artifact.DefaultDir,
			Format: string(artifact.FormatJSON),
		},
		Store:  StoreConfig{Path: "tripwire.db"},
		Upload: UploadConfig{Region: "us-east-1", Prefix: "rca_reports"},
		Watch: WatchConfig{
			Interval:    5 * time.Minute,
			MetricsAddr: ":9090",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := checkSchemaVersion(c.SchemaVersion); err != nil {
		return err
	}

	if c.Detector.WindowSeconds < 1 {
		return NewConfigError("detector.window_seconds must be at least 1")
	}
	if !(c.Detector.ThresholdMultiplier > 0) {
		return NewConfigError("detector.threshold_multiplier must be greater than 0")
	}
	if c.Detector.Concurrency < 0 {
		return NewConfigError("detector.concurrency must not be negative")
	}

	if len(c.Metrics) == 0 {
		return NewConfigError("metrics must list at least one metric")
	}
	seen := make(map[string]bool)
	for i, m := range c.Metrics {
		if m == "" {
			return NewConfigError(fmt.Sprintf("metrics[%d]: name is required", i))
		}
		if seen[m] {
			return NewConfigError(fmt.Sprintf("metrics[%d]: duplicate metric %q", i, m))
		}
		seen[m] = true
	}

	if c.Source.Points < 1 {
		return NewConfigError("source.points must be at least 1")
	}
	if c.Source.Interval <= 0 {
		return NewConfigError("source.interval must be positive")
	}
	for name, p := range c.Source.Profiles {
		if err := p.Validate(); err != nil {
			return NewConfigError(fmt.Sprintf("source.profiles.%s: %v", name, err))
		}
	}

	if c.Incident.Lookback <= 0 {
		return NewConfigError("incident.lookback must be positive")
	}

	if c.Output.Dir == "" {
		return NewConfigError("output.dir must not be empty")
	}
	if _, err := artifact.ParseFormat(c.Output.Format); err != nil {
		return NewConfigError("output.format: " + err.Error())
	}

	if c.Store.Path == "" {
		return NewConfigError("store.path must not be empty")
	}

	if (c.Upload.AccessKeyID == "") != (c.Upload.SecretAccessKey == "") {
		return NewConfigError("upload.access_key_id and upload.secret_access_key must be set together")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	if c.Watch.Interval <= 0 {
		return NewConfigError("watch.interval must be positive")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}

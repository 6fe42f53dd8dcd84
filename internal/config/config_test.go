package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moolen/tripwire/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tripwire.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 300, cfg.Detector.WindowSeconds)
	assert.Equal(t, 2.5, cfg.Detector.ThresholdMultiplier)
	assert.Equal(t, timeseries.BuiltinMetrics(), cfg.Metrics)
	assert.Equal(t, 100, cfg.Source.Points)
	assert.Equal(t, time.Minute, cfg.Source.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Incident.Lookback)
	assert.Equal(t, "rca_reports", cfg.Output.Dir)
	assert.False(t, cfg.Upload.Enabled())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	t.Setenv(EnvArtifactsBucket, "")
	os.Unsetenv(EnvArtifactsBucket)

	path := writeConfig(t, `schema_version: "1.2"
detector:
  threshold_multiplier: 3
metrics: [checkout_latency_p99, heap_usage_mb]
source:
  seed: 42
  interval: 30s
  profiles:
    checkout_latency_p99:
      baseline: 300
      noise_ratio: 0.1
      pattern: spike
      magnitude: 900
      onset: 0.8
incident:
  lookback: 1h
output:
  format: yaml
upload:
  bucket: ops-artifacts
  endpoint: http://localhost:9000
  path_style: true
  access_key_id: minio
  secret_access_key: minio123
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Detector.WindowSeconds, "unset keys keep defaults")
	assert.Equal(t, 3.0, cfg.Detector.ThresholdMultiplier)
	assert.Equal(t, []string{"checkout_latency_p99", "heap_usage_mb"}, cfg.Metrics)
	assert.Equal(t, uint64(42), cfg.Source.Seed)
	assert.Equal(t, 30*time.Second, cfg.Source.Interval)
	assert.Equal(t, 100, cfg.Source.Points)
	assert.Equal(t, timeseries.Profile{
		Baseline:   300,
		NoiseRatio: 0.1,
		Pattern:    timeseries.PatternSpike,
		Magnitude:  900,
		Onset:      0.8,
	}, cfg.Source.Profiles["checkout_latency_p99"])
	assert.Equal(t, time.Hour, cfg.Incident.Lookback)
	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.Equal(t, "ops-artifacts", cfg.Upload.Bucket)
	assert.True(t, cfg.Upload.PathStyle)
	assert.Equal(t, "minio", cfg.Upload.AccessKeyID)
	assert.Equal(t, "minio123", cfg.Upload.SecretAccessKey)
	assert.True(t, cfg.Upload.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvArtifactsBucket, "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Upload.Bucket)

	path := writeConfig(t, "schema_version: \"1.0\"\nupload:\n  bucket: from-file\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Upload.Bucket)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "detector: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "schema_version: \"2.0\"\n"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "unsupported schema_version")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing schema", func(c *Config) { c.SchemaVersion = "" }, "schema_version is required"},
		{"garbage schema", func(c *Config) { c.SchemaVersion = "one" }, "invalid schema_version"},
		{"old schema", func(c *Config) { c.SchemaVersion = "0.9" }, "unsupported schema_version"},
		{"zero window", func(c *Config) { c.Detector.WindowSeconds = 0 }, "window_seconds"},
		{"zero multiplier", func(c *Config) { c.Detector.ThresholdMultiplier = 0 }, "threshold_multiplier"},
		{"nan multiplier", func(c *Config) { c.Detector.ThresholdMultiplier = math.NaN() }, "threshold_multiplier"},
		{"negative concurrency", func(c *Config) { c.Detector.Concurrency = -1 }, "concurrency"},
		{"no metrics", func(c *Config) { c.Metrics = nil }, "at least one metric"},
		{"empty metric", func(c *Config) { c.Metrics = []string{"a", ""} }, "name is required"},
		{"duplicate metric", func(c *Config) { c.Metrics = []string{"a", "a"} }, "duplicate metric"},
		{"no points", func(c *Config) { c.Source.Points = 0 }, "source.points"},
		{"bad interval", func(c *Config) { c.Source.Interval = 0 }, "source.interval"},
		{"bad profile", func(c *Config) {
			c.Source.Profiles = map[string]timeseries.Profile{"x": {Pattern: "sawtooth"}}
		}, "source.profiles.x"},
		{"bad lookback", func(c *Config) { c.Incident.Lookback = 0 }, "incident.lookback"},
		{"empty output dir", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"bad format", func(c *Config) { c.Output.Format = "md" }, "output.format"},
		{"empty store", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"access key without secret", func(c *Config) { c.Upload.AccessKeyID = "minio" }, "secret_access_key"},
		{"secret without access key", func(c *Config) { c.Upload.SecretAccessKey = "minio123" }, "access_key_id"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.endpoint"},
		{"bad watch interval", func(c *Config) { c.Watch.Interval = -time.Second }, "watch.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDetectorAnomalyConfig(t *testing.T) {
	cfg := Default()
	a := cfg.Detector.Anomaly()
	assert.Equal(t, 300, a.WindowSeconds)
	assert.Equal(t, 2.5, a.ThresholdMultiplier)
}

package anomaly

import (
	"errors"
	"time"
)

// ErrInvalidConfiguration is returned by New for a window below one second
// or a non-positive threshold multiplier.
var ErrInvalidConfiguration = errors.New("invalid detector configuration")

// Config parameterizes a Detector.
type Config struct {
	// WindowSeconds is echoed into every Record. Must be >= 1.
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`

	// ThresholdMultiplier is the number of standard deviations above the
	// mean a value must exceed. Must be > 0.
	ThresholdMultiplier float64 `json:"threshold_multiplier" yaml:"threshold_multiplier"`
}

// DefaultConfig returns a 300s window with a 2.5 multiplier.
func DefaultConfig() Config {
	return Config{
		WindowSeconds:       300,
		ThresholdMultiplier: 2.5,
	}
}

// Record is one point that exceeded the series threshold.
type Record struct {
	MetricName    string    `json:"metric_name" yaml:"metric_name"`
	Value         float64   `json:"value" yaml:"value"`
	Threshold     float64   `json:"threshold" yaml:"threshold"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	WindowSeconds int       `json:"window_seconds" yaml:"window_seconds"`
}

// Stats describes the series-wide statistics behind a threshold.
type Stats struct {
	Count     int     `json:"count" yaml:"count"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Variance  float64 `json:"variance" yaml:"variance"`
	StdDev    float64 `json:"std_dev" yaml:"std_dev"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

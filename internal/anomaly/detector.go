// Package anomaly flags timeseries points that exceed a series-global
// mean + k*stddev threshold.
//
// The threshold is computed once per series from all of its points, outliers
// included. A single extreme point therefore inflates the standard deviation
// and can stay below its own threshold: [10 10 10 10 100] with k=2.5 gives a
// threshold of 118 and no anomaly. Small outlier fractions are flagged.
package anomaly

import (
	"fmt"
	"math"

	"github.com/moolen/tripwire/internal/timeseries"
	"gonum.org/v1/gonum/stat"
)

const (
	// minPoints is the smallest series with a spread estimate.
	minPoints = 2

	// roundingScale rounds record values and thresholds to 4 decimals.
	roundingScale = 1e4
)

// Detector evaluates series against its immutable Config. It holds no other
// state and is safe for concurrent use.
type Detector struct {
	cfg Config
}

// New validates cfg and returns a Detector.
func New(cfg Config) (*Detector, error) {
	if cfg.WindowSeconds < 1 {
		return nil, fmt.Errorf("%w: window_seconds must be at least 1, got %d",
			ErrInvalidConfiguration, cfg.WindowSeconds)
	}
	// written as a negation so NaN is rejected too
	if !(cfg.ThresholdMultiplier > 0) {
		return nil, fmt.Errorf("%w: threshold_multiplier must be greater than 0, got %v",
			ErrInvalidConfiguration, cfg.ThresholdMultiplier)
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Stats computes mean, population variance, standard deviation and the
// threshold of series. It reports false for fewer than two points.
//
// Variance uses the population divisor n, not the sample divisor n-1.
func (d *Detector) Stats(series []timeseries.Point) (Stats, bool) {
	if len(series) < minPoints {
		return Stats{Count: len(series)}, false
	}

	mean, variance := stat.PopMeanVariance(timeseries.Values(series), nil)
	std := math.Sqrt(variance)

	return Stats{
		Count:     len(series),
		Mean:      mean,
		Variance:  variance,
		StdDev:    std,
		Threshold: mean + d.cfg.ThresholdMultiplier*std,
	}, true
}

// Detect returns a Record for every point of series whose value is strictly
// greater than the series threshold. Records keep the input order, which is
// not re-sorted by timestamp. Series shorter than two points yield nothing.
//
// Non-finite values propagate into the threshold; a NaN threshold compares
// false against every value and the result is empty.
func (d *Detector) Detect(metricName string, series []timeseries.Point) []Record {
	s, ok := d.Stats(series)
	if !ok {
		return []Record{}
	}

	threshold := round(s.Threshold)
	records := []Record{}
	for _, p := range series {
		if !(p.Value > s.Threshold) {
			continue
		}
		value := round(p.Value)
		// a breach smaller than the rounding step would violate value > threshold
		if !(value > threshold) {
			continue
		}
		records = append(records, Record{
			MetricName:    metricName,
			Value:         value,
			Threshold:     threshold,
			Timestamp:     p.Timestamp,
			WindowSeconds: d.cfg.WindowSeconds,
		})
	}
	return records
}

func round(v float64) float64 {
	return math.Round(v*roundingScale) / roundingScale
}

package evidence

import (
	"github.com/moolen/tripwire/internal/incident"
	"github.com/moolen/tripwire/internal/timeseries"
)

// Trend describes the shape of an anomalous metric.
type Trend string

const (
	TrendSuddenSpike Trend = "sudden_spike"
	TrendGradualRamp Trend = "gradual_ramp"
)

// currentMeans pins the observed mean of the scenario metrics while they
// keep their built-in profiles.
var currentMeans = map[string]float64{
	"checkout_latency_p99": 2050.0,
	"heap_usage_mb":        1680.0,
}

const (
	spikeFactor = 3.1
	// rampTail is the share of the ramp magnitude reached by the end of the window.
	rampTail = 0.9
)

// MetricDetail compares a metric inside the investigation window with its baseline.
type MetricDetail struct {
	Metric           string          `json:"metric" yaml:"metric"`
	Window           incident.Window `json:"window" yaml:"window"`
	CurrentMean      float64         `json:"current_mean" yaml:"current_mean"`
	BaselineMean     float64         `json:"baseline_mean" yaml:"baseline_mean"`
	DeviationPercent float64         `json:"deviation_percent" yaml:"deviation_percent"`
	PeakValue        float64         `json:"peak_value" yaml:"peak_value"`
	AnomalousPoints  int             `json:"anomalous_points" yaml:"anomalous_points"`
	Trend            Trend           `json:"trend" yaml:"trend"`
}

// MetricDetails returns the window statistics of metric. Baseline, current
// mean and trend follow the metric's effective profile.
func (c *Collector) MetricDetails(metric string, window incident.Window) MetricDetail {
	profile, current := c.profile(metric)
	baseline := profile.Baseline

	trend := TrendSuddenSpike
	if profile.Pattern == timeseries.PatternRamp {
		trend = TrendGradualRamp
	}

	deviation := 0.0
	if baseline != 0 {
		deviation = (current - baseline) / baseline * 100
	}

	r := newRand(c.seed, "metric", metric, timeKey(window.Start), timeKey(window.End))
	return MetricDetail{
		Metric:           metric,
		Window:           window,
		CurrentMean:      round(current, 4),
		BaselineMean:     round(baseline, 4),
		DeviationPercent: round(deviation, 2),
		PeakValue:        round(current*1.2, 4),
		AnomalousPoints:  between(r, 5, 15),
		Trend:            trend,
	}
}

// profile returns the effective profile of metric and its mean inside the
// anomalous window.
func (c *Collector) profile(metric string) (timeseries.Profile, float64) {
	p, overridden := c.profiles[metric]
	if !overridden {
		p = timeseries.DefaultProfile(metric)
		if current, ok := currentMeans[metric]; ok {
			return p, current
		}
		return p, p.Baseline * spikeFactor
	}

	switch p.Pattern {
	case timeseries.PatternSpike:
		return p, p.Baseline + p.Magnitude
	case timeseries.PatternRamp:
		return p, p.Baseline + p.Magnitude*rampTail
	default:
		return p, p.Baseline
	}
}

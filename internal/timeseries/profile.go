package timeseries

import "fmt"

// Pattern is the shape injected on top of the baseline.
type Pattern string

const (
	// PatternFlat is baseline plus noise only.
	PatternFlat Pattern = "flat"
	// PatternSpike adds Magnitude to every point from Onset onwards.
	PatternSpike Pattern = "spike"
	// PatternRamp adds a linear climb reaching Magnitude at the end of the series.
	PatternRamp Pattern = "ramp"
)

const (
	defaultBaseline   = 50.0
	defaultNoiseRatio = 0.05
	defaultOnset      = 0.9
	defaultSpikeRatio = 3.0
)

// Profile describes how a synthetic metric behaves.
type Profile struct {
	Baseline   float64 `yaml:"baseline" json:"baseline"`
	NoiseRatio float64 `yaml:"noise_ratio" json:"noise_ratio"`
	Pattern    Pattern `yaml:"pattern" json:"pattern"`
	Magnitude  float64 `yaml:"magnitude" json:"magnitude"`
	Onset      float64 `yaml:"onset" json:"onset"`
}

// builtinProfiles reproduce the incident scenarios: a checkout latency spike
// caused by a shrunken DB pool and a heap that grows without release.
var builtinProfiles = map[string]Profile{
	"cpu_usage":            spikeProfile(40.0),
	"error_rate":           spikeProfile(0.5),
	"latency_p99":          spikeProfile(120.0),
	"checkout_latency_p99": {Baseline: 210.0, NoiseRatio: defaultNoiseRatio, Pattern: PatternSpike, Magnitude: 1800.0, Onset: defaultOnset},
	"heap_usage_mb":        {Baseline: 512.0, NoiseRatio: defaultNoiseRatio, Pattern: PatternRamp, Magnitude: 1300.0},
}

func spikeProfile(baseline float64) Profile {
	return Profile{
		Baseline:   baseline,
		NoiseRatio: defaultNoiseRatio,
		Pattern:    PatternSpike,
		Magnitude:  baseline * defaultSpikeRatio,
		Onset:      defaultOnset,
	}
}

// DefaultProfile returns the built-in profile for metric. Unknown metrics
// get a baseline of 50 with the default spike.
func DefaultProfile(metric string) Profile {
	if p, ok := builtinProfiles[metric]; ok {
		return p
	}
	return spikeProfile(defaultBaseline)
}

// BuiltinMetrics lists the metrics with a built-in profile in their default
// evaluation order.
func BuiltinMetrics() []string {
	return []string{"cpu_usage", "error_rate", "latency_p99", "checkout_latency_p99", "heap_usage_mb"}
}

// Validate checks that the profile can produce a series.
func (p Profile) Validate() error {
	switch p.Pattern {
	case PatternFlat, PatternSpike, PatternRamp:
	default:
		return fmt.Errorf("unknown pattern %q (must be flat, spike or ramp)", p.Pattern)
	}
	if p.NoiseRatio < 0 {
		return fmt.Errorf("noise_ratio must not be negative, got %v", p.NoiseRatio)
	}
	if p.Onset < 0 || p.Onset > 1 {
		return fmt.Errorf("onset must be within [0, 1], got %v", p.Onset)
	}
	return nil
}

// offset returns the pattern contribution for point i of n.
func (p Profile) offset(i, n int) float64 {
	switch p.Pattern {
	case PatternSpike:
		if i >= int(float64(n)*p.Onset) {
			return p.Magnitude
		}
	case PatternRamp:
		return float64(i) / float64(n) * p.Magnitude
	}
	return 0
}

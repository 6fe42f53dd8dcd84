package timeseries

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// Seed makes series reproducible. The same seed, metric and end time
	// always produce the same series.
	Seed uint64

	// Points is the series length. Defaults to 100.
	Points int

	// Interval is the spacing between points. Defaults to one minute.
	Interval time.Duration

	// Profiles override the built-in profiles per metric.
	Profiles map[string]Profile

	// Now supplies the series end time. Defaults to time.Now.
	Now func() time.Time
}

// Generator fabricates metric series with noise and an injected pattern.
type Generator struct {
	seed     uint64
	points   int
	interval time.Duration
	now      func() time.Time
	// profiles is read-only after construction.
	profiles map[string]Profile
}

// NewGenerator validates cfg and returns a Generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Points == 0 {
		cfg.Points = 100
	}
	if cfg.Points < 0 {
		return nil, fmt.Errorf("points must not be negative, got %d", cfg.Points)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	profiles := make(map[string]Profile, len(cfg.Profiles))
	for metric, p := range cfg.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", metric, err)
		}
		profiles[metric] = p
	}

	return &Generator{
		seed:     cfg.Seed,
		points:   cfg.Points,
		interval: cfg.Interval,
		now:      cfg.Now,
		profiles: profiles,
	}, nil
}

// Profile returns the effective profile for metric.
func (g *Generator) Profile(metric string) Profile {
	if p, ok := g.profiles[metric]; ok {
		return p
	}
	return DefaultProfile(metric)
}

// Series implements Source. The series ends at the generator's current time.
func (g *Generator) Series(ctx context.Context, metric string) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Generate(metric, g.points, g.now()), nil
}

// Generate returns n points for metric, spaced by the generator interval,
// the last one an interval before end.
func (g *Generator) Generate(metric string, n int, end time.Time) []Point {
	profile := g.Profile(metric)
	noise := distuv.Normal{
		Mu:    0,
		Sigma: profile.Baseline * profile.NoiseRatio,
		Src:   rand.NewPCG(g.seed, streamFor(metric, end)),
	}

	series := make([]Point, n)
	for i := 0; i < n; i++ {
		series[i] = Point{
			Timestamp: end.Add(-time.Duration(n-i) * g.interval),
			Value:     profile.Baseline + noise.Rand() + profile.offset(i, n),
		}
	}
	return series
}

// streamFor derives the PCG stream from the metric name and end time so that
// concurrent callers never share random state.
func streamFor(metric string, end time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(metric))
	return h.Sum64() ^ uint64(end.UnixNano())
}

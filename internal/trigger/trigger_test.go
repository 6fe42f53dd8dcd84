package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/metrics"
	"github.com/moolen/tripwire/internal/timeseries"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	mu     sync.Mutex
	series map[string][]float64
	errs   map[string]error
	calls  []string
}

func (s *staticSource) Series(ctx context.Context, metric string) ([]timeseries.Point, error) {
	s.mu.Lock()
	s.calls = append(s.calls, metric)
	s.mu.Unlock()

	if err := s.errs[metric]; err != nil {
		return nil, err
	}
	values := s.series[metric]
	points := make([]timeseries.Point, len(values))
	for i, v := range values {
		points[i] = timeseries.Point{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return points, nil
}

func outlierSeries(n int, baseline, outlier float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = baseline
	}
	values[n-1] = outlier
	return values
}

func newDetector(t *testing.T) *anomaly.Detector {
	t.Helper()
	d, err := anomaly.New(anomaly.DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestNewValidation(t *testing.T) {
	d := newDetector(t)
	src := &staticSource{}

	tests := []struct {
		name     string
		detector *anomaly.Detector
		source   timeseries.Source
		metrics  []string
	}{
		{"nil detector", nil, src, []string{"a"}},
		{"nil source", d, nil, []string{"a"}},
		{"no metrics", d, src, nil},
		{"empty name", d, src, []string{"a", ""}},
		{"duplicate", d, src, []string{"a", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.detector, tt.source, tt.metrics)
			assert.Error(t, err)
		})
	}
}

func TestRunHealthy(t *testing.T) {
	src := &staticSource{series: map[string][]float64{
		"cpu_usage":  {10, 10, 10, 10, 100},
		"error_rate": {20, 20, 20, 20, 200},
	}}
	trig, err := New(newDetector(t), src, []string{"cpu_usage", "error_rate"})
	require.NoError(t, err)

	result, err := trig.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Healthy())
	assert.NotNil(t, result.Anomalies)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "cpu_usage", result.Outcomes[0].Metric)
	assert.Equal(t, 5, result.Outcomes[0].Points)
	assert.InDelta(t, 118.0, result.Outcomes[0].Stats.Threshold, 1e-9)
	assert.Equal(t, "error_rate", result.Outcomes[1].Metric)
}

func TestRunKeepsConfiguredOrder(t *testing.T) {
	src := &staticSource{series: map[string][]float64{
		"c": outlierSeries(100, 50, 500),
		"a": outlierSeries(100, 10, 900),
		"b": outlierSeries(100, 5, 5),
	}}
	trig, err := New(newDetector(t), src, []string{"c", "a", "b"}, WithConcurrency(3))
	require.NoError(t, err)

	result, err := trig.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{
		result.Outcomes[0].Metric, result.Outcomes[1].Metric, result.Outcomes[2].Metric,
	})
	require.Len(t, result.Anomalies, 2)
	assert.Equal(t, "c", result.Anomalies[0].MetricName)
	assert.Equal(t, 500.0, result.Anomalies[0].Value)
	assert.Equal(t, "a", result.Anomalies[1].MetricName)
	assert.False(t, result.Healthy())
	assert.Equal(t, map[string]int{"a": 1, "b": 0, "c": 1}, result.AnomalyCounts())
}

func TestRunSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := &staticSource{
		series: map[string][]float64{"ok": {1, 2, 3}},
		errs:   map[string]error{"broken": boom},
	}
	trig, err := New(newDetector(t), src, []string{"ok", "broken"})
	require.NoError(t, err)

	result, err := trig.Run(context.Background())
	assert.Nil(t, result)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunRecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	src := &staticSource{series: map[string][]float64{
		"checkout_latency_p99": outlierSeries(100, 210, 2010),
	}}
	clock := base
	trig, err := New(newDetector(t), src, []string{"checkout_latency_p99"},
		WithMetrics(m),
		WithClock(func() time.Time {
			clock = clock.Add(10 * time.Millisecond)
			return clock
		}),
	)
	require.NoError(t, err)

	result, err := trig.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnomaliesTotal.WithLabelValues("checkout_latency_p99")))
	assert.Equal(t, 10*time.Millisecond, result.FinishedAt.Sub(result.StartedAt))
}

func TestRunEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	src := &staticSource{series: map[string][]float64{
		"a": {1, 2, 3},
		"b": {4, 5, 6},
	}}
	trig, err := New(newDetector(t), src, []string{"a", "b"}, WithTracer(provider.Tracer("test")))
	require.NoError(t, err)

	_, err = trig.Run(context.Background())
	require.NoError(t, err)

	names := map[string]int{}
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	assert.Equal(t, 1, names["trigger.Run"])
	assert.Equal(t, 2, names["trigger.evaluate"])
}

func TestRunWithGenerator(t *testing.T) {
	gen, err := timeseries.NewGenerator(timeseries.GeneratorConfig{
		Seed: 7,
		Now:  func() time.Time { return base },
	})
	require.NoError(t, err)

	trig, err := New(newDetector(t), gen, timeseries.BuiltinMetrics())
	require.NoError(t, err)

	result, err := trig.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Outcomes, len(timeseries.BuiltinMetrics()))
	for _, o := range result.Outcomes {
		assert.Equal(t, 100, o.Points, o.Metric)
		for _, r := range o.Anomalies {
			assert.Equal(t, o.Metric, r.MetricName)
			assert.Greater(t, r.Value, r.Threshold)
			assert.Equal(t, 300, r.WindowSeconds)
		}
	}
}

func TestMetricsReturnsCopy(t *testing.T) {
	trig, err := New(newDetector(t), &staticSource{}, []string{"a"})
	require.NoError(t, err)

	names := trig.Metrics()
	names[0] = "mutated"
	assert.Equal(t, []string{"a"}, trig.Metrics())
}

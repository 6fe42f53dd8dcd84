package incident

import (
	"testing"
	"time"

	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 4, 8, 0, 0, 0, time.UTC)

func record(metric string, offset time.Duration) anomaly.Record {
	return anomaly.Record{MetricName: metric, Value: 10, Threshold: 5, Timestamp: base.Add(offset), WindowSeconds: 300}
}

func TestNew(t *testing.T) {
	anomalies := []anomaly.Record{
		record("cpu_usage", 3*time.Minute),
		record("checkout_latency_p99", 9*time.Minute),
		record("cpu_usage", 5*time.Minute),
	}

	inc, err := New(anomalies, 0, base.Add(time.Hour))
	require.NoError(t, err)

	assert.Len(t, inc.ID, 8)
	assert.Equal(t, base.Add(9*time.Minute), inc.TriggeredAt)
	assert.Equal(t, base.Add(9*time.Minute-DefaultLookback), inc.Window.Start)
	assert.Equal(t, inc.TriggeredAt, inc.Window.End)
	assert.Equal(t, DefaultLookback, inc.Window.Duration())
	assert.Equal(t, anomalies, inc.Anomalies)
	assert.Equal(t, base.Add(time.Hour), inc.CreatedAt)
	assert.Equal(t, []string{"cpu_usage", "checkout_latency_p99"}, inc.Metrics())
}

func TestNewCustomLookback(t *testing.T) {
	inc, err := New([]anomaly.Record{record("m", 0)}, 5*time.Minute, base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(-5*time.Minute), inc.Window.Start)
}

func TestNewDoesNotAliasInput(t *testing.T) {
	anomalies := []anomaly.Record{record("m", 0)}
	inc, err := New(anomalies, 0, base)
	require.NoError(t, err)

	anomalies[0].MetricName = "changed"
	assert.Equal(t, "m", inc.Anomalies[0].MetricName)
}

func TestNewWithoutAnomalies(t *testing.T) {
	_, err := New(nil, 0, base)
	assert.ErrorIs(t, err, ErrNoAnomalies)
}

func TestNewUniqueIDs(t *testing.T) {
	a, err := New([]anomaly.Record{record("m", 0)}, 0, base)
	require.NoError(t, err)
	b, err := New([]anomaly.Record{record("m", 0)}, 0, base)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: base, End: base.Add(time.Hour)}
	assert.True(t, w.Contains(base))
	assert.True(t, w.Contains(base.Add(time.Hour)))
	assert.True(t, w.Contains(base.Add(30*time.Minute)))
	assert.False(t, w.Contains(base.Add(-time.Second)))
	assert.False(t, w.Contains(base.Add(time.Hour+time.Second)))
}

// Package metrics exposes Prometheus instrumentation for detection runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the detection pipeline collectors.
type Metrics struct {
	RunsTotal         prometheus.Counter
	AnomaliesTotal    *prometheus.CounterVec // labelled by metric
	IncidentsTotal    prometheus.Counter
	UploadErrorsTotal prometheus.Counter
	DetectionDuration prometheus.Histogram
	LastRunTimestamp  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Pass a
// fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripwire_detection_runs_total",
			Help: "Total number of detection runs",
		}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwire_anomalies_total",
			Help: "Total number of anomalous points detected",
		}, []string{"metric"}),
		IncidentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripwire_incidents_total",
			Help: "Total number of incidents opened",
		}),
		UploadErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripwire_upload_errors_total",
			Help: "Total number of failed artifact uploads",
		}),
		DetectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripwire_detection_duration_seconds",
			Help:    "Duration of a detection run across all metrics",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripwire_last_run_timestamp_seconds",
			Help: "Unix time of the last completed detection run",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.AnomaliesTotal,
		m.IncidentsTotal,
		m.UploadErrorsTotal,
		m.DetectionDuration,
		m.LastRunTimestamp,
	)
	return m
}

// ObserveRun records one finished run. Nil receivers are ignored so callers
// can run without instrumentation.
func (m *Metrics) ObserveRun(started, finished time.Time, anomaliesByMetric map[string]int) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.DetectionDuration.Observe(finished.Sub(started).Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	for metric, n := range anomaliesByMetric {
		m.AnomaliesTotal.WithLabelValues(metric).Add(float64(n))
	}
}

// IncidentOpened counts a new incident.
func (m *Metrics) IncidentOpened() {
	if m == nil {
		return
	}
	m.IncidentsTotal.Inc()
}

// UploadFailed counts a failed artifact upload.
func (m *Metrics) UploadFailed() {
	if m == nil {
		return
	}
	m.UploadErrorsTotal.Inc()
}

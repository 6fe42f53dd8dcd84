// Package evidence gathers the investigation data attached to an incident:
// metric comparisons, service logs, recent deploys and their diffs.
//
// All data is fabricated deterministically from a seed. Two scenarios are
// built in: a checkout latency spike after a config deploy shrank the DB pool,
// and a worker heap that leaks steadily until the pod is OOM killed.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/tripwire/internal/incident"
	"github.com/moolen/tripwire/internal/logging"
	"github.com/moolen/tripwire/internal/timeseries"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	Seed         uint64
	LogCacheSize int
	// Profiles override the built-in metric profiles, as in the metric source.
	Profiles map[string]timeseries.Profile
	Now          func() time.Time
	Tracer       trace.Tracer
}

// Bundle is the evidence collected for one incident.
type Bundle struct {
	Incident    *incident.Incident `json:"incident" yaml:"incident"`
	CollectedAt time.Time          `json:"collected_at" yaml:"collected_at"`
	Metrics     []MetricDetail     `json:"metrics" yaml:"metrics"`
	Deploys     []Deploy           `json:"deploys" yaml:"deploys"`
	Diffs       []Diff             `json:"diffs" yaml:"diffs"`
	Services    []ServiceDetail    `json:"services" yaml:"services"`
	Logs        []LogEntry         `json:"logs" yaml:"logs"`
}

// Collector produces evidence bundles.
type Collector struct {
	seed     uint64
	profiles map[string]timeseries.Profile
	logs     *Logs
	now      func() time.Time
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewCollector creates a Collector.
func NewCollector(cfg CollectorConfig) (*Collector, error) {
	profiles := make(map[string]timeseries.Profile, len(cfg.Profiles))
	for metric, p := range cfg.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", metric, err)
		}
		profiles[metric] = p
	}
	logs, err := NewLogs(cfg.Seed, cfg.LogCacheSize)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("tripwire/evidence")
	}
	return &Collector{
		seed:     cfg.Seed,
		profiles: profiles,
		logs:     logs,
		now:      cfg.Now,
		tracer:   cfg.Tracer,
		logger:   logging.GetLogger("evidence"),
	}, nil
}

// Logs returns the log generator backing the collector.
func (c *Collector) Logs() *Logs {
	return c.logs
}

// Collect gathers the evidence for inc:
//   - metric details for every anomalous metric, with AnomalousPoints set to
//     the number of incident records of that metric
//   - the deploys inside the incident window and their diffs
//   - service details and error logs of the affected services
func (c *Collector) Collect(ctx context.Context, inc *incident.Incident) (*Bundle, error) {
	if inc == nil {
		return nil, fmt.Errorf("incident is required")
	}
	ctx, span := c.tracer.Start(ctx, "evidence.Collect",
		trace.WithAttributes(attribute.String("incident_id", inc.ID)))
	defer span.End()

	bundle := &Bundle{
		Incident:    inc,
		CollectedAt: c.now(),
		Metrics:     []MetricDetail{},
		Diffs:       []Diff{},
		Services:    []ServiceDetail{},
		Logs:        []LogEntry{},
	}

	counts := make(map[string]int)
	for _, a := range inc.Anomalies {
		counts[a.MetricName]++
	}
	var services []string
	seen := make(map[string]bool)
	for _, metric := range inc.Metrics() {
		detail := c.MetricDetails(metric, inc.Window)
		detail.AnomalousPoints = counts[metric]
		bundle.Metrics = append(bundle.Metrics, detail)

		if svc := ServiceFor(metric); !seen[svc] {
			seen[svc] = true
			services = append(services, svc)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bundle.Deploys = DeploysIn(c.Deploys(inc.TriggeredAt), inc.Window)
	for _, d := range bundle.Deploys {
		bundle.Diffs = append(bundle.Diffs, c.CodeDiff(d.Service, d.CommitSHA))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, svc := range services {
		bundle.Services = append(bundle.Services, c.ServiceDetails(svc, inc.Window))
		bundle.Logs = append(bundle.Logs, c.logs.Fetch(svc, inc.Window, LevelError)...)
	}

	span.SetAttributes(
		attribute.Int("metrics", len(bundle.Metrics)),
		attribute.Int("deploys", len(bundle.Deploys)),
		attribute.Int("logs", len(bundle.Logs)),
	)
	c.logger.WithContext(ctx).DebugWithFields("Collected evidence",
		logging.Field("incident_id", inc.ID),
		logging.Field("metrics", len(bundle.Metrics)),
		logging.Field("deploys", len(bundle.Deploys)),
		logging.Field("services", len(bundle.Services)),
	)
	return bundle, nil
}

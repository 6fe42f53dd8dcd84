// Package pipeline wires detection, incident bookkeeping, evidence collection
// and artifact delivery into single runs.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/moolen/tripwire/internal/artifact"
	"github.com/moolen/tripwire/internal/evidence"
	"github.com/moolen/tripwire/internal/incident"
	"github.com/moolen/tripwire/internal/logging"
	"github.com/moolen/tripwire/internal/metrics"
	"github.com/moolen/tripwire/internal/trigger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// IncidentStore persists incidents.
type IncidentStore interface {
	SaveIncident(ctx context.Context, inc *incident.Incident) error
}

// EvidenceCollector builds the evidence bundle of an incident.
type EvidenceCollector interface {
	Collect(ctx context.Context, inc *incident.Incident) (*evidence.Bundle, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Trigger   *trigger.Trigger
	Collector EvidenceCollector
	Writer    *artifact.Writer

	// Store is optional; without it incidents are not persisted.
	Store IncidentStore
	// Uploader defaults to artifact.NopUploader.
	Uploader artifact.Uploader
	// Metrics is optional.
	Metrics *metrics.Metrics

	Lookback time.Duration
	Now      func() time.Time
	Tracer   trace.Tracer
}

// Outcome describes one run. Incident is nil when the run was healthy.
type Outcome struct {
	Result       *trigger.Result
	Incident     *incident.Incident
	Bundle       *evidence.Bundle
	ArtifactPath string
	UploadedTo   string
	// UploadErr is set when the artifact was written but not uploaded.
	UploadErr error
}

// Healthy reports whether the run found no anomalies.
func (o *Outcome) Healthy() bool {
	return o.Incident == nil
}

// Pipeline runs detection and, when anomalies are found, handles the incident.
type Pipeline struct {
	trigger   atomic.Pointer[trigger.Trigger]
	collector atomic.Pointer[collectorRef]
	writer    *artifact.Writer
	store     IncidentStore
	uploader  artifact.Uploader
	metrics   *metrics.Metrics
	lookback  time.Duration
	now       func() time.Time
	tracer    trace.Tracer
	logger    *logging.Logger
}

type collectorRef struct {
	EvidenceCollector
}

// New validates deps and returns a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Trigger == nil {
		return nil, fmt.Errorf("trigger is required")
	}
	if deps.Collector == nil {
		return nil, fmt.Errorf("evidence collector is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("artifact writer is required")
	}
	if deps.Uploader == nil {
		deps.Uploader = artifact.NopUploader{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("tripwire/pipeline")
	}

	p := &Pipeline{
		writer:    deps.Writer,
		store:     deps.Store,
		uploader:  deps.Uploader,
		metrics:   deps.Metrics,
		lookback:  deps.Lookback,
		now:       deps.Now,
		tracer:    deps.Tracer,
		logger:    logging.GetLogger("pipeline"),
	}
	p.trigger.Store(deps.Trigger)
	p.collector.Store(&collectorRef{deps.Collector})
	return p, nil
}

// SetTrigger replaces the trigger used by subsequent runs. A run in progress
// finishes with the trigger it started with.
func (p *Pipeline) SetTrigger(t *trigger.Trigger) {
	if t == nil {
		return
	}
	p.trigger.Store(t)
	p.logger.Info("Trigger replaced, now watching %d metrics", len(t.Metrics()))
}

// SetCollector replaces the evidence collector used by subsequent runs.
func (p *Pipeline) SetCollector(c EvidenceCollector) {
	if c == nil {
		return
	}
	p.collector.Store(&collectorRef{c})
}

// Trigger returns the current trigger.
func (p *Pipeline) Trigger() *trigger.Trigger {
	return p.trigger.Load()
}

// RunOnce detects anomalies and, if any, builds the incident, persists it,
// collects evidence, writes the artifact and uploads it. Upload failures are
// reported in the Outcome and do not fail the run.
func (p *Pipeline) RunOnce(ctx context.Context) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.RunOnce")
	defer span.End()

	outcome, err := p.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if outcome.Incident != nil {
		span.SetAttributes(attribute.String("incident_id", outcome.Incident.ID))
	}
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context) (*Outcome, error) {
	result, err := p.trigger.Load().Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	outcome := &Outcome{Result: result}
	if result.Healthy() {
		p.logger.Debug("No anomalies detected")
		return outcome, nil
	}

	inc, err := incident.New(result.Anomalies, p.lookback, p.now())
	if err != nil {
		return nil, err
	}
	outcome.Incident = inc
	p.metrics.IncidentOpened()

	log := p.logger.WithContext(ctx).WithField("incident_id", inc.ID)
	log.WarnWithFields("Incident opened",
		logging.Field("anomalies", len(inc.Anomalies)),
		logging.Field("metrics", inc.Metrics()),
		logging.Field("triggered_at", inc.TriggeredAt.Format(time.RFC3339)),
	)

	if p.store != nil {
		if err := p.store.SaveIncident(ctx, inc); err != nil {
			return nil, fmt.Errorf("failed to persist incident %s: %w", inc.ID, err)
		}
	}

	bundle, err := p.collector.Load().Collect(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("failed to collect evidence for incident %s: %w", inc.ID, err)
	}
	outcome.Bundle = bundle

	path, err := p.writer.Write(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifact for incident %s: %w", inc.ID, err)
	}
	outcome.ArtifactPath = path
	log.Info("Artifact written to %s", path)

	dest, err := p.uploader.Upload(ctx, path)
	if err != nil {
		outcome.UploadErr = err
		p.metrics.UploadFailed()
		log.Error("Artifact upload failed: %v", err)
		return outcome, nil
	}
	outcome.UploadedTo = dest
	return outcome, nil
}

// Package incident turns a set of anomaly records into an incident with an
// investigation window.
package incident

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/moolen/tripwire/internal/anomaly"
)

// DefaultLookback is how far before the trigger the investigation window starts.
const DefaultLookback = 30 * time.Minute

// ErrNoAnomalies is returned when an incident is requested without anomalies.
var ErrNoAnomalies = errors.New("no anomalies to build an incident from")

// Window is a closed time range.
type Window struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Contains reports whether t falls within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Incident groups the anomalies of one detection run.
type Incident struct {
	ID          string           `json:"incident_id" yaml:"incident_id"`
	TriggeredAt time.Time        `json:"triggered_at" yaml:"triggered_at"`
	Window      Window           `json:"window" yaml:"window"`
	Anomalies   []anomaly.Record `json:"anomalies" yaml:"anomalies"`
	CreatedAt   time.Time        `json:"created_at" yaml:"created_at"`
}

// New builds an incident triggered at the latest anomaly timestamp. The
// window spans lookback before the trigger; a non-positive lookback uses
// DefaultLookback.
func New(anomalies []anomaly.Record, lookback time.Duration, now time.Time) (*Incident, error) {
	if len(anomalies) == 0 {
		return nil, ErrNoAnomalies
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	triggeredAt := anomalies[0].Timestamp
	for _, a := range anomalies[1:] {
		if a.Timestamp.After(triggeredAt) {
			triggeredAt = a.Timestamp
		}
	}

	records := make([]anomaly.Record, len(anomalies))
	copy(records, anomalies)

	return &Incident{
		ID:          newID(),
		TriggeredAt: triggeredAt,
		Window: Window{
			Start: triggeredAt.Add(-lookback),
			End:   triggeredAt,
		},
		Anomalies: records,
		CreatedAt: now,
	}, nil
}

// Metrics returns the distinct metric names in first-seen order.
func (i *Incident) Metrics() []string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range i.Anomalies {
		if !seen[a.MetricName] {
			seen[a.MetricName] = true
			names = append(names, a.MetricName)
		}
	}
	return names
}

// newID returns the first block of a random UUID, short enough for file
// names and log lines.
func newID() string {
	return uuid.NewString()[:8]
}

// Package timeseries holds the point type consumed by the anomaly detector
// and the synthetic metric source that produces it.
package timeseries

import (
	"context"
	"time"
)

// Point is one sample of a metric.
type Point struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     float64   `json:"value" yaml:"value"`
}

// Source supplies the series for a named metric.
type Source interface {
	Series(ctx context.Context, metric string) ([]Point, error)
}

// Values returns the sample values of series in order.
func Values(series []Point) []float64 {
	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	return values
}

package telemetry

import (
	"context"
	"math"
	"time"
)

// Reading is one telemetry data point reported by a device.
// Immutable once stored; ID is assigned by the repository.
type Reading struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	DeviceID    string    `json:"device_id"`
	MetricName  string    `json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	Unit        string    `json:"unit,omitempty"`
}

// Validate checks a reading before storage.
func (r Reading) Validate() error {
	if r.DeviceID == "" {
		return &ValidationError{Field: "device_id", Reason: "required"}
	}
	if r.MetricName == "" {
		return &ValidationError{Field: "metric_name", Reason: "required"}
	}
	if math.IsNaN(r.MetricValue) || math.IsInf(r.MetricValue, 0) {
		return &ValidationError{Field: "metric_value", Reason: "must be finite"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "required"}
	}
	return nil
}

// MetricSummary aggregates stored values for one device metric.
type MetricSummary struct {
	DeviceID   string  `json:"device_id"`
	MetricName string  `json:"metric_name"`
	MinValue   float64 `json:"min_value"`
	MaxValue   float64 `json:"max_value"`
	AvgValue   float64 `json:"avg_value"`
	Count      int64   `json:"count"`
}

// ReadingRepository persists and queries telemetry readings.
type ReadingRepository interface {
	Insert(ctx context.Context, reading *Reading) error
	List(ctx context.Context, skip, limit int) ([]Reading, error)
	ListByDevice(ctx context.Context, deviceID string, skip, limit int) ([]Reading, error)
	Recent(ctx context.Context, deviceID string, count int) ([]Reading, error)
	Summary(ctx context.Context, deviceID, metricName string) (*MetricSummary, error)
	Series(ctx context.Context, deviceID, metricName string, limit int) ([]Reading, error)

	// FetchWindow returns up to windowSize most recent metric values for the
	// device+metric pair, newest first, strictly excluding excludeID. Short or
	// empty windows are valid results, not errors.
	FetchWindow(ctx context.Context, deviceID, metricName string, excludeID int64, windowSize int) ([]float64, error)
}

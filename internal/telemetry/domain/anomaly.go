package telemetry

import (
	"context"
	"time"
)

// Anomaly marks a stored reading whose value fell outside the trailing
// statistical baseline. Device, metric, value and timestamp are copied from
// the triggering reading; TelemetryID links back to it and is unique.
type Anomaly struct {
	ID            int64     `json:"id"`
	TelemetryID   int64     `json:"telemetry_id"`
	DeviceID      string    `json:"device_id"`
	MetricName    string    `json:"metric_name"`
	MetricValue   float64   `json:"metric_value"`
	Timestamp     time.Time `json:"timestamp"`
	AnomalyType   string    `json:"anomaly_type"`
	ThresholdUsed float64   `json:"threshold_used"`
}

// AnomalyFilter narrows anomaly listings.
type AnomalyFilter struct {
	DeviceID   string
	MetricName string
}

// AnomalyRepository persists detected anomalies. Insert must fail with
// ErrDuplicateAnomaly when an anomaly for the same TelemetryID already exists.
type AnomalyRepository interface {
	Insert(ctx context.Context, anomaly *Anomaly) error
	GetByTelemetryID(ctx context.Context, telemetryID int64) (*Anomaly, error)
	List(ctx context.Context, filter AnomalyFilter, skip, limit int) ([]Anomaly, error)
}

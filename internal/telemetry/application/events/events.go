package events

import (
	"time"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

// ReadingStored is raised after a reading is persisted.
type ReadingStored struct {
	EventID    string            `json:"event_id"`
	Reading    telemetry.Reading `json:"reading"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// AnomalyDetected is raised after an anomaly is recorded for a reading.
type AnomalyDetected struct {
	EventID    string            `json:"event_id"`
	Anomaly    telemetry.Anomaly `json:"anomaly"`
	OccurredAt time.Time         `json:"occurred_at"`
}

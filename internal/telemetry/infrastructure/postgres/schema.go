package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// EnsureSchema creates the telemetry tables when they are missing. Statements
// are idempotent so startup can run this unconditionally.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("telemetry schema: nil db")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_readings (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			device_id TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			metric_value DOUBLE PRECISION NOT NULL,
			unit TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_readings_device_metric_ts
			ON telemetry_readings (device_id, metric_name, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS telemetry_anomalies (
			id BIGSERIAL PRIMARY KEY,
			telemetry_id BIGINT NOT NULL UNIQUE REFERENCES telemetry_readings(id),
			device_id TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			metric_value DOUBLE PRECISION NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			anomaly_type TEXT,
			threshold_used DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_anomalies_device_metric_ts
			ON telemetry_anomalies (device_id, metric_name, ts DESC)`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

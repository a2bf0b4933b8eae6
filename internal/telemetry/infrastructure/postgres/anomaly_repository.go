package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

const defaultAnomaliesTable = "telemetry_anomalies"

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// AnomalyRepository is a Postgres repository for detected anomalies.
type AnomalyRepository struct {
	db    *sql.DB
	table string
}

// NewAnomalyRepository constructs a repository.
func NewAnomalyRepository(db *sql.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db, table: defaultAnomaliesTable}
}

// Insert stores an anomaly and assigns its id. The unique constraint on
// telemetry_id is the backstop against double recording; violations surface
// as ErrDuplicateAnomaly.
func (r *AnomalyRepository) Insert(ctx context.Context, anomaly *telemetry.Anomaly) error {
	if r == nil || r.db == nil {
		return errors.New("anomaly repo: nil db")
	}
	if anomaly == nil {
		return errors.New("anomaly repo: nil anomaly")
	}
	if anomaly.TelemetryID == 0 || anomaly.DeviceID == "" || anomaly.MetricName == "" {
		return errors.New("anomaly repo: missing fields")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (telemetry_id, device_id, metric_name, metric_value, ts, anomaly_type, threshold_used)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, r.table)

	row := r.db.QueryRowContext(ctx, query,
		anomaly.TelemetryID,
		anomaly.DeviceID,
		anomaly.MetricName,
		anomaly.MetricValue,
		anomaly.Timestamp.UTC(),
		anomaly.AnomalyType,
		anomaly.ThresholdUsed,
	)
	if err := row.Scan(&anomaly.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return telemetry.ErrDuplicateAnomaly
		}
		return err
	}
	return nil
}

// GetByTelemetryID fetches the anomaly recorded for a reading.
func (r *AnomalyRepository) GetByTelemetryID(ctx context.Context, telemetryID int64) (*telemetry.Anomaly, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, telemetry_id, device_id, metric_name, metric_value, ts, anomaly_type, threshold_used
FROM %s
WHERE telemetry_id = $1`, r.table)
	return scanAnomaly(r.db.QueryRowContext(ctx, query, telemetryID))
}

// List returns anomalies with pagination, newest first.
func (r *AnomalyRepository) List(ctx context.Context, filter telemetry.AnomalyFilter, skip, limit int) ([]telemetry.Anomaly, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("anomaly repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, telemetry_id, device_id, metric_name, metric_value, ts, anomaly_type, threshold_used
FROM %s
WHERE ($1 = '' OR device_id = $1)
  AND ($2 = '' OR metric_name = $2)
ORDER BY ts DESC
OFFSET $3 LIMIT $4`, r.table)
	rows, err := r.db.QueryContext(ctx, query, filter.DeviceID, filter.MetricName, normalizeSkip(skip), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var anomalies []telemetry.Anomaly
	for rows.Next() {
		var anomaly telemetry.Anomaly
		if err := rows.Scan(&anomaly.ID, &anomaly.TelemetryID, &anomaly.DeviceID, &anomaly.MetricName, &anomaly.MetricValue, &anomaly.Timestamp, &anomaly.AnomalyType, &anomaly.ThresholdUsed); err != nil {
			return nil, err
		}
		anomaly.Timestamp = anomaly.Timestamp.UTC()
		anomalies = append(anomalies, anomaly)
	}
	return anomalies, rows.Err()
}

func scanAnomaly(row *sql.Row) (*telemetry.Anomaly, error) {
	var anomaly telemetry.Anomaly
	err := row.Scan(&anomaly.ID, &anomaly.TelemetryID, &anomaly.DeviceID, &anomaly.MetricName, &anomaly.MetricValue, &anomaly.Timestamp, &anomaly.AnomalyType, &anomaly.ThresholdUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telemetry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	anomaly.Timestamp = anomaly.Timestamp.UTC()
	return &anomaly, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "telemetry_readings"

// ReadingRepository is a Postgres repository for telemetry readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// ReadingRepositoryOption configures the repository.
type ReadingRepositoryOption func(*ReadingRepository)

// WithReadingsTable overrides the default table name.
func WithReadingsTable(table string) ReadingRepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository with the default table name.
func NewReadingRepository(db *sql.DB, opts ...ReadingRepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert stores a reading and assigns its id.
func (r *ReadingRepository) Insert(ctx context.Context, reading *telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading == nil {
		return errors.New("reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (ts, device_id, metric_name, metric_value, unit)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, r.table)

	unit := sql.NullString{String: reading.Unit, Valid: reading.Unit != ""}
	row := r.db.QueryRowContext(ctx, query,
		reading.Timestamp.UTC(),
		reading.DeviceID,
		reading.MetricName,
		reading.MetricValue,
		unit,
	)
	return row.Scan(&reading.ID)
}

// List returns readings with pagination, insertion order.
func (r *ReadingRepository) List(ctx context.Context, skip, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, ts, device_id, metric_name, metric_value, unit
FROM %s
ORDER BY id
OFFSET $1 LIMIT $2`, r.table)
	rows, err := r.db.QueryContext(ctx, query, normalizeSkip(skip), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

// ListByDevice returns readings for one device with pagination.
func (r *ReadingRepository) ListByDevice(ctx context.Context, deviceID string, skip, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("reading repo: empty device id")
	}
	query := fmt.Sprintf(`
SELECT id, ts, device_id, metric_name, metric_value, unit
FROM %s
WHERE device_id = $1
ORDER BY id
OFFSET $2 LIMIT $3`, r.table)
	rows, err := r.db.QueryContext(ctx, query, deviceID, normalizeSkip(skip), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

// Recent returns the most recent readings for a device, newest first.
func (r *ReadingRepository) Recent(ctx context.Context, deviceID string, count int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("reading repo: empty device id")
	}
	if count <= 0 {
		count = 10
	}
	query := fmt.Sprintf(`
SELECT id, ts, device_id, metric_name, metric_value, unit
FROM %s
WHERE device_id = $1
ORDER BY ts DESC
LIMIT $2`, r.table)
	rows, err := r.db.QueryContext(ctx, query, deviceID, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

// Summary aggregates min/max/avg for one device metric.
func (r *ReadingRepository) Summary(ctx context.Context, deviceID, metricName string) (*telemetry.MetricSummary, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" || metricName == "" {
		return nil, errors.New("reading repo: empty device/metric")
	}
	query := fmt.Sprintf(`
SELECT MIN(metric_value), MAX(metric_value), AVG(metric_value), COUNT(*)
FROM %s
WHERE device_id = $1 AND metric_name = $2`, r.table)

	var (
		minVal sql.NullFloat64
		maxVal sql.NullFloat64
		avgVal sql.NullFloat64
		count  int64
	)
	row := r.db.QueryRowContext(ctx, query, deviceID, metricName)
	if err := row.Scan(&minVal, &maxVal, &avgVal, &count); err != nil {
		return nil, err
	}
	if count == 0 || !minVal.Valid {
		return nil, telemetry.ErrNotFound
	}
	return &telemetry.MetricSummary{
		DeviceID:   deviceID,
		MetricName: metricName,
		MinValue:   minVal.Float64,
		MaxValue:   maxVal.Float64,
		AvgValue:   avgVal.Float64,
		Count:      count,
	}, nil
}

// Series returns up to limit readings for one device metric, oldest first,
// for rendering trends.
func (r *ReadingRepository) Series(ctx context.Context, deviceID, metricName string, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" || metricName == "" {
		return nil, errors.New("reading repo: empty device/metric")
	}
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`
SELECT id, ts, device_id, metric_name, metric_value, unit
FROM %s
WHERE device_id = $1 AND metric_name = $2
ORDER BY ts ASC
LIMIT $3`, r.table)
	rows, err := r.db.QueryContext(ctx, query, deviceID, metricName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

// FetchWindow returns the most recent metric values for a device metric,
// newest first, excluding the reading currently under evaluation. Short or
// empty windows are valid results.
func (r *ReadingRepository) FetchWindow(ctx context.Context, deviceID, metricName string, excludeID int64, windowSize int) ([]float64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" || metricName == "" {
		return nil, errors.New("reading repo: empty device/metric")
	}
	if windowSize <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT metric_value
FROM %s
WHERE device_id = $1 AND metric_name = $2 AND id <> $3
ORDER BY ts DESC
LIMIT $4`, r.table)
	rows, err := r.db.QueryContext(ctx, query, deviceID, metricName, excludeID, windowSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]float64, 0, windowSize)
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func scanReadings(rows *sql.Rows) ([]telemetry.Reading, error) {
	var readings []telemetry.Reading
	for rows.Next() {
		var (
			reading telemetry.Reading
			unit    sql.NullString
		)
		if err := rows.Scan(&reading.ID, &reading.Timestamp, &reading.DeviceID, &reading.MetricName, &reading.MetricValue, &unit); err != nil {
			return nil, err
		}
		reading.Timestamp = reading.Timestamp.UTC()
		reading.Unit = unit.String
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

func normalizeSkip(skip int) int {
	if skip < 0 {
		return 0
	}
	return skip
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

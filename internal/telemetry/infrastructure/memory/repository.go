package memory

import (
	"context"
	"sort"
	"sync"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

// ReadingRepository is an in-memory repository for telemetry readings.
type ReadingRepository struct {
	mu       sync.RWMutex
	readings []telemetry.Reading
	nextID   int64
}

// NewReadingRepository constructs a repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{}
}

// Insert stores a reading and assigns its id.
func (r *ReadingRepository) Insert(ctx context.Context, reading *telemetry.Reading) error {
	_ = ctx
	if reading == nil {
		return telemetry.ErrNotFound
	}
	if err := reading.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.nextID++
	reading.ID = r.nextID
	r.readings = append(r.readings, *reading)
	r.mu.Unlock()
	return nil
}

// List returns readings with pagination, insertion order.
func (r *ReadingRepository) List(ctx context.Context, skip, limit int) ([]telemetry.Reading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return paginate(r.readings, skip, limit), nil
}

// ListByDevice returns readings for one device with pagination.
func (r *ReadingRepository) ListByDevice(ctx context.Context, deviceID string, skip, limit int) ([]telemetry.Reading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []telemetry.Reading
	for _, reading := range r.readings {
		if reading.DeviceID == deviceID {
			matched = append(matched, reading)
		}
	}
	return paginate(matched, skip, limit), nil
}

// Recent returns the most recent readings for a device, newest first.
func (r *ReadingRepository) Recent(ctx context.Context, deviceID string, count int) ([]telemetry.Reading, error) {
	_ = ctx
	if count <= 0 {
		count = 10
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []telemetry.Reading
	for _, reading := range r.readings {
		if reading.DeviceID == deviceID {
			matched = append(matched, reading)
		}
	}
	sortByTimestampDesc(matched)
	if len(matched) > count {
		matched = matched[:count]
	}
	return matched, nil
}

// Summary aggregates min/max/avg for one device metric.
func (r *ReadingRepository) Summary(ctx context.Context, deviceID, metricName string) (*telemetry.MetricSummary, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := &telemetry.MetricSummary{DeviceID: deviceID, MetricName: metricName}
	var sum float64
	for _, reading := range r.readings {
		if reading.DeviceID != deviceID || reading.MetricName != metricName {
			continue
		}
		if summary.Count == 0 || reading.MetricValue < summary.MinValue {
			summary.MinValue = reading.MetricValue
		}
		if summary.Count == 0 || reading.MetricValue > summary.MaxValue {
			summary.MaxValue = reading.MetricValue
		}
		sum += reading.MetricValue
		summary.Count++
	}
	if summary.Count == 0 {
		return nil, telemetry.ErrNotFound
	}
	summary.AvgValue = sum / float64(summary.Count)
	return summary, nil
}

// Series returns up to limit readings for one device metric, oldest first.
func (r *ReadingRepository) Series(ctx context.Context, deviceID, metricName string, limit int) ([]telemetry.Reading, error) {
	_ = ctx
	if limit <= 0 {
		limit = 200
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []telemetry.Reading
	for _, reading := range r.readings {
		if reading.DeviceID == deviceID && reading.MetricName == metricName {
			matched = append(matched, reading)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// FetchWindow returns the most recent metric values, newest first, excluding
// the reading under evaluation.
func (r *ReadingRepository) FetchWindow(ctx context.Context, deviceID, metricName string, excludeID int64, windowSize int) ([]float64, error) {
	_ = ctx
	if windowSize <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []telemetry.Reading
	for _, reading := range r.readings {
		if reading.ID == excludeID {
			continue
		}
		if reading.DeviceID == deviceID && reading.MetricName == metricName {
			matched = append(matched, reading)
		}
	}
	sortByTimestampDesc(matched)
	if len(matched) > windowSize {
		matched = matched[:windowSize]
	}
	values := make([]float64, 0, len(matched))
	for _, reading := range matched {
		values = append(values, reading.MetricValue)
	}
	return values, nil
}

// AnomalyRepository is an in-memory repository for detected anomalies.
type AnomalyRepository struct {
	mu            sync.RWMutex
	anomalies     []telemetry.Anomaly
	byTelemetryID map[int64]int
	nextID        int64
}

// NewAnomalyRepository constructs a repository.
func NewAnomalyRepository() *AnomalyRepository {
	return &AnomalyRepository{byTelemetryID: make(map[int64]int)}
}

// Insert stores an anomaly, enforcing telemetry_id uniqueness.
func (r *AnomalyRepository) Insert(ctx context.Context, anomaly *telemetry.Anomaly) error {
	_ = ctx
	if anomaly == nil || anomaly.TelemetryID == 0 {
		return telemetry.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTelemetryID[anomaly.TelemetryID]; ok {
		return telemetry.ErrDuplicateAnomaly
	}
	r.nextID++
	anomaly.ID = r.nextID
	r.byTelemetryID[anomaly.TelemetryID] = len(r.anomalies)
	r.anomalies = append(r.anomalies, *anomaly)
	return nil
}

// GetByTelemetryID fetches the anomaly recorded for a reading.
func (r *AnomalyRepository) GetByTelemetryID(ctx context.Context, telemetryID int64) (*telemetry.Anomaly, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byTelemetryID[telemetryID]
	if !ok {
		return nil, telemetry.ErrNotFound
	}
	anomaly := r.anomalies[idx]
	return &anomaly, nil
}

// List returns anomalies with pagination, newest first.
func (r *AnomalyRepository) List(ctx context.Context, filter telemetry.AnomalyFilter, skip, limit int) ([]telemetry.Anomaly, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []telemetry.Anomaly
	for _, anomaly := range r.anomalies {
		if filter.DeviceID != "" && anomaly.DeviceID != filter.DeviceID {
			continue
		}
		if filter.MetricName != "" && anomaly.MetricName != filter.MetricName {
			continue
		}
		matched = append(matched, anomaly)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return paginateAnomalies(matched, skip, limit), nil
}

func paginate(readings []telemetry.Reading, skip, limit int) []telemetry.Reading {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if skip >= len(readings) {
		return nil
	}
	end := skip + limit
	if end > len(readings) {
		end = len(readings)
	}
	out := make([]telemetry.Reading, end-skip)
	copy(out, readings[skip:end])
	return out
}

func paginateAnomalies(anomalies []telemetry.Anomaly, skip, limit int) []telemetry.Anomaly {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if skip >= len(anomalies) {
		return nil
	}
	end := skip + limit
	if end > len(anomalies) {
		end = len(anomalies)
	}
	out := make([]telemetry.Anomaly, end-skip)
	copy(out, anomalies[skip:end])
	return out
}

func sortByTimestampDesc(readings []telemetry.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})
}

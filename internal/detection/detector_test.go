package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

type stubReadingRepo struct {
	telemetry.ReadingRepository

	window    []float64
	windowErr error

	gotDeviceID  string
	gotMetric    string
	gotExcludeID int64
	gotSize      int
}

func (s *stubReadingRepo) FetchWindow(_ context.Context, deviceID, metricName string, excludeID int64, windowSize int) ([]float64, error) {
	s.gotDeviceID = deviceID
	s.gotMetric = metricName
	s.gotExcludeID = excludeID
	s.gotSize = windowSize
	if s.windowErr != nil {
		return nil, s.windowErr
	}
	return s.window, nil
}

type stubAnomalyRepo struct {
	telemetry.AnomalyRepository

	byTelemetryID map[int64]*telemetry.Anomaly
	nextID        int64
	insertErr     error
	inserts       int
}

func newStubAnomalyRepo() *stubAnomalyRepo {
	return &stubAnomalyRepo{byTelemetryID: make(map[int64]*telemetry.Anomaly)}
}

func (s *stubAnomalyRepo) Insert(_ context.Context, anomaly *telemetry.Anomaly) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.byTelemetryID[anomaly.TelemetryID]; ok {
		return telemetry.ErrDuplicateAnomaly
	}
	s.nextID++
	anomaly.ID = s.nextID
	stored := *anomaly
	s.byTelemetryID[anomaly.TelemetryID] = &stored
	s.inserts++
	return nil
}

func (s *stubAnomalyRepo) GetByTelemetryID(_ context.Context, telemetryID int64) (*telemetry.Anomaly, error) {
	anomaly, ok := s.byTelemetryID[telemetryID]
	if !ok {
		return nil, telemetry.ErrNotFound
	}
	copied := *anomaly
	return &copied, nil
}

func testReading(id int64, value float64) *telemetry.Reading {
	return &telemetry.Reading{
		ID:          id,
		Timestamp:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		DeviceID:    "sensor-alpha-001",
		MetricName:  "temperature",
		MetricValue: value,
		Unit:        "Celsius",
	}
}

func TestDetectRecordsAnomaly(t *testing.T) {
	readings := &stubReadingRepo{window: []float64{10, 11, 9, 10, 10}}
	anomalies := newStubAnomalyRepo()
	detector, err := NewDetector(readings, anomalies)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	reading := testReading(7, 30)
	anomaly, err := detector.Detect(context.Background(), reading)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomaly == nil {
		t.Fatal("expected anomaly")
	}
	if anomaly.TelemetryID != 7 {
		t.Fatalf("expected telemetry id 7, got %d", anomaly.TelemetryID)
	}
	if anomaly.DeviceID != reading.DeviceID || anomaly.MetricName != reading.MetricName {
		t.Fatalf("anomaly must copy device/metric, got %s/%s", anomaly.DeviceID, anomaly.MetricName)
	}
	if anomaly.MetricValue != 30 {
		t.Fatalf("anomaly must copy value, got %v", anomaly.MetricValue)
	}
	if !anomaly.Timestamp.Equal(reading.Timestamp) {
		t.Fatalf("anomaly must copy timestamp, got %v", anomaly.Timestamp)
	}
	if anomaly.ThresholdUsed != DefaultThreshold {
		t.Fatalf("expected threshold %v, got %v", DefaultThreshold, anomaly.ThresholdUsed)
	}
	if anomaly.AnomalyType != "High Z-score (31.62)" {
		t.Fatalf("unexpected anomaly type %q", anomaly.AnomalyType)
	}
}

func TestDetectPassesWindowQuery(t *testing.T) {
	readings := &stubReadingRepo{window: []float64{10, 11, 9, 10, 10}}
	detector, err := NewDetector(readings, newStubAnomalyRepo())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	if _, err := detector.Detect(context.Background(), testReading(42, 30)); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if readings.gotDeviceID != "sensor-alpha-001" || readings.gotMetric != "temperature" {
		t.Fatalf("unexpected window query %s/%s", readings.gotDeviceID, readings.gotMetric)
	}
	if readings.gotExcludeID != 42 {
		t.Fatalf("window must exclude the reading under evaluation, got exclude id %d", readings.gotExcludeID)
	}
	if readings.gotSize != DefaultWindowSize {
		t.Fatalf("expected window size %d, got %d", DefaultWindowSize, readings.gotSize)
	}
}

func TestDetectNoVerdictOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		window []float64
		value  float64
	}{
		{"short window", []float64{10, 11, 9}, 1e6},
		{"flat window", []float64{10, 10, 10, 10, 10}, 10},
		{"below threshold", []float64{100, 102, 98, 101, 99}, 103},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			anomalies := newStubAnomalyRepo()
			detector, err := NewDetector(&stubReadingRepo{window: tc.window}, anomalies)
			if err != nil {
				t.Fatalf("new detector: %v", err)
			}
			anomaly, err := detector.Detect(context.Background(), testReading(1, tc.value))
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if anomaly != nil {
				t.Fatalf("expected no verdict, got anomaly %+v", anomaly)
			}
			if anomalies.inserts != 0 {
				t.Fatalf("no-verdict must not persist, got %d inserts", anomalies.inserts)
			}
		})
	}
}

func TestDetectAtMostOncePerReading(t *testing.T) {
	anomalies := newStubAnomalyRepo()
	detector, err := NewDetector(&stubReadingRepo{window: []float64{10, 11, 9, 10, 10}}, anomalies)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	reading := testReading(7, 30)
	first, err := detector.Detect(context.Background(), reading)
	if err != nil {
		t.Fatalf("first detect: %v", err)
	}
	second, err := detector.Detect(context.Background(), reading)
	if err != nil {
		t.Fatalf("second detect: %v", err)
	}
	if anomalies.inserts != 1 {
		t.Fatalf("expected a single insert, got %d", anomalies.inserts)
	}
	if second == nil || second.ID != first.ID {
		t.Fatalf("retry must resolve to the recorded anomaly, got %+v", second)
	}
}

func TestDetectWindowFetchError(t *testing.T) {
	wantErr := errors.New("db gone")
	detector, err := NewDetector(&stubReadingRepo{windowErr: wantErr}, newStubAnomalyRepo())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if _, err := detector.Detect(context.Background(), testReading(1, 30)); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestDetectRecordError(t *testing.T) {
	anomalies := newStubAnomalyRepo()
	anomalies.insertErr = errors.New("insert failed")
	detector, err := NewDetector(&stubReadingRepo{window: []float64{10, 11, 9, 10, 10}}, anomalies)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if _, err := detector.Detect(context.Background(), testReading(1, 30)); err == nil {
		t.Fatal("expected recording error to surface")
	}
}

func TestDetectUnstoredReading(t *testing.T) {
	detector, err := NewDetector(&stubReadingRepo{}, newStubAnomalyRepo())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if _, err := detector.Detect(context.Background(), &telemetry.Reading{DeviceID: "d", MetricName: "m"}); err == nil {
		t.Fatal("expected error for reading without id")
	}
}

func TestDetectPerMetricOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics = map[string]Params{
		"temperature": {Threshold: 40},
	}
	readings := &stubReadingRepo{window: []float64{10, 11, 9, 10, 10}}
	anomalies := newStubAnomalyRepo()
	detector, err := NewDetector(readings, anomalies, WithConfig(cfg))
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	// Score ~31.6 stays under the per-metric threshold of 40.
	anomaly, err := detector.Detect(context.Background(), testReading(1, 30))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if anomaly != nil {
		t.Fatalf("expected no verdict under raised threshold, got %+v", anomaly)
	}
}

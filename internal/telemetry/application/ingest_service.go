package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"telemetry-cloud/internal/detection"
	"telemetry-cloud/internal/eventing"
	"telemetry-cloud/internal/observability/metrics"
	"telemetry-cloud/internal/telemetry/application/events"
	telemetry "telemetry-cloud/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Result reports the outcome of one ingestion. DetectionErr carries a failure
// of the detection side effect; the reading is stored regardless.
type Result struct {
	Reading      telemetry.Reading
	Anomaly      *telemetry.Anomaly
	DetectionErr error
}

// IngestService orchestrates the per-reading flow: validate, store, fetch
// window, score, and conditionally record an anomaly. Each call is one
// short-lived synchronous unit of work.
type IngestService struct {
	readings telemetry.ReadingRepository
	detector *detection.Detector
	bus      eventing.EventBus
	logger   *log.Logger
	clock    Clock
}

// IngestOption customizes the service.
type IngestOption func(*IngestService)

// WithBus assigns an event bus for anomaly fan-out.
func WithBus(bus eventing.EventBus) IngestOption {
	return func(s *IngestService) {
		s.bus = bus
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) IngestOption {
	return func(s *IngestService) {
		s.clock = clock
	}
}

// NewIngestService constructs an ingest service.
func NewIngestService(readings telemetry.ReadingRepository, detector *detection.Detector, logger *log.Logger, opts ...IngestOption) (*IngestService, error) {
	if readings == nil {
		return nil, errors.New("ingest: nil reading repository")
	}
	if detector == nil {
		return nil, errors.New("ingest: nil detector")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &IngestService{
		readings: readings,
		detector: detector,
		logger:   logger,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest stores one reading and runs anomaly detection on it. A validation or
// storage failure aborts the flow and returns an error. A detection failure
// after storage does not: the stored reading is never lost because detection
// failed, so it is reported through Result.DetectionErr instead.
func (s *IngestService) Ingest(ctx context.Context, reading telemetry.Reading) (*Result, error) {
	if s == nil {
		return nil, errors.New("ingest: nil service")
	}

	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.clock.Now()
	}
	reading.Timestamp = reading.Timestamp.UTC()

	if err := reading.Validate(); err != nil {
		return nil, err
	}

	if err := s.readings.Insert(ctx, &reading); err != nil {
		return nil, fmt.Errorf("ingest: store reading: %w", err)
	}
	s.publish(ctx, events.ReadingStored{
		EventID:    eventing.NewEventID(),
		Reading:    reading,
		OccurredAt: s.clock.Now(),
	})

	result := &Result{Reading: reading}

	anomaly, err := s.detector.Detect(ctx, &reading)
	if err != nil {
		s.logger.Printf("ingest: detection failed for reading %d: %v", reading.ID, err)
		metrics.IncDetection("error")
		result.DetectionErr = err
		return result, nil
	}
	if anomaly == nil {
		metrics.IncDetection("discarded")
		return result, nil
	}

	metrics.IncDetection("recorded")
	metrics.IncAnomaly(anomaly.DeviceID, anomaly.MetricName)
	s.logger.Printf("ingest: anomaly recorded: device=%s metric=%s value=%.4f type=%q",
		anomaly.DeviceID, anomaly.MetricName, anomaly.MetricValue, anomaly.AnomalyType)

	result.Anomaly = anomaly
	s.publish(ctx, events.AnomalyDetected{
		EventID:    eventing.NewEventID(),
		Anomaly:    *anomaly,
		OccurredAt: s.clock.Now(),
	})
	return result, nil
}

func (s *IngestService) publish(ctx context.Context, event any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Printf("ingest: publish %s: %v", eventing.EventType(event), err)
	}
}

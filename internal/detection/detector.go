package detection

import (
	"context"
	"errors"
	"fmt"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

// Detector evaluates freshly stored readings against their trailing window and
// records anomalies at most once per reading. It holds no state of its own:
// every call recomputes from the window it fetches.
type Detector struct {
	readings  telemetry.ReadingRepository
	anomalies telemetry.AnomalyRepository
	cfg       Config
}

// Option customizes the detector.
type Option func(*Detector)

// WithConfig overrides the detector tuning.
func WithConfig(cfg Config) Option {
	return func(d *Detector) {
		d.cfg = cfg
	}
}

// NewDetector constructs a detector.
func NewDetector(readings telemetry.ReadingRepository, anomalies telemetry.AnomalyRepository, opts ...Option) (*Detector, error) {
	if readings == nil {
		return nil, errors.New("detection: nil reading repository")
	}
	if anomalies == nil {
		return nil, errors.New("detection: nil anomaly repository")
	}
	detector := &Detector{
		readings:  readings,
		anomalies: anomalies,
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(detector)
	}
	return detector, nil
}

// Detect runs the window fetch, scoring and conditional recording for one
// stored reading. It returns the recorded anomaly, or nil on a no-verdict
// outcome. Calling it again for the same reading resolves to the already
// recorded anomaly instead of creating a second one.
func (d *Detector) Detect(ctx context.Context, reading *telemetry.Reading) (*telemetry.Anomaly, error) {
	if d == nil {
		return nil, errors.New("detection: nil detector")
	}
	if reading == nil {
		return nil, errors.New("detection: nil reading")
	}
	if reading.ID == 0 {
		return nil, errors.New("detection: reading not stored")
	}

	params := d.cfg.ParamsFor(reading.MetricName)

	window, err := d.readings.FetchWindow(ctx, reading.DeviceID, reading.MetricName, reading.ID, params.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("detection: fetch window: %w", err)
	}

	verdict := Score(reading.MetricValue, window, params.MinSamples, params.Threshold)
	if !verdict.IsAnomaly() {
		return nil, nil
	}

	anomaly := &telemetry.Anomaly{
		TelemetryID:   reading.ID,
		DeviceID:      reading.DeviceID,
		MetricName:    reading.MetricName,
		MetricValue:   reading.MetricValue,
		Timestamp:     reading.Timestamp,
		AnomalyType:   fmt.Sprintf("High Z-score (%.2f)", verdict.Score),
		ThresholdUsed: params.Threshold,
	}

	if err := d.anomalies.Insert(ctx, anomaly); err != nil {
		if errors.Is(err, telemetry.ErrDuplicateAnomaly) {
			existing, getErr := d.anomalies.GetByTelemetryID(ctx, reading.ID)
			if getErr != nil {
				return nil, fmt.Errorf("detection: resolve duplicate: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("detection: record anomaly: %w", err)
	}
	return anomaly, nil
}

// Verdict exposes scoring without persistence, for callers that only need the
// classification.
func (d *Detector) Verdict(ctx context.Context, reading *telemetry.Reading) (Verdict, error) {
	if d == nil || reading == nil || reading.ID == 0 {
		return Verdict{}, errors.New("detection: invalid reading")
	}
	params := d.cfg.ParamsFor(reading.MetricName)
	window, err := d.readings.FetchWindow(ctx, reading.DeviceID, reading.MetricName, reading.ID, params.WindowSize)
	if err != nil {
		return Verdict{}, fmt.Errorf("detection: fetch window: %w", err)
	}
	return Score(reading.MetricValue, window, params.MinSamples, params.Threshold), nil
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"telemetry-cloud/internal/observability/metrics"
	"telemetry-cloud/internal/telemetry/application"
	telemetry "telemetry-cloud/internal/telemetry/domain"
)

const maxIngestBody = 1 << 20

// IngestHandler accepts telemetry readings over HTTP.
type IngestHandler struct {
	service *application.IngestService
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.IngestService) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	return &IngestHandler{service: service}, nil
}

type ingestRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	DeviceID    string    `json:"device_id"`
	MetricName  string    `json:"metric_name"`
	MetricValue *float64  `json:"metric_value"`
	Unit        string    `json:"unit"`
}

type ingestResponse struct {
	Reading telemetry.Reading  `json:"reading"`
	Anomaly *telemetry.Anomaly `json:"anomaly,omitempty"`
}

// ServeHTTP handles POST /ingest/telemetry.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	started := time.Now()

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		metrics.IncIngestError("content_type")
		http.Error(w, "content type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	var req ingestRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err := decoder.Decode(&req); err != nil {
		metrics.IncIngestError("decode")
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.MetricValue == nil {
		metrics.IncIngestError("validation")
		http.Error(w, "metric_value is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), telemetry.Reading{
		Timestamp:   req.Timestamp,
		DeviceID:    req.DeviceID,
		MetricName:  req.MetricName,
		MetricValue: *req.MetricValue,
		Unit:        req.Unit,
	})
	if err != nil {
		if telemetry.IsValidation(err) {
			metrics.IncIngestError("validation")
			metrics.ObserveIngest(metrics.ResultError, time.Since(started))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		metrics.IncIngestError("storage")
		metrics.ObserveIngest(metrics.ResultError, time.Since(started))
		http.Error(w, "store reading error", http.StatusInternalServerError)
		return
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(started))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ingestResponse{
		Reading: result.Reading,
		Anomaly: result.Anomaly,
	})
}

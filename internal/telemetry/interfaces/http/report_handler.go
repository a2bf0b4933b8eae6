package http

import (
	"errors"
	"net/http"
	"time"

	"telemetry-cloud/internal/observability/metrics"
	"telemetry-cloud/internal/telemetry/interfaces"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

const maxSeriesPoints = 2000

// ReportHandler serves trend reports under /api/v1/reports.
type ReportHandler struct {
	readings  telemetry.ReadingRepository
	anomalies telemetry.AnomalyRepository
}

// NewReportHandler constructs a report handler.
func NewReportHandler(readings telemetry.ReadingRepository, anomalies telemetry.AnomalyRepository) (*ReportHandler, error) {
	if readings == nil {
		return nil, errors.New("report handler: nil reading repository")
	}
	if anomalies == nil {
		return nil, errors.New("report handler: nil anomaly repository")
	}
	return &ReportHandler{readings: readings, anomalies: anomalies}, nil
}

// ServeHTTP handles GET /api/v1/reports/trend.pdf and trend.xlsx.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.readings == nil || h.anomalies == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var format string
	switch r.URL.Path {
	case "/api/v1/reports/trend.pdf":
		format = "pdf"
	case "/api/v1/reports/trend.xlsx":
		format = "xlsx"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	started := time.Now()

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	metricName := r.URL.Query().Get("metric")
	if metricName == "" {
		http.Error(w, "metric is required", http.StatusBadRequest)
		return
	}
	limit, err := parseIntQuery(r, "limit", 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if limit <= 0 || limit > maxSeriesPoints {
		http.Error(w, "limit must be between 1 and 2000", http.StatusBadRequest)
		return
	}

	series, err := h.readings.Series(r.Context(), deviceID, metricName, limit)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "query telemetry error", http.StatusInternalServerError)
		return
	}
	if len(series) == 0 {
		http.Error(w, "no telemetry for device "+deviceID, http.StatusNotFound)
		return
	}

	anomalies, err := h.anomalies.List(r.Context(), telemetry.AnomalyFilter{
		DeviceID:   deviceID,
		MetricName: metricName,
	}, 0, maxSeriesPoints)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "query anomalies error", http.StatusInternalServerError)
		return
	}

	var payload []byte
	switch format {
	case "pdf":
		payload, err = interfaces.BuildTrendPDF(deviceID, metricName, series, anomalies)
	case "xlsx":
		payload, err = interfaces.BuildTrendXLSX(deviceID, metricName, series, anomalies)
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "render report error", http.StatusInternalServerError)
		return
	}

	switch format {
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="trend.pdf"`)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="trend.xlsx"`)
	}
	_, _ = w.Write(payload)

	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
}

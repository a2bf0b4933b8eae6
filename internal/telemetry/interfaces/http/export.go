package http

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"telemetry-cloud/internal/observability/metrics"
	telemetry "telemetry-cloud/internal/telemetry/domain"
)

const timeLayout = time.RFC3339

// ExportCSVHandler serves telemetry CSV exports.
type ExportCSVHandler struct {
	readings telemetry.ReadingRepository
}

// NewExportCSVHandler constructs a ExportCSVHandler.
func NewExportCSVHandler(readings telemetry.ReadingRepository) (*ExportCSVHandler, error) {
	if readings == nil {
		return nil, errors.New("export handler: nil reading repository")
	}
	return &ExportCSVHandler{readings: readings}, nil
}

// ServeHTTP handles GET /api/v1/exports/telemetry.csv.
func (h *ExportCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.readings == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	started := time.Now()

	skip, limit, err := parsePagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	metricName := r.URL.Query().Get("metric")
	var list []telemetry.Reading
	switch {
	case metricName != "" && deviceID == "":
		http.Error(w, "metric filter requires device_id", http.StatusBadRequest)
		return
	case metricName != "":
		list, err = h.readings.Series(r.Context(), deviceID, metricName, limit)
	case deviceID != "":
		list, err = h.readings.ListByDevice(r.Context(), deviceID, skip, limit)
	default:
		list, err = h.readings.List(r.Context(), skip, limit)
	}
	if err != nil {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(started))
		http.Error(w, "query telemetry error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="telemetry.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "timestamp", "device_id", "metric_name", "metric_value", "unit"})
	for _, reading := range list {
		_ = writer.Write([]string{
			strconv.FormatInt(reading.ID, 10),
			reading.Timestamp.UTC().Format(timeLayout),
			reading.DeviceID,
			reading.MetricName,
			strconv.FormatFloat(reading.MetricValue, 'f', -1, 64),
			reading.Unit,
		})
	}
	writer.Flush()

	metrics.ObserveExport("csv", metrics.ResultSuccess, time.Since(started))
}

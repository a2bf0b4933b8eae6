package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	defaultCount = 10
)

// QueryHandler serves telemetry read endpoints under /api/v1/telemetry.
type QueryHandler struct {
	readings telemetry.ReadingRepository
}

// NewQueryHandler constructs a query handler.
func NewQueryHandler(readings telemetry.ReadingRepository) (*QueryHandler, error) {
	if readings == nil {
		return nil, errors.New("query handler: nil reading repository")
	}
	return &QueryHandler{readings: readings}, nil
}

// ServeHTTP handles /api/v1/telemetry and subroutes.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.readings == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	switch {
	case r.URL.Path == "/api/v1/telemetry":
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/telemetry/recent":
		h.handleRecent(w, r)
	case r.URL.Path == "/api/v1/telemetry/summary":
		h.handleSummary(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/telemetry/device/"):
		h.handleDevice(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *QueryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parsePagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.readings.List(r.Context(), skip, limit)
	if err != nil {
		http.Error(w, "query telemetry error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, emptyAsSlice(list))
}

func (h *QueryHandler) handleDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/telemetry/device/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	skip, limit, err := parsePagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.readings.ListByDevice(r.Context(), deviceID, skip, limit)
	if err != nil {
		http.Error(w, "query telemetry error", http.StatusInternalServerError)
		return
	}
	if len(list) == 0 {
		http.Error(w, "no telemetry for device "+deviceID, http.StatusNotFound)
		return
	}
	writeJSON(w, list)
}

func (h *QueryHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	count, err := parseIntQuery(r, "count", defaultCount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if count <= 0 || count > maxLimit {
		http.Error(w, "count must be between 1 and 1000", http.StatusBadRequest)
		return
	}
	list, err := h.readings.Recent(r.Context(), deviceID, count)
	if err != nil {
		http.Error(w, "query telemetry error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, emptyAsSlice(list))
}

func (h *QueryHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
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
	summary, err := h.readings.Summary(r.Context(), deviceID, metricName)
	if err != nil {
		if errors.Is(err, telemetry.ErrNotFound) {
			http.Error(w, "no telemetry for device "+deviceID, http.StatusNotFound)
			return
		}
		http.Error(w, "query summary error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

// AnomalyHandler serves GET /api/v1/anomalies.
type AnomalyHandler struct {
	anomalies telemetry.AnomalyRepository
}

// NewAnomalyHandler constructs an anomaly handler.
func NewAnomalyHandler(anomalies telemetry.AnomalyRepository) (*AnomalyHandler, error) {
	if anomalies == nil {
		return nil, errors.New("anomaly handler: nil anomaly repository")
	}
	return &AnomalyHandler{anomalies: anomalies}, nil
}

// ServeHTTP lists recorded anomalies, newest first.
func (h *AnomalyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.anomalies == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	skip, limit, err := parsePagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := telemetry.AnomalyFilter{
		DeviceID:   r.URL.Query().Get("device_id"),
		MetricName: r.URL.Query().Get("metric_name"),
	}
	list, err := h.anomalies.List(r.Context(), filter, skip, limit)
	if err != nil {
		http.Error(w, "query anomalies error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, emptyAnomaliesAsSlice(list))
}

func parsePagination(r *http.Request) (skip, limit int, err error) {
	skip, err = parseIntQuery(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	if skip < 0 {
		return 0, 0, errors.New("skip must not be negative")
	}
	limit, err = parseIntQuery(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if limit <= 0 || limit > maxLimit {
		return 0, 0, errors.New("limit must be between 1 and 1000")
	}
	return skip, limit, nil
}

func parseIntQuery(r *http.Request, key string, fallback int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func emptyAsSlice(list []telemetry.Reading) []telemetry.Reading {
	if list == nil {
		return []telemetry.Reading{}
	}
	return list
}

func emptyAnomaliesAsSlice(list []telemetry.Anomaly) []telemetry.Anomaly {
	if list == nil {
		return []telemetry.Anomaly{}
	}
	return list
}

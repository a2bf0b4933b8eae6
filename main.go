package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"telemetry-cloud/internal/auth"
	"telemetry-cloud/internal/detection"
	"telemetry-cloud/internal/eventing"
	"telemetry-cloud/internal/observability/metrics"
	"telemetry-cloud/internal/telemetry/application"
	telemetryhttp "telemetry-cloud/internal/telemetry/interfaces/http"
	telemetrypostgres "telemetry-cloud/internal/telemetry/infrastructure/postgres"
	"telemetry-cloud/internal/telemetry/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}
	if err := telemetrypostgres.EnsureSchema(context.Background(), db); err != nil {
		logger.Fatalf("schema error: %v", err)
	}

	metrics.Init()

	detectionCfg, err := detection.LoadConfig(cfg.DetectionConfigPath)
	if err != nil {
		logger.Fatalf("detection config error: %v", err)
	}

	readingRepo := telemetrypostgres.NewReadingRepository(db)
	anomalyRepo := telemetrypostgres.NewAnomalyRepository(db)

	detector, err := detection.NewDetector(readingRepo, anomalyRepo, detection.WithConfig(detectionCfg))
	if err != nil {
		logger.Fatalf("detector error: %v", err)
	}

	bus := eventing.NewInMemoryBus()

	broker := telemetryhttp.NewSSEBroker()
	broker.Attach(bus)

	if cfg.AnomalyWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.AnomalyWebhookURL)
		if err != nil {
			logger.Fatalf("anomaly webhook error: %v", err)
		}
		tpl, err := notify.NewTemplate(cfg.AnomalyNotifyTemplate)
		if err != nil {
			logger.Fatalf("anomaly template error: %v", err)
		}
		notifier, err := notify.NewNotifier(channel, tpl,
			notify.WithCooldown(cfg.AnomalyNotifyCooldown),
			notify.WithDedupeWindow(cfg.AnomalyNotifyDedupeWindow),
		)
		if err != nil {
			logger.Fatalf("anomaly notifier error: %v", err)
		}
		notifier.Attach(bus)
	}

	ingestService, err := application.NewIngestService(readingRepo, detector, logger, application.WithBus(bus))
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	ingestHandler, err := telemetryhttp.NewIngestHandler(ingestService)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	queryHandler, err := telemetryhttp.NewQueryHandler(readingRepo)
	if err != nil {
		logger.Fatalf("query handler error: %v", err)
	}
	anomalyHandler, err := telemetryhttp.NewAnomalyHandler(anomalyRepo)
	if err != nil {
		logger.Fatalf("anomaly handler error: %v", err)
	}
	exportHandler, err := telemetryhttp.NewExportCSVHandler(readingRepo)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}
	reportHandler, err := telemetryhttp.NewReportHandler(readingRepo, anomalyRepo)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/ingest/telemetry", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/telemetry", queryHandler)
	mux.Handle("/api/v1/telemetry/", queryHandler)
	mux.Handle("/api/v1/anomalies", anomalyHandler)
	mux.Handle("/api/v1/anomalies/stream", telemetryhttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/exports/telemetry.csv", exportHandler)
	mux.Handle("/api/v1/reports/", reportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL               string
	HTTPAddr                  string
	DetectionConfigPath       string
	AnomalyWebhookURL         string
	AnomalyNotifyTemplate     string
	AnomalyNotifyCooldown     time.Duration
	AnomalyNotifyDedupeWindow time.Duration
	JWTSecret                 string
	IngestSecret              string
	IngestSkewSeconds         int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:               getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                  getenvDefault("HTTP_ADDR", ":8080"),
		DetectionConfigPath:       getenvDefault("DETECTION_CONFIG", ""),
		AnomalyWebhookURL:         getenvDefault("ANOMALY_WEBHOOK_URL", ""),
		AnomalyNotifyTemplate:     getenvDefault("ANOMALY_NOTIFY_TEMPLATE", ""),
		AnomalyNotifyCooldown:     getenvDuration("ANOMALY_NOTIFY_COOLDOWN", 0),
		AnomalyNotifyDedupeWindow: getenvDuration("ANOMALY_NOTIFY_DEDUP_WINDOW", 0),
		JWTSecret:                 getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:              getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:         getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE responses streaming through the wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

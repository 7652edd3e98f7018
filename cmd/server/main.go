// Package main is the entry point for the prime rate API server. It serves
// the published rate series, breakdowns and stacked contribution series to
// the chart frontends.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/stablecoin-prime-rate/internal/aggregate"
	"github.com/yourorg/stablecoin-prime-rate/internal/chartdata"
	"github.com/yourorg/stablecoin-prime-rate/internal/config"
	"github.com/yourorg/stablecoin-prime-rate/internal/otel"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server represents the API server instance
type Server struct {
	cfg     config.Config
	data    *datasetCache
	server  *http.Server
	metrics *serverMetrics
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	currentRate     prometheus.Gauge
	currentTVL      prometheus.Gauge
	poolCount       prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prime_rate_requests_total",
				Help: "Total number of API requests processed",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prime_rate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		currentRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prime_rate_current",
				Help: "Latest TVL-weighted aggregate rate in percent",
			},
		),
		currentTVL: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prime_rate_total_tvl_usd",
				Help: "Total TVL across tracked pools on the latest date",
			},
		),
		poolCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prime_rate_pool_count",
				Help: "Number of pools in the current dataset",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.currentRate,
		m.currentTVL,
		m.poolCount,
	)

	return m
}

// main is the entry point for the application
func main() {
	setupLogging()
	cfg := config.Load()

	shutdown := otel.InitTracer(cfg)
	defer shutdown()

	server := NewServer(cfg)
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// NewServer creates a new server instance
func NewServer(cfg config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		data:    newDatasetCache(cfg, time.Minute),
		metrics: registerMetrics(),
	}
	s.data.onRefresh = func(ds dataset) {
		if len(ds.rates) > 0 {
			s.metrics.currentRate.Set(ds.rates[len(ds.rates)-1].WeightedAPY)
		}
		if dates := ds.snaps.Dates(); len(dates) > 0 {
			s.metrics.currentTVL.Set(ds.snaps.TotalTVL(dates[len(dates)-1]))
		}
		s.metrics.poolCount.Set(float64(len(ds.meta)))
	}

	logrus.WithFields(logrus.Fields{
		"port":      cfg.Port,
		"data_dir":  cfg.DataDir,
		"db_path":   cfg.DBPath,
		"group_key": cfg.GroupKey,
		"top_n":     cfg.TopN,
	}).Info("Server initialized")

	return s
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/rate/current", s.instrument("rate_current", s.handleRateCurrent))
	mux.HandleFunc("/api/v1/rate/history", s.instrument("rate_history", s.handleRateHistory))
	mux.HandleFunc("/api/v1/breakdown", s.instrument("breakdown", s.handleBreakdown))
	mux.HandleFunc("/api/v1/contributions", s.instrument("contributions", s.handleContributions))

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}

// instrument wraps a handler with request counting and timing.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(rw, r)
		s.metrics.requestCounter.WithLabelValues(endpoint, strconv.Itoa(rw.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": "1.0.0",
		"configuration": map[string]interface{}{
			"group_key": s.cfg.GroupKey,
			"top_n":     s.cfg.TopN,
			"data_dir":  s.cfg.DataDir,
		},
	}

	if ds, err := s.data.get(r.Context()); err == nil {
		dates := ds.snaps.Dates()
		status["dates"] = len(dates)
		status["pools"] = len(ds.meta)
		if len(dates) > 0 {
			status["latest_date"] = dates[len(dates)-1]
		}
	} else {
		status["dataset_error"] = err.Error()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleRateCurrent returns the latest rate point.
func (s *Server) handleRateCurrent(w http.ResponseWriter, r *http.Request) {
	ds, err := s.data.get(r.Context())
	if err != nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, err)
		return
	}
	if len(ds.rates) == 0 {
		s.errorResponse(w, r, http.StatusNotFound, errors.New("no rate data available"))
		return
	}

	latest := ds.rates[len(ds.rates)-1]
	resp := map[string]interface{}{
		"date":         latest.Date,
		"weighted_apy": latest.WeightedAPY,
		"ma_apy_14d":   latest.MAAPY14d,
		"pool_count":   len(ds.meta),
	}
	if len(ds.rates) > 1 {
		previous := ds.rates[len(ds.rates)-2]
		resp["daily_change"] = latest.WeightedAPY - previous.WeightedAPY
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRateHistory returns the full rate series with daily first differences.
func (s *Server) handleRateHistory(w http.ResponseWriter, r *http.Request) {
	ds, err := s.data.get(r.Context())
	if err != nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, err)
		return
	}
	if len(ds.rates) == 0 {
		s.errorResponse(w, r, http.StatusNotFound, errors.New("no rate data available"))
		return
	}

	values := make([]float64, len(ds.rates))
	for i, rp := range ds.rates {
		values[i] = rp.WeightedAPY
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rates":        ds.rates,
		"daily_change": aggregate.DailyChange(values),
	})
}

// handleBreakdown returns the ranked contribution breakdown for the latest
// date, grouped by the requested key.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	ds, err := s.data.get(r.Context())
	if err != nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, err)
		return
	}

	keyFn, err := s.keyFunc(r.URL.Query().Get("group"))
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err)
		return
	}

	dates := ds.snaps.Dates()
	if len(dates) == 0 {
		s.errorResponse(w, r, http.StatusNotFound, errors.New("no pool data available"))
		return
	}
	latest := dates[len(dates)-1]

	breakdown, err := aggregate.Aggregate(ds.snaps[latest], keyFn)
	if err != nil {
		if errors.Is(err, aggregate.ErrNoData) {
			s.errorResponse(w, r, http.StatusNotFound, err)
			return
		}
		s.errorResponse(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":   latest,
		"slices": chartdata.Pie(breakdown, s.cfg.DisplayNames),
	})
}

// handleContributions returns the stacked contribution series over time.
func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	ds, err := s.data.get(r.Context())
	if err != nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, err)
		return
	}

	keyFn, err := s.keyFunc(r.URL.Query().Get("group"))
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err)
		return
	}

	topN := s.cfg.TopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorResponse(w, r, http.StatusBadRequest, fmt.Errorf("invalid top parameter %q", raw))
			return
		}
		topN = n
	}

	projection, err := aggregate.ProjectOverTime(ds.snaps, keyFn, topN)
	if err != nil {
		if errors.Is(err, aggregate.ErrNoData) {
			s.errorResponse(w, r, http.StatusNotFound, err)
			return
		}
		s.errorResponse(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, chartdata.Stacked(projection, s.cfg.DisplayNames))
}

// keyFunc resolves the grouping key, falling back to the configured default.
func (s *Server) keyFunc(group string) (aggregate.KeyFunc, error) {
	if group == "" {
		group = s.cfg.GroupKey
	}
	switch strings.ToLower(group) {
	case config.GroupByChain:
		return aggregate.ByChain, nil
	case config.GroupByProject:
		return aggregate.ByProject, nil
	case config.GroupByPool:
		return aggregate.ByPool, nil
	default:
		return nil, fmt.Errorf("unknown group key %q", group)
	}
}

// errorResponse writes a JSON error body and records the error on the span.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	logrus.Warnf("%s %s: %v", r.Method, r.URL.Path, err)
	otel.RecordError(r.Context(), err)
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ingestion daemon.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec // labels: endpoint, outcome
	UpstreamRetries  prometheus.Counter

	TradesUpserted   prometheus.Counter
	TicksInserted    *prometheus.CounterVec // labels: source
	TicksDuplicate   prometheus.Counter
	CandlesWritten   prometheus.Counter
	SnapshotsStored  prometheus.Counter
	ColdFilesWritten prometheus.Counter

	JobRuns     *prometheus.CounterVec // labels: job, outcome
	JobSkipped  *prometheus.CounterVec // labels: job
	JobDuration *prometheus.HistogramVec

	CheckpointLag *prometheus.GaugeVec // labels: area, pipeline

	RedisCircuitState    prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitTrips    prometheus.Counter
	RedisBufferedBatches prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_upstream_requests_total",
			Help: "Upstream API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_upstream_retries_total",
			Help: "Upstream request retry attempts",
		}),

		TradesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_trades_upserted_total",
			Help: "Trade legs written to the hot store",
		}),
		TicksInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_ticks_inserted_total",
			Help: "New ticks inserted, by source",
		}, []string{"source"}),
		TicksDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_ticks_duplicate_total",
			Help: "Ticks skipped as already stored",
		}),
		CandlesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_candles_written_total",
			Help: "1m candles written",
		}),
		SnapshotsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_snapshots_stored_total",
			Help: "Native book snapshots stored",
		}),
		ColdFilesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_cold_files_written_total",
			Help: "Parquet tick files written to the cold tier",
		}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		}, []string{"job", "outcome"}),
		JobSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestd_job_skipped_total",
			Help: "Job runs skipped because the previous run still held the slot",
		}, []string{"job"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestd_job_duration_seconds",
			Help:    "Scheduled job run duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job"}),

		CheckpointLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingestd_checkpoint_lag_seconds",
			Help: "Wall clock minus checkpoint per area and pipeline",
		}, []string{"area", "pipeline"}),

		RedisCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestd_redis_circuit_breaker_state",
			Help: "Tick cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_redis_circuit_breaker_trips_total",
			Help: "Times the tick cache circuit breaker tripped open",
		}),
		RedisBufferedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestd_redis_buffered_batches_total",
			Help: "Tick batches buffered while the cache circuit was open",
		}),
	}

	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamRetries,
		m.TradesUpserted,
		m.TicksInserted,
		m.TicksDuplicate,
		m.CandlesWritten,
		m.SnapshotsStored,
		m.ColdFilesWritten,
		m.JobRuns,
		m.JobSkipped,
		m.JobDuration,
		m.CheckpointLag,
		m.RedisCircuitState,
		m.RedisCircuitTrips,
		m.RedisBufferedBatches,
	)

	return m
}

// HealthStatus represents daemon health.
type HealthStatus struct {
	mu sync.RWMutex

	PGOK           bool      `json:"pg_ok"`
	RedisConnected bool      `json:"redis_connected"`
	UpstreamOK     bool      `json:"upstream_ok"`
	LastIngestTime time.Time `json:"last_ingest_time"`

	PGLatencyMs    float64   `json:"pg_latency_ms"`
	RedisLatencyMs float64   `json:"redis_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetUpstreamOK(v bool) {
	h.mu.Lock()
	h.UpstreamOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastIngestTime(t time.Time) {
	h.mu.Lock()
	h.LastIngestTime = t
	h.mu.Unlock()
}

// CheckPG pings Postgres and records latency + connectivity.
func (h *HealthStatus) CheckPG(ctx context.Context, pool *pgxpool.Pool) {
	start := time.Now()
	err := pool.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.PGOK = err == nil
	h.PGLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings the tick cache and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. The Redis client
// may be nil when the tick cache is disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, pool *pgxpool.Pool, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if pool != nil {
					h.CheckPG(probeCtx, pool)
				}
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.PGOK || !h.UpstreamOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.PGOK && !h.UpstreamOK {
		overallStatus = "unhealthy"
	}

	ingestAge := ""
	if !h.LastIngestTime.IsZero() {
		ingestAge = time.Since(h.LastIngestTime).Round(time.Second).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		PGOK           bool    `json:"pg_ok"`
		PGLatencyMs    float64 `json:"pg_latency_ms"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		UpstreamOK     bool    `json:"upstream_ok"`
		LastIngestTime string  `json:"last_ingest_time"`
		IngestAge      string  `json:"ingest_age"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		PGOK:           h.PGOK,
		PGLatencyMs:    h.PGLatencyMs,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		UpstreamOK:     h.UpstreamOK,
		LastIngestTime: h.LastIngestTime.Format(time.RFC3339),
		IngestAge:      ingestAge,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

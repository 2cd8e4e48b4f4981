package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream market-data API
	UpstreamBaseURL  string
	UpstreamSTSURL   string
	UpstreamUser     string
	UpstreamPassword string

	// Infrastructure
	DatabaseURL   string
	RedisAddr     string // empty disables the tick cache
	RedisPassword string
	RedisDB       int
	MetricsAddr   string
	ColdDir       string

	// Ingestion scope
	Areas            string // comma-separated delivery areas, e.g. "SE3,SE4"
	InitialStartDate string // YYYY-MM-DD, first day ever ingested

	// Job intervals
	TradeSyncInterval time.Duration
	CandleInterval    time.Duration
	OrderFlowInterval time.Duration
	RealtimeInterval  time.Duration
	LiveTickInterval  time.Duration

	// Ingestion tuning
	TradeSafeLag   time.Duration // deliveries older than now minus this are final
	TradeChunk     time.Duration // backfill and active-window slice size
	ActiveWindow   time.Duration // how far past now the active refresh reaches
	RevisionChunk  time.Duration // upstream revision stream slice size
	ArchiveDelay   time.Duration // a day archives once now >= day end + this
	HotRetention   time.Duration // hot/cold tier boundary
	ArchiveWorkers int

	// Live runner
	LiveMode     string // REPLAY, PAPER or LIVE
	LiveStateDir string
	LiveCash     string // decimal string
	LiveSlipBps  int
	LiveFeeBps   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		UpstreamBaseURL: getEnv("NORDPOOL_API_URL", "https://data-api.nordpoolgroup.com"),
		UpstreamSTSURL:  getEnv("NORDPOOL_STS_URL", "https://sts.nordpoolgroup.com"),
		// Empty credentials disable upstream fetching; reads still work.
		UpstreamUser:     getEnv("NORDPOOL_USER", ""),
		UpstreamPassword: getEnv("NORDPOOL_PASSWORD", ""),

		DatabaseURL:   mustEnv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		ColdDir:       getEnv("COLD_STORE_DIR", "data/order_flow"),

		Areas:            getEnv("AREAS", "SE1,SE2,SE3,SE4"),
		InitialStartDate: getEnv("INITIAL_START_DATE", "2025-01-01"),

		TradeSyncInterval: getDurationEnv("TRADE_SYNC_INTERVAL", time.Hour),
		CandleInterval:    getDurationEnv("CANDLE_INTERVAL", 15*time.Minute),
		OrderFlowInterval: getDurationEnv("ORDERFLOW_INTERVAL", time.Hour),
		RealtimeInterval:  getDurationEnv("REALTIME_INTERVAL", 15*time.Minute),
		LiveTickInterval:  getDurationEnv("LIVE_TICK_INTERVAL", 5*time.Minute),

		TradeSafeLag:   getDurationEnv("TRADE_SAFE_LAG", 2*time.Hour),
		TradeChunk:     getDurationEnv("TRADE_CHUNK", 12*time.Hour),
		ActiveWindow:   getDurationEnv("ACTIVE_WINDOW", 48*time.Hour),
		RevisionChunk:  getDurationEnv("REVISION_CHUNK", 4*time.Hour),
		ArchiveDelay:   getDurationEnv("ARCHIVE_DELAY", 48*time.Hour),
		HotRetention:   getDurationEnv("HOT_RETENTION", 7*24*time.Hour),
		ArchiveWorkers: getIntEnv("ARCHIVE_WORKERS", 10),

		LiveMode:     getEnv("LIVE_MODE", "PAPER"),
		LiveStateDir: getEnv("LIVE_STATE_DIR", "data/live"),
		LiveCash:     getEnv("LIVE_CASH", "100000"),
		LiveSlipBps:  getIntEnv("LIVE_SLIPPAGE_BPS", 5),
		LiveFeeBps:   getIntEnv("LIVE_FEE_BPS", 10),
	}
}

// ParseAreas splits the Areas string into trimmed, non-empty area codes.
func (c *Config) ParseAreas() []string {
	parts := strings.Split(c.Areas, ",")
	areas := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		areas = append(areas, p)
	}
	return areas
}

// InitialStart parses InitialStartDate as a UTC midnight.
func (c *Config) InitialStart() time.Time {
	t, err := time.Parse("2006-01-02", c.InitialStartDate)
	if err != nil {
		log.Fatalf("[config] invalid INITIAL_START_DATE %q: %v", c.InitialStartDate, err)
	}
	return t.UTC()
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

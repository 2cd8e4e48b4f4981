// cmd/ingestd runs the ingestion daemon: trade sync, order-flow archival
// and realtime streaming, candle derivation and the live runner, all
// driven by the interval scheduler. One process covers every configured
// delivery area.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"nordpool-dataplane/config"
	"nordpool-dataplane/internal/candles"
	"nordpool-dataplane/internal/features"
	"nordpool-dataplane/internal/ingest/orderflow"
	"nordpool-dataplane/internal/ingest/trades"
	"nordpool-dataplane/internal/live"
	"nordpool-dataplane/internal/metrics"
	"nordpool-dataplane/internal/sched"
	"nordpool-dataplane/internal/store/cold"
	"nordpool-dataplane/internal/store/pg"
	redisstore "nordpool-dataplane/internal/store/redis"
	"nordpool-dataplane/internal/upstream"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ingestd] starting...")

	cfg := config.Load()
	areas := cfg.ParseAreas()
	if len(areas) == 0 {
		log.Fatal("[ingestd] no delivery areas configured")
	}
	log.Printf("[ingestd] areas: %v, initial start %s", areas, cfg.InitialStartDate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Hot store ----
	pgStore, err := pg.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[ingestd] postgres init failed: %v", err)
	}
	defer pgStore.Close()
	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatalf("[ingestd] migrate failed: %v", err)
	}
	log.Println("[ingestd] postgres ready")

	// ---- Cold store ----
	coldStore, err := cold.New(cfg.ColdDir)
	if err != nil {
		log.Fatalf("[ingestd] cold store init failed: %v", err)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Upstream client ----
	client := upstream.New(upstream.Config{
		BaseURL:       cfg.UpstreamBaseURL,
		STSURL:        cfg.UpstreamSTSURL,
		Username:      cfg.UpstreamUser,
		Password:      cfg.UpstreamPassword,
		RevisionChunk: cfg.RevisionChunk,
	}, prom)
	health.SetUpstreamOK(client.Enabled())

	// ---- Tick cache (optional) ----
	var cache *redisstore.Cache
	var buffered *redisstore.BufferedCache
	if cfg.RedisAddr != "" {
		cache, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[ingestd] WARNING: redis init failed: %v (continuing without tick cache)", err)
		} else {
			cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitTrips.Inc()
				}
			}
			buffered = redisstore.NewBufferedCache(ctx, cache, cb, 0)
			buffered.OnBuffer = func() { prom.RedisBufferedBatches.Inc() }
		}
	}

	var redisClient *goredis.Client
	if cache != nil {
		redisClient = cache.Client()
	}
	health.StartLivenessChecker(ctx, pgStore.Pool(), redisClient, 10*time.Second)

	// ---- Scheduler ----
	scheduler := sched.New(prom)
	initialStart := cfg.InitialStart()

	for _, area := range areas {
		area := area

		tradeSync := trades.New(trades.Config{
			Area:          area,
			InitialStart:  initialStart,
			SafeLag:       cfg.TradeSafeLag,
			Chunk:         cfg.TradeChunk,
			ActiveHorizon: cfg.ActiveWindow,
		}, client, pgStore, prom)

		archiver := orderflow.NewArchiver(orderflow.ArchiverConfig{
			Area:         area,
			InitialStart: initialStart,
			ArchiveDelay: cfg.ArchiveDelay,
			HotRetention: cfg.HotRetention,
			Workers:      cfg.ArchiveWorkers,
		}, client, pgStore, coldStore, prom)

		var pub orderflow.Publisher
		if buffered != nil {
			pub = buffered
		}
		streamer := orderflow.NewStreamer(orderflow.StreamerConfig{
			Area: area,
		}, client, pgStore, pub, prom)

		candlePipe := candles.New(candles.Config{
			Area:         area,
			InitialStart: initialStart,
		}, pgStore, prom)

		runner := newLiveRunner(cfg, area, pgStore, cache)

		scheduler.Add(&sched.Job{
			Name:         "trades_" + area,
			Interval:     cfg.TradeSyncInterval,
			RunAtStartup: true,
			Fn: func(ctx context.Context) error {
				err := tradeSync.Sync(ctx)
				if err == nil {
					health.SetLastIngestTime(time.Now().UTC())
				}
				return err
			},
		})
		scheduler.Add(&sched.Job{
			Name:         "candles_" + area,
			Interval:     cfg.CandleInterval,
			RunAtStartup: true,
			Fn:           candlePipe.Generate,
		})
		scheduler.Add(&sched.Job{
			Name:     "orderflow_archive_" + area,
			Interval: cfg.OrderFlowInterval,
			Fn:       archiver.Run,
		})
		scheduler.Add(&sched.Job{
			Name:     "orderflow_realtime_" + area,
			Interval: cfg.RealtimeInterval,
			Fn:       streamer.Sync,
		})
		scheduler.Add(&sched.Job{
			Name:     "live_" + area,
			Interval: cfg.LiveTickInterval,
			Fn:       runner.Tick,
		})
	}

	schedDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedDone)
	}()
	log.Printf("[ingestd] scheduler running: %d areas, trades every %v, candles every %v, orderflow every %v",
		len(areas), cfg.TradeSyncInterval, cfg.CandleInterval, cfg.OrderFlowInterval)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[ingestd] shutdown signal received, cleaning up...")
	cancel()
	<-schedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if cache != nil {
		cache.Close()
	}
	log.Println("[ingestd] shutdown complete.")
}

// newLiveRunner wires one area's strategy runner: feature candles from
// Postgres, order flow from the tick cache when present, else from the
// hot store.
func newLiveRunner(cfg *config.Config, area string, pgStore *pg.Store, cache *redisstore.Cache) *live.Runner {
	cash, err := decimal.NewFromString(cfg.LiveCash)
	if err != nil {
		log.Fatalf("[ingestd] invalid LIVE_CASH %q: %v", cfg.LiveCash, err)
	}

	var ticks live.TickSource = pgStore
	if cache != nil {
		ticks = live.NewCacheTickSource(cache)
	}

	stateFile := live.NewStateFile(filepath.Join(cfg.LiveStateDir, area+".json"))
	provider := features.NewProvider(pgStore)
	strat := features.NewCrossover(9, 21, 14, decimal.NewFromInt(1))

	return live.NewRunner(live.Config{
		Area:        area,
		Mode:        live.Mode(cfg.LiveMode),
		InitialCash: cash,
		SlippageBps: int64(cfg.LiveSlipBps),
		FeeBps:      int64(cfg.LiveFeeBps),
	}, provider, strat, ticks, stateFile)
}

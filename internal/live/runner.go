package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

const (
	defaultCandleHistory = 100
	defaultTickLookback  = time.Hour
	defaultSlippageBps   = 5
)

// FeatureProvider serves the feature candles the strategy consumes. The
// provider decides which contract of the area to track and what derived
// columns ride on the candles.
type FeatureProvider interface {
	CandlesWithFeatures(ctx context.Context, area string, n int) ([]model.Candle, error)
}

// OrderIntent is a strategy's request to place one limit order.
type OrderIntent struct {
	ContractID string
	Side       string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
}

// Strategy is the external strategy adapter: it sees the latest candle
// with history and the current state, and answers with orders to place.
type Strategy interface {
	OnCandle(ctx context.Context, st *State, latest model.Candle, history []model.Candle) ([]OrderIntent, error)
}

// TickSource serves the recent order flow the matcher runs against.
// The hot store satisfies it directly; CacheTickSource adapts the Redis
// tick cache.
type TickSource interface {
	RecentTicks(ctx context.Context, area string, since time.Time) ([]model.Tick, error)
}

// Config configures one area's runner.
type Config struct {
	Area          string
	Mode          Mode
	InitialCash   decimal.Decimal
	CandleHistory int           // candles fed to the strategy, default 100
	TickLookback  time.Duration // order-flow window for matching, default 1h
	SlippageBps   int64         // default 5
	FeeBps        int64
	Now           func() time.Time
}

// Runner drives one area's strategy. State lives in memory between
// invocations and is written back to the state file after every tick.
type Runner struct {
	cfg      Config
	features FeatureProvider
	strat    Strategy
	ticks    TickSource
	file     *StateFile
	match    *matcher

	mu       sync.Mutex
	state    *State
	orderSeq int64
}

func NewRunner(cfg Config, features FeatureProvider, strat Strategy, ticks TickSource, file *StateFile) *Runner {
	if cfg.CandleHistory <= 0 {
		cfg.CandleHistory = defaultCandleHistory
	}
	if cfg.TickLookback <= 0 {
		cfg.TickLookback = defaultTickLookback
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = defaultSlippageBps
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePaper
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		cfg:      cfg,
		features: features,
		strat:    strat,
		ticks:    ticks,
		file:     file,
		match:    newMatcher(cfg.SlippageBps, cfg.FeeBps),
	}
}

// State returns a copy of the current state for inspection.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return State{}
	}
	st := *r.state
	st.Orders = append([]Order{}, r.state.Orders...)
	return st
}

// Tick runs one invocation: load state, strategy step, execution step,
// persist.
func (r *Runner) Tick(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureState(); err != nil {
		return err
	}

	candles, err := r.features.CandlesWithFeatures(ctx, r.cfg.Area, r.cfg.CandleHistory)
	if err != nil {
		return fmt.Errorf("live %s: features: %w", r.cfg.Area, err)
	}
	if len(candles) == 0 {
		log.Printf("[live] %s: no candles yet, skipping tick", r.cfg.Area)
		return nil
	}

	latest := candles[len(candles)-1]
	intents, err := r.strat.OnCandle(ctx, r.state, latest, candles)
	if err != nil {
		return fmt.Errorf("live %s: strategy: %w", r.cfg.Area, err)
	}
	for _, in := range intents {
		r.placeOrder(in)
	}

	switch r.cfg.Mode {
	case ModePaper:
		since := r.cfg.Now().UTC().Add(-r.cfg.TickLookback)
		flow, err := r.ticks.RecentTicks(ctx, r.cfg.Area, since)
		if err != nil {
			return fmt.Errorf("live %s: recent ticks: %w", r.cfg.Area, err)
		}
		r.match.matchTicks(r.state, flow)
	case ModeReplay:
		r.match.matchCandles(r.state, candles)
	case ModeLive:
		// External router owns matching; orders just rest here.
	}

	if err := r.file.Save(r.state); err != nil {
		return fmt.Errorf("live %s: persist: %w", r.cfg.Area, err)
	}
	return nil
}

func (r *Runner) ensureState() error {
	if r.state != nil {
		return nil
	}
	st, err := r.file.Load()
	if err != nil {
		return fmt.Errorf("live %s: %w", r.cfg.Area, err)
	}
	if st == nil {
		st = newState(r.cfg.InitialCash)
		log.Printf("[live] %s: fresh state, cash=%s", r.cfg.Area, st.Cash)
	} else {
		log.Printf("[live] %s: resumed state from %s (cash=%s position=%s orders=%d)",
			r.cfg.Area, st.UpdatedAt.Format(time.RFC3339), st.Cash, st.Position, len(st.Orders))
	}
	r.state = st
	return nil
}

func (r *Runner) placeOrder(in OrderIntent) {
	r.orderSeq++
	o := Order{
		OrderID:    fmt.Sprintf("%s-%s-%d", r.cfg.Mode, r.cfg.Area, r.orderSeq),
		ContractID: in.ContractID,
		Side:       in.Side,
		Price:      in.Price,
		Quantity:   in.Quantity,
		PlacedAt:   r.cfg.Now().UTC(),
	}
	r.state.Orders = append(r.state.Orders, o)
	log.Printf("[live] %s: placed %s %s %s qty=%s px=%s",
		r.cfg.Area, o.OrderID, o.Side, o.ContractID, o.Quantity, o.Price)
}

// TickTailer is the slice of the tick cache the adapter needs.
type TickTailer interface {
	TailTicks(ctx context.Context, area string, n int64) ([]model.Tick, error)
}

// CacheTickSource adapts a stream-backed tick cache to TickSource.
type CacheTickSource struct {
	cache TickTailer
	tail  int64
}

func NewCacheTickSource(cache TickTailer) *CacheTickSource {
	return &CacheTickSource{cache: cache, tail: 5000}
}

func (s *CacheTickSource) RecentTicks(ctx context.Context, area string, since time.Time) ([]model.Tick, error) {
	ticks, err := s.cache.TailTicks(ctx, area, s.tail)
	if err != nil {
		return nil, err
	}
	out := ticks[:0]
	for _, t := range ticks {
		if t.UpdatedTime.Before(since) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

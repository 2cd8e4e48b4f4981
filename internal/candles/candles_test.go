package candles

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

type fakeStore struct {
	trades      []model.Trade
	candles     []model.Candle
	tradeState  *model.TradeFetchState
	candleState *model.CandleGenState
	flowState   *model.OrderFlowSyncState
	windows     []struct{ from, to time.Time }
}

func (s *fakeStore) TradesInWindow(ctx context.Context, area string, from, to time.Time) ([]model.Trade, error) {
	s.windows = append(s.windows, struct{ from, to time.Time }{from, to})
	var out []model.Trade
	for _, t := range s.trades {
		if !t.TradeTime.Before(from) && t.TradeTime.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) TradesForContract(ctx context.Context, area, contractID string) ([]model.Trade, error) {
	return nil, nil
}
func (s *fakeStore) TradedContractsOnDate(ctx context.Context, area string, date time.Time) ([]model.Trade, error) {
	return nil, nil
}
func (s *fakeStore) TradeSpan(ctx context.Context, area string) (time.Time, time.Time, int64, error) {
	return time.Time{}, time.Time{}, 0, nil
}

func (s *fakeStore) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	s.candles = append(s.candles, candles...)
	return nil
}

func (s *fakeStore) GetTradeFetchState(ctx context.Context, area string) (*model.TradeFetchState, error) {
	return s.tradeState, nil
}
func (s *fakeStore) SaveTradeFetchState(ctx context.Context, st *model.TradeFetchState) error {
	return nil
}
func (s *fakeStore) GetCandleGenState(ctx context.Context, area string) (*model.CandleGenState, error) {
	return s.candleState, nil
}
func (s *fakeStore) SaveCandleGenState(ctx context.Context, st *model.CandleGenState) error {
	cp := *st
	s.candleState = &cp
	return nil
}
func (s *fakeStore) GetOrderFlowSyncState(ctx context.Context, area string) (*model.OrderFlowSyncState, error) {
	return s.flowState, nil
}
func (s *fakeStore) SaveOrderFlowSyncState(ctx context.Context, st *model.OrderFlowSyncState) error {
	cp := *st
	s.flowState = &cp
	return nil
}

func mkTrade(id, contract string, ts time.Time, price, volume int64) model.Trade {
	return model.Trade{
		TradeID:      id,
		DeliveryArea: "SE3",
		TradeSide:    "BUY",
		ContractID:   contract,
		ContractType: model.ContractPH,
		Price:        decimal.NewFromInt(price),
		Volume:       decimal.NewFromInt(volume),
		TradeTime:    ts,
		State:        "Completed",
	}
}

func TestAggregate_OHLCVAndVWAP(t *testing.T) {
	min := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	trades := []model.Trade{
		mkTrade("T1", "NX_1", min.Add(5*time.Second), 50, 2),
		mkTrade("T2", "NX_1", min.Add(20*time.Second), 55, 1),
		mkTrade("T3", "NX_1", min.Add(40*time.Second), 48, 3),
		mkTrade("T4", "NX_1", min.Add(59*time.Second), 52, 2),
	}

	out := Aggregate("SE3", trades)
	if len(out) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(out))
	}
	c := out[0]
	if !c.TS.Equal(min) {
		t.Errorf("bucket = %v, want %v", c.TS, min)
	}
	if !c.Open.Equal(decimal.NewFromInt(50)) || !c.Close.Equal(decimal.NewFromInt(52)) {
		t.Errorf("open/close = %s/%s", c.Open, c.Close)
	}
	if !c.High.Equal(decimal.NewFromInt(55)) || !c.Low.Equal(decimal.NewFromInt(48)) {
		t.Errorf("high/low = %s/%s", c.High, c.Low)
	}
	if !c.Volume.Equal(decimal.NewFromInt(8)) {
		t.Errorf("volume = %s, want 8", c.Volume)
	}
	// vwap = (100 + 55 + 144 + 104) / 8 = 403/8 = 50.375
	if !c.VWAP.Equal(decimal.RequireFromString("50.375")) {
		t.Errorf("vwap = %s, want 50.375", c.VWAP)
	}
	if c.TradeCount != 4 {
		t.Errorf("trade count = %d, want 4", c.TradeCount)
	}
}

func TestAggregate_CountsEveryLegRow(t *testing.T) {
	// A trade with both legs in the area stores two rows; volume and
	// trade count sum over rows, not over trade ids.
	min := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	buy := mkTrade("T1", "NX_1", min, 50, 3)
	sell := buy
	sell.TradeSide = "SELL"

	out := Aggregate("SE3", []model.Trade{buy, sell})
	if len(out) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(out))
	}
	if !out[0].Volume.Equal(decimal.NewFromInt(6)) {
		t.Errorf("volume = %s, want 6", out[0].Volume)
	}
	if out[0].TradeCount != 2 {
		t.Errorf("trade count = %d, want 2", out[0].TradeCount)
	}
	if !out[0].VWAP.Equal(decimal.NewFromInt(50)) {
		t.Errorf("vwap = %s, want 50", out[0].VWAP)
	}
}

func TestAggregate_ExcludesCancelled(t *testing.T) {
	min := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	ok := mkTrade("T1", "NX_1", min, 50, 2)
	bad := mkTrade("T2", "NX_1", min, 500, 2)
	bad.State = "Cancelled"

	out := Aggregate("SE3", []model.Trade{ok, bad})
	if len(out) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(out))
	}
	if !out[0].High.Equal(decimal.NewFromInt(50)) {
		t.Errorf("cancelled trade leaked into the candle: high = %s", out[0].High)
	}
}

func TestAggregate_SplitsByContractAndMinute(t *testing.T) {
	min := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	trades := []model.Trade{
		mkTrade("T1", "NX_1", min, 50, 1),
		mkTrade("T2", "NX_2", min, 60, 1),
		mkTrade("T3", "NX_1", min.Add(time.Minute), 51, 1),
	}
	out := Aggregate("SE3", trades)
	if len(out) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(out))
	}
}

func pipelineConfig(now time.Time, initial time.Time) Config {
	return Config{Area: "SE3", InitialStart: initial, Now: func() time.Time { return now }}
}

func TestGenerate_SkipsWithoutTradeCheckpoint(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	s := &fakeStore{}
	p := New(pipelineConfig(now, now.Add(-24*time.Hour)), s, nil)

	if err := p.Generate(context.Background()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(s.windows) != 0 {
		t.Error("pipeline must not read trades before the first trade checkpoint")
	}
	if s.candleState != nil {
		t.Error("no candle state should be written when skipping")
	}
}

func TestGenerate_GatedByTradeCheckpoint(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	tradeCheckpoint := now.Add(-3 * time.Hour)
	initial := now.Add(-15 * time.Hour)

	s := &fakeStore{
		tradeState: &model.TradeFetchState{Area: "SE3", LastFetchedTime: tradeCheckpoint},
	}
	p := New(pipelineConfig(now, initial), s, nil)

	if err := p.Generate(context.Background()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	// 12h of derivation in 6h chunks: [initial, +6h), [+6h, checkpoint).
	if len(s.windows) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(s.windows))
	}
	if !s.windows[1].to.Equal(tradeCheckpoint) {
		t.Errorf("derivation must stop at the trade checkpoint, got %v", s.windows[1].to)
	}
	if !s.candleState.LastGeneratedTime.Equal(tradeCheckpoint) {
		t.Errorf("candle checkpoint = %v, want %v", s.candleState.LastGeneratedTime, tradeCheckpoint)
	}
}

func TestGenerate_AdvancesThroughEmptyWindows(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	tradeCheckpoint := now.Add(-2 * time.Hour)
	initial := now.Add(-8 * time.Hour)

	s := &fakeStore{
		tradeState: &model.TradeFetchState{Area: "SE3", LastFetchedTime: tradeCheckpoint},
	}
	p := New(pipelineConfig(now, initial), s, nil)

	if err := p.Generate(context.Background()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(s.candles) != 0 {
		t.Fatalf("no trades means no candles, got %d", len(s.candles))
	}
	if !s.candleState.LastGeneratedTime.Equal(tradeCheckpoint) {
		t.Errorf("checkpoint must advance over empty windows, got %v", s.candleState.LastGeneratedTime)
	}
}

func TestGenerate_SafeEndCappedByWallClock(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 30, 0, time.UTC)
	// Trade checkpoint ahead of now (active window data): cap at now.
	s := &fakeStore{
		tradeState: &model.TradeFetchState{Area: "SE3", LastFetchedTime: now.Add(48 * time.Hour)},
	}
	p := New(pipelineConfig(now, now.Add(-time.Hour)), s, nil)

	if err := p.Generate(context.Background()); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	want := now.Truncate(time.Minute)
	if !s.candleState.LastGeneratedTime.Equal(want) {
		t.Errorf("checkpoint = %v, want wall-clock minute %v", s.candleState.LastGeneratedTime, want)
	}
}

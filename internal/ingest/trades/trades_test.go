package trades

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/upstream"
)

type fetchCall struct {
	from, to time.Time
}

type fakeFetcher struct {
	calls   []fetchCall
	failOn  int // 1-based call index to fail, 0 = never
	failErr error
}

func (f *fakeFetcher) TradesByDeliveryStart(ctx context.Context, area string, from, to time.Time) (*upstream.TradesResponse, error) {
	f.calls = append(f.calls, fetchCall{from, to})
	if f.failOn > 0 && len(f.calls) == f.failOn {
		if f.failErr == nil {
			f.failErr = errors.New("upstream down")
		}
		return nil, f.failErr
	}
	return &upstream.TradesResponse{
		Contracts: []upstream.TradeContract{{
			ContractID:    "NX_1",
			DeliveryStart: from.Format("2006-01-02T15:04:05Z"),
			DeliveryEnd:   from.Add(time.Hour).Format("2006-01-02T15:04:05Z"),
			Trades: []upstream.RawTrade{{
				TradeID:   "T-" + from.Format("150405"),
				TradeTime: from.Format("2006-01-02T15:04:05Z"),
				Price:     decimal.NewFromInt(50),
				Volume:    decimal.NewFromInt(1),
			}},
		}},
	}, nil
}

type fakeStore struct {
	trades     []model.Trade
	tradeState map[string]*model.TradeFetchState
	saves      []model.TradeFetchState
	upsertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tradeState: map[string]*model.TradeFetchState{}}
}

func (s *fakeStore) UpsertTrades(ctx context.Context, trades []model.Trade) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *fakeStore) GetTradeFetchState(ctx context.Context, area string) (*model.TradeFetchState, error) {
	if st, ok := s.tradeState[area]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) SaveTradeFetchState(ctx context.Context, st *model.TradeFetchState) error {
	cp := *st
	s.tradeState[st.Area] = &cp
	s.saves = append(s.saves, cp)
	return nil
}

func (s *fakeStore) GetCandleGenState(ctx context.Context, area string) (*model.CandleGenState, error) {
	return nil, nil
}
func (s *fakeStore) SaveCandleGenState(ctx context.Context, st *model.CandleGenState) error {
	return nil
}
func (s *fakeStore) GetOrderFlowSyncState(ctx context.Context, area string) (*model.OrderFlowSyncState, error) {
	return nil, nil
}
func (s *fakeStore) SaveOrderFlowSyncState(ctx context.Context, st *model.OrderFlowSyncState) error {
	return nil
}

func testConfig(now time.Time, initial time.Time) Config {
	return Config{
		Area:         "SE3",
		InitialStart: initial,
		Now:          func() time.Time { return now },
	}
}

func TestSync_BootstrapBackfillsToSafeLine(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	safeLine := now.Add(-2 * time.Hour)
	initial := safeLine.Add(-24 * time.Hour)

	f := &fakeFetcher{}
	s := newFakeStore()
	ing := New(testConfig(now, initial), f, s, nil)

	if err := ing.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// 24h of backfill in 12h chunks, then the 50h active window in 12h
	// chunks as well.
	if len(f.calls) != 7 {
		t.Fatalf("expected 7 fetches, got %d", len(f.calls))
	}
	if !f.calls[0].from.Equal(initial) || !f.calls[0].to.Equal(initial.Add(12*time.Hour)) {
		t.Errorf("chunk 1 window wrong: [%v, %v]", f.calls[0].from, f.calls[0].to)
	}
	if !f.calls[1].to.Equal(safeLine) {
		t.Errorf("chunk 2 should end at the safe line, got %v", f.calls[1].to)
	}
	if !f.calls[2].from.Equal(safeLine) || !f.calls[2].to.Equal(safeLine.Add(12*time.Hour)) {
		t.Errorf("first active chunk wrong: [%v, %v]", f.calls[2].from, f.calls[2].to)
	}
	if !f.calls[6].to.Equal(now.Add(48*time.Hour)) {
		t.Errorf("active window should end at the horizon, got %v", f.calls[6].to)
	}

	st := s.tradeState["SE3"]
	if st == nil {
		t.Fatal("no state saved")
	}
	if !st.LastFetchedTime.Equal(safeLine) {
		t.Errorf("checkpoint = %v, want safe line %v", st.LastFetchedTime, safeLine)
	}
	if st.Status != model.StatusOK {
		t.Errorf("status = %s, want ok", st.Status)
	}
	if len(s.trades) == 0 {
		t.Error("no trades persisted")
	}
}

func TestSync_BackfillFailureStopsAndKeepsCheckpoint(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	initial := now.Add(-2 * time.Hour).Add(-24 * time.Hour)

	f := &fakeFetcher{failOn: 2}
	s := newFakeStore()
	ing := New(testConfig(now, initial), f, s, nil)

	if err := ing.Sync(context.Background()); err == nil {
		t.Fatal("expected an error")
	}

	// Chunk 1 committed, chunk 2 failed, active window never attempted.
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(f.calls))
	}
	st := s.tradeState["SE3"]
	if !st.LastFetchedTime.Equal(initial.Add(12 * time.Hour)) {
		t.Errorf("checkpoint must stay at the last finished chunk, got %v", st.LastFetchedTime)
	}
	if st.Status != model.StatusError {
		t.Errorf("status = %s, want error", st.Status)
	}
	if st.LastError == "" {
		t.Error("last error must be recorded")
	}
}

func TestSync_ActiveWindowFailureIsWarning(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	safeLine := now.Add(-2 * time.Hour)
	initial := safeLine.Add(-12 * time.Hour)

	f := &fakeFetcher{failOn: 2} // call 1 = backfill, call 2 = first active chunk
	s := newFakeStore()
	ing := New(testConfig(now, initial), f, s, nil)

	if err := ing.Sync(context.Background()); err == nil {
		t.Fatal("expected an error")
	}

	st := s.tradeState["SE3"]
	if !st.LastFetchedTime.Equal(safeLine) {
		t.Errorf("active failure must not move the checkpoint, got %v", st.LastFetchedTime)
	}
	if st.Status != model.StatusWarning {
		t.Errorf("status = %s, want warning", st.Status)
	}
}

func TestSync_ActiveWindowNeverAdvancesCheckpoint(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	safeLine := now.Add(-2 * time.Hour)

	s := newFakeStore()
	s.tradeState["SE3"] = &model.TradeFetchState{
		Area: "SE3", LastFetchedTime: safeLine, Status: model.StatusOK,
	}

	f := &fakeFetcher{}
	ing := New(testConfig(now, time.Time{}), f, s, nil)

	if err := ing.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// Already at the safe line: only the active window runs, chunked like
	// the backfill. 50h at 12h per slice is 5 fetches.
	if len(f.calls) != 5 {
		t.Fatalf("expected 5 fetches, got %d", len(f.calls))
	}
	for n := 1; n < len(f.calls); n++ {
		if !f.calls[n].from.Equal(f.calls[n-1].to) {
			t.Errorf("active chunks must be contiguous: call %d starts at %v, previous ended %v",
				n, f.calls[n].from, f.calls[n-1].to)
		}
	}
	if !f.calls[len(f.calls)-1].to.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("last active chunk must end at the horizon, got %v", f.calls[len(f.calls)-1].to)
	}
	st := s.tradeState["SE3"]
	if !st.LastFetchedTime.Equal(safeLine) {
		t.Errorf("checkpoint moved by active refresh: %v", st.LastFetchedTime)
	}
	if st.Status != model.StatusOK {
		t.Errorf("status = %s, want ok", st.Status)
	}
}

func TestSync_RerunResumesFromCheckpoint(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	checkpoint := now.Add(-8 * time.Hour)

	s := newFakeStore()
	s.tradeState["SE3"] = &model.TradeFetchState{
		Area: "SE3", LastFetchedTime: checkpoint, Status: model.StatusError,
	}

	f := &fakeFetcher{}
	ing := New(testConfig(now, time.Time{}), f, s, nil)

	if err := ing.Sync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !f.calls[0].from.Equal(checkpoint) {
		t.Errorf("backfill must resume at the checkpoint, started at %v", f.calls[0].from)
	}
}

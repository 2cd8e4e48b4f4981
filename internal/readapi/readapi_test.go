package readapi

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

type fakeStore struct {
	contractsOnDate []model.Trade
	candles         []model.Candle
	hotTicks        []model.Tick
	tradeState      *model.TradeFetchState
	candleState     *model.CandleGenState
	flowState       *model.OrderFlowSyncState
	spanCount       int64
}

func (s *fakeStore) TradesInWindow(ctx context.Context, area string, from, to time.Time) ([]model.Trade, error) {
	return nil, nil
}
func (s *fakeStore) TradesForContract(ctx context.Context, area, contractID string) ([]model.Trade, error) {
	return s.contractsOnDate, nil
}
func (s *fakeStore) TradedContractsOnDate(ctx context.Context, area string, date time.Time) ([]model.Trade, error) {
	return s.contractsOnDate, nil
}
func (s *fakeStore) TradeSpan(ctx context.Context, area string) (time.Time, time.Time, int64, error) {
	return time.Time{}, time.Time{}, s.spanCount, nil
}
func (s *fakeStore) CandlesForContract(ctx context.Context, area, contractID string) ([]model.Candle, error) {
	return s.candles, nil
}
func (s *fakeStore) RecentCandles(ctx context.Context, area string, n int) ([]model.Candle, error) {
	return s.candles, nil
}
func (s *fakeStore) TicksForContract(ctx context.Context, contractID string, until time.Time) ([]model.Tick, error) {
	return s.hotTicks, nil
}
func (s *fakeStore) TicksInRange(ctx context.Context, contractID string, from, to time.Time) ([]model.Tick, error) {
	return s.hotTicks, nil
}
func (s *fakeStore) RecentTicks(ctx context.Context, area string, since time.Time) ([]model.Tick, error) {
	return s.hotTicks, nil
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
	return nil
}
func (s *fakeStore) GetOrderFlowSyncState(ctx context.Context, area string) (*model.OrderFlowSyncState, error) {
	return s.flowState, nil
}
func (s *fakeStore) SaveOrderFlowSyncState(ctx context.Context, st *model.OrderFlowSyncState) error {
	return nil
}

type fakeCold struct {
	files map[string][]model.Tick
}

func (f *fakeCold) key(area string, date time.Time, id string) string {
	return area + "/" + date.UTC().Format("2006-01-02") + "/" + id
}
func (f *fakeCold) WriteTickFile(area string, date time.Time, contractID string, ticks []model.Tick) error {
	f.files[f.key(area, date, contractID)] = ticks
	return nil
}
func (f *fakeCold) ReadTickFile(area string, date time.Time, contractID string) ([]model.Tick, error) {
	return f.files[f.key(area, date, contractID)], nil
}
func (f *fakeCold) HasTickFile(area string, date time.Time, contractID string) bool {
	_, ok := f.files[f.key(area, date, contractID)]
	return ok
}

func listingTrade(contract string, ctype model.ContractType, deliveryStart time.Time) model.Trade {
	return model.Trade{
		TradeID:       "T-" + contract,
		ContractID:    contract,
		ContractName:  string(ctype) + "-" + contract,
		ContractType:  ctype,
		DeliveryStart: deliveryStart,
		DeliveryEnd:   deliveryStart.Add(time.Hour),
		Price:         decimal.NewFromInt(50),
		Volume:        decimal.NewFromInt(1),
	}
}

func TestListContractsOnDate_FiltersAndWindows(t *testing.T) {
	// Winter date: 13:00 Stockholm = 12:00 UTC.
	delivery := time.Date(2025, 1, 15, 17, 0, 0, 0, time.UTC)
	s := &fakeStore{contractsOnDate: []model.Trade{
		listingTrade("C-PH", model.ContractPH, delivery),
		listingTrade("C-QH", model.ContractQH, delivery.Add(time.Hour)),
		listingTrade("C-BLK", model.ContractOther, delivery),
	}}
	svc := New(s, nil)

	out, err := svc.ListContractsOnDate(context.Background(), "SE3", delivery)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" {
		t.Errorf("status = %s, want ok", out.Status)
	}
	if len(out.Contracts) != 2 {
		t.Fatalf("block contract must be filtered: got %d listings", len(out.Contracts))
	}

	ph := out.Contracts[0]
	wantOpen := time.Date(2025, 1, 14, 12, 0, 0, 0, time.UTC)
	if !ph.OpenTS.Equal(wantOpen) {
		t.Errorf("open = %v, want %v", ph.OpenTS, wantOpen)
	}
	if !ph.CloseTS.Equal(delivery.Add(-time.Hour)) {
		t.Errorf("close = %v, want delivery-1h", ph.CloseTS)
	}
}

func TestListContractsOnDate_EmptyStatus(t *testing.T) {
	svc := New(&fakeStore{}, nil)
	out, err := svc.ListContractsOnDate(context.Background(), "SE3", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != "empty" || len(out.Contracts) != 0 {
		t.Errorf("expected empty listing, got %s with %d rows", out.Status, len(out.Contracts))
	}
}

func TestTicksInWindow_ColdFirst(t *testing.T) {
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	coldTick := model.Tick{TickID: "cold", UpdatedTime: date.Add(10 * time.Hour)}
	hotTick := model.Tick{TickID: "hot", UpdatedTime: date.Add(10 * time.Hour)}

	cold := &fakeCold{files: map[string][]model.Tick{}}
	cold.WriteTickFile("SE3", date, "NX_1", []model.Tick{coldTick})

	svc := New(&fakeStore{hotTicks: []model.Tick{hotTick}}, cold)

	got, err := svc.TicksInWindow(context.Background(), "SE3", "NX_1", date, date.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TickID != "cold" {
		t.Errorf("archived day must come from the cold tier, got %v", got)
	}

	// Unarchived contract falls through to the hot store.
	got, err = svc.TicksInWindow(context.Background(), "SE3", "NX_2", date, date.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TickID != "hot" {
		t.Errorf("unarchived day must come from the hot store, got %v", got)
	}
}

func TestTicksInWindow_FiltersColdFileToWindow(t *testing.T) {
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	early := model.Tick{TickID: "early", UpdatedTime: date.Add(2 * time.Hour)}
	inside := model.Tick{TickID: "inside", UpdatedTime: date.Add(10 * time.Hour)}
	late := model.Tick{TickID: "late", UpdatedTime: date.Add(20 * time.Hour)}

	cold := &fakeCold{files: map[string][]model.Tick{}}
	cold.WriteTickFile("SE3", date, "NX_1", []model.Tick{early, inside, late})

	svc := New(&fakeStore{}, cold)

	got, err := svc.TicksInWindow(context.Background(), "SE3", "NX_1",
		date.Add(9*time.Hour), date.Add(12*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TickID != "inside" {
		t.Errorf("cold-tier ticks outside the window must be dropped, got %v", got)
	}
}

func TestTicksInWindow_SpansArchivedDays(t *testing.T) {
	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	t1 := model.Tick{TickID: "day1", UpdatedTime: d1.Add(23 * time.Hour)}
	t2 := model.Tick{TickID: "day2", UpdatedTime: d2.Add(time.Hour)}

	cold := &fakeCold{files: map[string][]model.Tick{}}
	cold.WriteTickFile("SE3", d1, "NX_1", []model.Tick{t1})
	cold.WriteTickFile("SE3", d2, "NX_1", []model.Tick{t2})

	svc := New(&fakeStore{}, cold)

	got, err := svc.TicksInWindow(context.Background(), "SE3", "NX_1",
		d1.Add(22*time.Hour), d2.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("window spanning two archived days must merge both files, got %d ticks", len(got))
	}

	// A window touching an unarchived day falls back to the hot store
	// for the whole range.
	hot := &fakeStore{hotTicks: []model.Tick{{TickID: "hot"}}}
	svc = New(hot, cold)
	got, err = svc.TicksInWindow(context.Background(), "SE3", "NX_1",
		d1.Add(22*time.Hour), d2.AddDate(0, 0, 1).Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TickID != "hot" {
		t.Errorf("partially archived window must be served hot, got %v", got)
	}
}

func TestDataAvailability_CollectsCheckpoints(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	s := &fakeStore{
		spanCount:   42,
		tradeState:  &model.TradeFetchState{Area: "SE3", LastFetchedTime: now.Add(-2 * time.Hour), Status: model.StatusOK},
		candleState: &model.CandleGenState{Area: "SE3", LastGeneratedTime: now.Add(-3 * time.Hour)},
		flowState: &model.OrderFlowSyncState{
			Area: "SE3", LastArchivedTime: now.Add(-72 * time.Hour),
			LastRealtimeTime: now.Add(-time.Minute), Status: model.StatusOK,
		},
	}
	svc := New(s, nil)

	av, err := svc.DataAvailability(context.Background(), "SE3")
	if err != nil {
		t.Fatal(err)
	}
	if av.TradeCount != 42 {
		t.Errorf("trade count = %d", av.TradeCount)
	}
	if av.TradeStatus != model.StatusOK || av.OrderFlowStatus != model.StatusOK {
		t.Errorf("statuses not carried: %s / %s", av.TradeStatus, av.OrderFlowStatus)
	}
	if !av.RealtimeCheckpoint.Equal(now.Add(-time.Minute)) {
		t.Errorf("realtime checkpoint = %v", av.RealtimeCheckpoint)
	}
}

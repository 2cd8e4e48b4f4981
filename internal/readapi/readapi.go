// Package readapi is the query surface over the ingested data: contract
// listings per delivery date, candle and trade series, tick logs (cold
// tier first) and an availability report for operators.
package readapi

import (
	"context"
	"fmt"
	"time"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/parse"
	"nordpool-dataplane/internal/timewin"
)

// Store combines the reads the service needs from the hot store.
type Store interface {
	model.TradeReader
	model.CandleReader
	model.TickReader
	model.StateStore
}

// Service answers read queries for one deployment.
type Service struct {
	store Store
	cold  model.TickFileStore
}

func New(store Store, cold model.TickFileStore) *Service {
	return &Service{store: store, cold: cold}
}

// ContractsOnDate is the listing response for one (area, delivery date).
type ContractsOnDate struct {
	Area      string                  `json:"area"`
	Date      string                  `json:"date"`
	Status    string                  `json:"status"` // "ok" or "empty"
	Contracts []model.ContractListing `json:"contracts"`
}

// ListContractsOnDate lists the hourly and quarter-hourly contracts traded
// on a delivery date, each with its trading window. Block products are
// excluded from the listing.
func (s *Service) ListContractsOnDate(ctx context.Context, area string, date time.Time) (*ContractsOnDate, error) {
	rows, err := s.store.TradedContractsOnDate(ctx, area, date)
	if err != nil {
		return nil, fmt.Errorf("readapi: contracts on %s: %w", date.Format("2006-01-02"), err)
	}

	out := &ContractsOnDate{
		Area:   area,
		Date:   date.UTC().Format("2006-01-02"),
		Status: "empty",
	}
	for i := range rows {
		t := &rows[i]
		if t.ContractType != model.ContractPH && t.ContractType != model.ContractQH {
			continue
		}
		open, close := timewin.TradingWindow(t.DeliveryStart)
		out.Contracts = append(out.Contracts, parse.TradeListing(t, open, close))
	}
	if len(out.Contracts) > 0 {
		out.Status = "ok"
	}
	return out, nil
}

// CandlesForContract returns a contract's full 1m series.
func (s *Service) CandlesForContract(ctx context.Context, area, contractID string) ([]model.Candle, error) {
	return s.store.CandlesForContract(ctx, area, contractID)
}

// TradesForContract returns a contract's raw trade legs.
func (s *Service) TradesForContract(ctx context.Context, area, contractID string) ([]model.Trade, error) {
	return s.store.TradesForContract(ctx, area, contractID)
}

// TicksInWindow returns a contract's tick log for [from, to). The cold
// tier is authoritative once a day is archived: when every day the window
// touches has an archive file, the files are read and filtered to the
// window. Otherwise the hot store serves the window directly.
func (s *Service) TicksInWindow(ctx context.Context, area, contractID string, from, to time.Time) ([]model.Tick, error) {
	from, to = from.UTC(), to.UTC()
	if s.cold != nil {
		ticks, ok, err := s.coldTicks(area, contractID, from, to)
		if err != nil {
			return nil, fmt.Errorf("readapi: cold ticks %s: %w", contractID, err)
		}
		if ok {
			return ticks, nil
		}
	}
	return s.store.TicksInRange(ctx, contractID, from, to)
}

func (s *Service) coldTicks(area, contractID string, from, to time.Time) ([]model.Tick, bool, error) {
	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	var out []model.Tick
	for day := first; day.Before(to); day = day.AddDate(0, 0, 1) {
		if !s.cold.HasTickFile(area, day, contractID) {
			return nil, false, nil
		}
		ticks, err := s.cold.ReadTickFile(area, day, contractID)
		if err != nil {
			return nil, false, err
		}
		for i := range ticks {
			ts := ticks[i].UpdatedTime
			if !ts.Before(from) && ts.Before(to) {
				out = append(out, ticks[i])
			}
		}
	}
	return out, true, nil
}

// Availability summarizes what data an area currently holds.
type Availability struct {
	Area string `json:"area"`

	TradeCount     int64     `json:"trade_count"`
	FirstTradeTime time.Time `json:"first_trade_time"`
	LastTradeTime  time.Time `json:"last_trade_time"`

	TradeCheckpoint    time.Time `json:"trade_checkpoint"`
	TradeStatus        string    `json:"trade_status"`
	CandleCheckpoint   time.Time `json:"candle_checkpoint"`
	ArchiveCheckpoint  time.Time `json:"archive_checkpoint"`
	RealtimeCheckpoint time.Time `json:"realtime_checkpoint"`
	OrderFlowStatus    string    `json:"order_flow_status"`
}

// DataAvailability reports span and checkpoint state for an area.
func (s *Service) DataAvailability(ctx context.Context, area string) (*Availability, error) {
	min, max, count, err := s.store.TradeSpan(ctx, area)
	if err != nil {
		return nil, fmt.Errorf("readapi: trade span: %w", err)
	}
	out := &Availability{
		Area:           area,
		TradeCount:     count,
		FirstTradeTime: min,
		LastTradeTime:  max,
	}

	if st, err := s.store.GetTradeFetchState(ctx, area); err != nil {
		return nil, fmt.Errorf("readapi: trade state: %w", err)
	} else if st != nil {
		out.TradeCheckpoint = st.LastFetchedTime
		out.TradeStatus = st.Status
	}
	if st, err := s.store.GetCandleGenState(ctx, area); err != nil {
		return nil, fmt.Errorf("readapi: candle state: %w", err)
	} else if st != nil {
		out.CandleCheckpoint = st.LastGeneratedTime
	}
	if st, err := s.store.GetOrderFlowSyncState(ctx, area); err != nil {
		return nil, fmt.Errorf("readapi: orderflow state: %w", err)
	} else if st != nil {
		out.ArchiveCheckpoint = st.LastArchivedTime
		out.RealtimeCheckpoint = st.LastRealtimeTime
		out.OrderFlowStatus = st.Status
	}
	return out, nil
}

package parse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/upstream"
)

func TestFlattenTrades_OneRecordPerLeg(t *testing.T) {
	raw := &upstream.TradesResponse{
		Contracts: []upstream.TradeContract{{
			ContractID:    "NX_1001",
			ContractName:  "PH-20250101-16",
			DeliveryStart: "2025-01-01T15:00:00Z",
			DeliveryEnd:   "2025-01-01T16:00:00Z",
			Trades: []upstream.RawTrade{{
				TradeID:   "T1",
				TradeTime: "2025-01-01T10:30:00Z",
				Price:     decimal.NewFromInt(50),
				Volume:    decimal.NewFromInt(3),
				Legs: []upstream.TradeLeg{
					{DeliveryArea: "SE3", TradeSide: "Buy", ReferenceOrderID: "O-1"},
					{DeliveryArea: "DK1", TradeSide: "Sell", ReferenceOrderID: "O-2"},
				},
			}},
		}},
	}

	trades := FlattenTrades(raw, "SE3")
	if len(trades) != 2 {
		t.Fatalf("expected 2 leg records, got %d", len(trades))
	}

	byKey := map[string]model.Trade{}
	for _, tr := range trades {
		byKey[tr.DeliveryArea+"/"+tr.TradeSide] = tr
	}
	se3, ok := byKey["SE3/BUY"]
	if !ok {
		t.Fatalf("missing SE3 BUY leg, got %v", byKey)
	}
	if se3.ContractType != model.ContractPH {
		t.Errorf("60-minute delivery should classify PH, got %s", se3.ContractType)
	}
	if se3.ReferenceOrderID != "O-1" {
		t.Errorf("leg reference order not carried: %q", se3.ReferenceOrderID)
	}
	if _, ok := byKey["DK1/SELL"]; !ok {
		t.Errorf("missing DK1 SELL leg")
	}
}

func TestFlattenTrades_LeglessFallsBackToUnknown(t *testing.T) {
	raw := &upstream.TradesResponse{
		Contracts: []upstream.TradeContract{{
			ContractID:    "NX_1002",
			DeliveryStart: "2025-01-01T15:00:00Z",
			DeliveryEnd:   "2025-01-01T15:15:00Z",
			Trades: []upstream.RawTrade{{
				TradeID:   "T2",
				TradeTime: "2025-01-01T10:00:00Z",
			}},
		}},
	}

	trades := FlattenTrades(raw, "SE1")
	if len(trades) != 1 {
		t.Fatalf("expected 1 record, got %d", len(trades))
	}
	if trades[0].TradeSide != "Unknown" || trades[0].DeliveryArea != "SE1" {
		t.Errorf("legless trade should land in the request area with side Unknown, got %s/%s",
			trades[0].DeliveryArea, trades[0].TradeSide)
	}
	if trades[0].ContractType != model.ContractQH {
		t.Errorf("15-minute delivery should classify QH, got %s", trades[0].ContractType)
	}
}

func TestFlattenTrades_SkipsBadTimestamps(t *testing.T) {
	raw := &upstream.TradesResponse{
		Contracts: []upstream.TradeContract{{
			ContractID:    "NX_1003",
			DeliveryStart: "2025-01-01T15:00:00Z",
			DeliveryEnd:   "2025-01-01T16:00:00Z",
			Trades: []upstream.RawTrade{
				{TradeID: "BAD", TradeTime: "not-a-time"},
				{TradeID: "OK", TradeTime: "2025-01-01T10:00:00Z"},
			},
		}},
	}
	trades := FlattenTrades(raw, "SE3")
	if len(trades) != 1 || trades[0].TradeID != "OK" {
		t.Fatalf("malformed row should be skipped, not fail the batch: %v", trades)
	}
}

func TestClassifyDuration_Boundaries(t *testing.T) {
	cases := []struct {
		minutes float64
		want    model.ContractType
	}{
		{59.2, model.ContractPH},
		{60.8, model.ContractPH},
		{14.2, model.ContractQH},
		{15.8, model.ContractQH},
		{45.0, model.ContractOther},
	}
	for _, c := range cases {
		d := time.Duration(c.minutes * float64(time.Minute))
		if got := model.ClassifyDuration(d); got != c.want {
			t.Errorf("ClassifyDuration(%.1fm) = %s, want %s", c.minutes, got, c.want)
		}
	}
}

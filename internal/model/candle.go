package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a 1-minute OHLCV aggregate for one contract in one area.
// TS is the minute bucket start (UTC, minute-aligned).
type Candle struct {
	ContractID   string       `json:"contract_id"`
	TS           time.Time    `json:"ts"`
	Area         string       `json:"area"`
	ContractType ContractType `json:"contract_type"`

	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	VWAP       decimal.Decimal `json:"vwap"`
	TradeCount int             `json:"trade_count"`
}

// Key returns "contract_id|area|unix-minute".
func (c *Candle) Key() string {
	return c.ContractID + "|" + c.Area + "|" + c.TS.UTC().Format(time.RFC3339)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

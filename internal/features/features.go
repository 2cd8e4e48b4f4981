// Package features computes indicator columns over candle series and
// serves them to the live runner's strategy step.
package features

import (
	"context"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

// Provider feeds the live runner with the area's most recent candles.
type Provider struct {
	candles model.CandleReader
}

func NewProvider(candles model.CandleReader) *Provider {
	return &Provider{candles: candles}
}

func (p *Provider) CandlesWithFeatures(ctx context.Context, area string, n int) ([]model.Candle, error) {
	return p.candles.RecentCandles(ctx, area, n)
}

// SMA is the mean of the last period closes. Returns (Zero, false) when
// the series is too short.
func SMA(closes []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(closes) < period {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, c := range closes[len(closes)-period:] {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// RSI is the Wilder-smoothed relative strength index over the closes.
// Returns (0, false) until period+1 closes are available.
func RSI(closes []decimal.Decimal, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change, _ := closes[i].Sub(closes[i-1]).Float64()
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	n := float64(period)
	for i := period + 1; i < len(closes); i++ {
		change, _ := closes[i].Sub(closes[i-1]).Float64()
		if change > 0 {
			gain = (gain*(n-1) + change) / n
			loss = (loss * (n - 1)) / n
		} else {
			gain = (gain * (n - 1)) / n
			loss = (loss*(n-1) - change) / n
		}
	}

	if loss == 0 {
		return 100, true
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs)), true
}

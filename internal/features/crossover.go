package features

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/live"
	"nordpool-dataplane/internal/model"
)

// Crossover is an SMA crossover strategy adapter.
//
// Buy: fast SMA crosses above slow SMA (golden cross).
// Sell: fast SMA crosses below slow SMA (death cross).
//
// The optional RSI filter blocks buying when overbought (>70) and
// selling when oversold (<30). Orders are limit orders at the latest
// close of the contract that produced the cross.
type Crossover struct {
	Fast      int
	Slow      int
	RSIPeriod int // 0 disables the filter
	Quantity  decimal.Decimal
}

func NewCrossover(fast, slow, rsiPeriod int, qty decimal.Decimal) *Crossover {
	return &Crossover{Fast: fast, Slow: slow, RSIPeriod: rsiPeriod, Quantity: qty}
}

func (c *Crossover) OnCandle(ctx context.Context, st *live.State, latest model.Candle, history []model.Candle) ([]live.OrderIntent, error) {
	closes := make([]decimal.Decimal, 0, len(history))
	for i := range history {
		if history[i].ContractID != latest.ContractID {
			continue
		}
		closes = append(closes, history[i].Close)
	}
	if len(closes) < c.Slow+1 {
		return nil, nil
	}

	fastNow, _ := SMA(closes, c.Fast)
	slowNow, _ := SMA(closes, c.Slow)
	prev := closes[:len(closes)-1]
	fastPrev, okF := SMA(prev, c.Fast)
	slowPrev, okS := SMA(prev, c.Slow)
	if !okF || !okS {
		return nil, nil
	}

	golden := fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow)
	death := fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow)
	if !golden && !death {
		return nil, nil
	}

	if c.RSIPeriod > 0 {
		if rsi, ok := RSI(closes, c.RSIPeriod); ok {
			if golden && rsi > 70 {
				log.Printf("[strategy] %s: golden cross filtered by RSI %.1f > 70", latest.ContractID, rsi)
				return nil, nil
			}
			if death && rsi < 30 {
				log.Printf("[strategy] %s: death cross filtered by RSI %.1f < 30", latest.ContractID, rsi)
				return nil, nil
			}
		}
	}

	side := model.SideBuy
	if death {
		side = model.SideSell
	}
	log.Printf("[strategy] %s: SMA cross %s (fast=%s slow=%s)",
		latest.ContractID, side, fastNow.Round(4), slowNow.Round(4))

	return []live.OrderIntent{{
		ContractID: latest.ContractID,
		Side:       side,
		Price:      latest.Close,
		Quantity:   c.Quantity,
	}}, nil
}

package live

import (
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"nordpool-dataplane/internal/model"
)

var bpsDenom = decimal.NewFromInt(10000)

// matcher simulates limit-order fills with slippage and fees, both in
// basis points of the fill notional.
type matcher struct {
	slippageBps decimal.Decimal
	feeBps      decimal.Decimal
}

func newMatcher(slippageBps, feeBps int64) *matcher {
	return &matcher{
		slippageBps: decimal.NewFromInt(slippageBps),
		feeBps:      decimal.NewFromInt(feeBps),
	}
}

// fill applies one fill at marketPx to the state: slippage moves the
// price against the order, the fee is taken from cash, and the order is
// considered fully filled.
func (m *matcher) fill(st *State, o Order, marketPx decimal.Decimal) {
	slip := marketPx.Mul(m.slippageBps).Div(bpsDenom)
	fillPx := marketPx
	if o.Side == model.SideBuy {
		fillPx = fillPx.Add(slip)
	} else {
		fillPx = fillPx.Sub(slip)
	}

	notional := fillPx.Mul(o.Quantity)
	fee := notional.Mul(m.feeBps).Div(bpsDenom)

	if o.Side == model.SideBuy {
		st.Cash = st.Cash.Sub(notional).Sub(fee)
		st.Position = st.Position.Add(o.Quantity)
	} else {
		st.Cash = st.Cash.Add(notional).Sub(fee)
		st.Position = st.Position.Sub(o.Quantity)
	}
	st.Stats.Slippage = st.Stats.Slippage.Add(slip.Mul(o.Quantity))
	st.Stats.Fees = st.Stats.Fees.Add(fee)

	log.Printf("[live] filled %s %s %s qty=%s px=%s (slip=%s fee=%s)",
		o.OrderID, o.Side, o.ContractID, o.Quantity, fillPx, slip, fee)
}

// crossed reports whether a market price crosses the order's limit.
func crossed(o Order, px decimal.Decimal) bool {
	if o.Side == model.SideBuy {
		return px.LessThanOrEqual(o.Price)
	}
	return px.GreaterThanOrEqual(o.Price)
}

// matchTicks walks ticks in timestamp order and fills every resting
// order whose limit is crossed by a tick on its contract. Filled orders
// leave the book; the rest stay resting.
func (m *matcher) matchTicks(st *State, ticks []model.Tick) {
	if len(st.Orders) == 0 || len(ticks) == 0 {
		return
	}
	sorted := make([]model.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedTime.Before(sorted[j].UpdatedTime)
	})

	remaining := st.Orders[:0]
	for _, o := range st.Orders {
		filled := false
		for i := range sorted {
			t := &sorted[i]
			if t.ContractID != o.ContractID || t.Price.IsZero() {
				continue
			}
			if crossed(o, t.Price) {
				m.fill(st, o, t.Price)
				filled = true
				break
			}
		}
		if !filled {
			remaining = append(remaining, o)
		}
	}
	st.Orders = remaining
}

// matchCandles fills orders against candle ranges: a buy limit is
// crossed when the candle traded below it, a sell limit when it traded
// above. The fill happens at the limit price.
func (m *matcher) matchCandles(st *State, candles []model.Candle) {
	if len(st.Orders) == 0 || len(candles) == 0 {
		return
	}
	remaining := st.Orders[:0]
	for _, o := range st.Orders {
		filled := false
		for i := range candles {
			c := &candles[i]
			if c.ContractID != o.ContractID {
				continue
			}
			if o.Side == model.SideBuy && c.Low.LessThanOrEqual(o.Price) {
				m.fill(st, o, o.Price)
				filled = true
				break
			}
			if o.Side == model.SideSell && c.High.GreaterThanOrEqual(o.Price) {
				m.fill(st, o, o.Price)
				filled = true
				break
			}
		}
		if !filled {
			remaining = append(remaining, o)
		}
	}
	st.Orders = remaining
}

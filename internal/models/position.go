package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the position direction. Long is the only side the system
// ever opens — short/margin positions are out of scope.
type Side string

const Long Side = "long"

// Position is the single open long a bot may hold at a time.
type Position struct {
	Symbol                    string          `json:"symbol"`
	Side                      Side            `json:"side"`
	Qty                       decimal.Decimal `json:"qty"`
	AvgEntryPrice             decimal.Decimal `json:"avg_entry_price"`
	StopLossPrice             decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice           decimal.Decimal `json:"take_profit_price"`
	OpenedAt                  time.Time       `json:"opened_at"`
	LastBuyAt                 time.Time       `json:"last_buy_at"`
	AIReasoning               string          `json:"ai_reasoning"`
	RealizedPnLUSDTCumulative decimal.Decimal `json:"realized_pnl_usdt_cumulative"`
}

// Clone returns a deep copy; Position fields are all value types so a
// struct copy suffices.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Notional returns qty * price.
func (p *Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Qty.Mul(price)
}

// ApplyScaleIn recomputes the weighted-average entry price and resets
// stop-loss/take-profit around the new average, per spec §4.2 step 5
// and the scale-in invariant of §8.3.
func (p *Position) ApplyScaleIn(fillQty, fillPrice, slPct, tpPct decimal.Decimal) {
	oldNotional := p.Qty.Mul(p.AvgEntryPrice)
	newNotional := fillQty.Mul(fillPrice)
	newQty := p.Qty.Add(fillQty)

	newAvg := oldNotional.Add(newNotional).Div(newQty)

	p.Qty = newQty
	p.AvgEntryPrice = newAvg
	p.StopLossPrice = newAvg.Mul(decimal.NewFromInt(1).Sub(slPct))
	p.TakeProfitPrice = newAvg.Mul(decimal.NewFromInt(1).Add(tpPct))
	p.LastBuyAt = time.Now().UTC()
}

// IsDust reports whether the position's notional at the given price
// falls below the exchange's minimum notional, meaning it should be
// treated as "no position" (spec §4.2 tie-breaks).
func (p *Position) IsDust(price, minNotional decimal.Decimal) bool {
	return p.Notional(price).LessThan(minNotional)
}

// ExitReason names why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitMaxHold    ExitReason = "max_hold"
	ExitSignal     ExitReason = "signal_sell"
	ExitDust       ExitReason = "dust"
	ExitManual     ExitReason = "manual"
)

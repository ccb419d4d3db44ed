package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// SymbolInfo is the cached tradeability/quantization metadata for a symbol.
type SymbolInfo struct {
	Symbol      string
	Tradeable   bool
	LotStep     decimal.Decimal
	MinNotional decimal.Decimal
	CachedAt    time.Time
}

// Balance is one asset's free balance on the exchange account.
type Balance struct {
	Asset string
	Free  decimal.Decimal
}

// OrderResult is the typed outcome of a market order, returned by the
// exchange client regardless of side.
type OrderResult struct {
	OrderID           string
	Symbol            string
	Side              Action
	ExecutedQty       decimal.Decimal
	AvgFillPrice      decimal.Decimal
	CumulativeQuoteQty decimal.Decimal
	Status            string
}

// Article is one item returned by a news source.
type Article struct {
	Ticker      string
	Title       string
	Summary     string
	Source      string
	PublishedAt time.Time
}

// TradeEvent is what the notifier and the append-only log receive for
// every state-changing trade.
type TradeEvent struct {
	BotID     int64
	Action    Action
	Symbol    string
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Notional  decimal.Decimal
	PnL       *decimal.Decimal
	Reasoning string
}

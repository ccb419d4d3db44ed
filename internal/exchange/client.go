// Package exchange wraps the Binance spot REST API behind a small
// interface the rest of the fleet depends on, so strategies and
// workers never see an HTTP client directly.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/spotfleet/spotfleet/internal/models"
	"github.com/spotfleet/spotfleet/internal/ratelimit"
)

// Errors returned by Client methods. Callers match these with
// errors.Is; everything else is a wrapped transport/exchange error.
var (
	ErrSymbolNotTradeable = fmt.Errorf("exchange: symbol not tradeable")
	ErrBelowMinNotional   = fmt.Errorf("exchange: order below minimum notional")
	ErrInsufficientFunds  = fmt.Errorf("exchange: insufficient balance")
)

// Client is the exchange-facing contract consumed by internal/worker
// and internal/fleet. A single Client is shared by every bot.
type Client interface {
	GetBalances(ctx context.Context) ([]models.Balance, error)
	GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	GetSymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error)
	MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (models.OrderResult, error)
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (models.OrderResult, error)
}

// Config configures the Binance spot client.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Timeout   time.Duration

	RateLimit ratelimit.Limiter // required

	// BreakerTimeout is how long the circuit breaker stays open;
	// zero falls back to a default.
	BreakerTimeout time.Duration
}

// binanceClient implements Client over github.com/adshao/go-binance/v2.
type binanceClient struct {
	raw     *binance.Client
	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker

	symbolCacheMu sync.RWMutex
	symbolCache   map[string]cachedSymbolInfo
}

type cachedSymbolInfo struct {
	info     models.SymbolInfo
	cachedAt time.Time
}

// New constructs a Client backed by the live (or testnet) Binance spot API.
func New(cfg Config) Client {
	binance.UseTestnet = cfg.Testnet
	raw := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Timeout > 0 {
		raw.HTTPClient.Timeout = cfg.Timeout
	} else {
		raw.HTTPClient.Timeout = 10 * time.Second
	}

	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout == 0 {
		breakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-spot",
		MaxRequests: 3,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &binanceClient{
		raw:         raw,
		limiter:     cfg.RateLimit,
		breaker:     breaker,
		symbolCache: make(map[string]cachedSymbolInfo),
	}
}

func (c *binanceClient) call(ctx context.Context, endpoint string, fn func() (interface{}, error)) (interface{}, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.breaker.Execute(fn)
}

func (c *binanceClient) GetBalances(ctx context.Context) ([]models.Balance, error) {
	res, err := c.call(ctx, "account", func() (interface{}, error) {
		return c.raw.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	acct := res.(*binance.Account)

	out := make([]models.Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		if free.IsZero() {
			continue
		}
		out = append(out, models.Balance{Asset: b.Asset, Free: free})
	}
	return out, nil
}

func (c *binanceClient) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := c.call(ctx, "ticker/price", func() (interface{}, error) {
		return c.raw.NewListPricesService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get ticker price %s: %w", symbol, err)
	}
	prices := res.([]*binance.SymbolPrice)
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("get ticker price %s: %w", symbol, ErrSymbolNotTradeable)
	}
	return decimal.NewFromString(prices[0].Price)
}

func (c *binanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	res, err := c.call(ctx, "klines", func() (interface{}, error) {
		return c.raw.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get klines %s: %w", symbol, err)
	}
	raw := res.([]*binance.Kline)

	out := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := toCandle(k)
		if err != nil {
			continue
		}
		out = append(out, candle)
	}
	return out, nil
}

func toCandle(k *binance.Kline) (models.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return models.Candle{}, err
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return models.Candle{}, err
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return models.Candle{}, err
	}
	closeP, err := decimal.NewFromString(k.Close)
	if err != nil {
		return models.Candle{}, err
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return models.Candle{}, err
	}
	return models.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		CloseTime: time.UnixMilli(k.CloseTime),
	}, nil
}

// GetSymbolInfo returns lot-step and min-notional filters, cached for
// an hour since they change only on Binance-side listing updates.
func (c *binanceClient) GetSymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	c.symbolCacheMu.RLock()
	cached, ok := c.symbolCache[symbol]
	c.symbolCacheMu.RUnlock()
	if ok && time.Since(cached.cachedAt) < time.Hour {
		return cached.info, nil
	}

	res, err := c.call(ctx, "exchangeInfo", func() (interface{}, error) {
		return c.raw.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return models.SymbolInfo{}, fmt.Errorf("get exchange info %s: %w", symbol, err)
	}
	exInfo := res.(*binance.ExchangeInfo)
	if len(exInfo.Symbols) == 0 {
		return models.SymbolInfo{}, fmt.Errorf("get exchange info %s: %w", symbol, ErrSymbolNotTradeable)
	}
	s := exInfo.Symbols[0]

	info := models.SymbolInfo{
		Symbol:    s.Symbol,
		Tradeable: s.Status == "TRADING",
		CachedAt:  time.Now().UTC(),
	}
	if lot := s.LotSizeFilter(); lot != nil {
		info.LotStep, _ = decimal.NewFromString(lot.StepSize)
	}
	if mn := s.MinNotionalFilter(); mn != nil {
		info.MinNotional, _ = decimal.NewFromString(mn.MinNotional)
	}

	c.symbolCacheMu.Lock()
	c.symbolCache[symbol] = cachedSymbolInfo{info: info, cachedAt: time.Now()}
	c.symbolCacheMu.Unlock()

	return info, nil
}

// MarketBuy spends quoteAmount USDT on symbol at market price. Each
// order carries a fresh client order ID so a retried call after a
// timed-out response can never be mistaken for a duplicate fill.
// quoteAmount is checked against the symbol's min-notional and sent
// as given; it is not quantized to lot_step.
func (c *binanceClient) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (models.OrderResult, error) {
	info, err := c.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("market buy %s: %w", symbol, err)
	}
	if !info.MinNotional.IsZero() && quoteAmount.LessThan(info.MinNotional) {
		return models.OrderResult{}, fmt.Errorf("market buy %s: %w", symbol, ErrBelowMinNotional)
	}

	clientOrderID := newClientOrderID()
	res, err := c.call(ctx, "order", func() (interface{}, error) {
		return c.raw.NewCreateOrderService().
			Symbol(symbol).
			Side(binance.SideTypeBuy).
			Type(binance.OrderTypeMarket).
			QuoteOrderQty(quoteAmount.String()).
			NewClientOrderID(clientOrderID).
			Do(ctx)
	})
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("market buy %s: %w", symbol, classifyOrderError(err))
	}
	return toOrderResult(res.(*binance.CreateOrderResponse))
}

// MarketSell liquidates qty base-asset units of symbol at market
// price. qty is quantized to the symbol's lot_step before the order
// is placed, so a caller passing an odd wallet-derived quantity (e.g.
// a synthesized orphan position) can never trip Binance's LOT_SIZE
// filter.
func (c *binanceClient) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (models.OrderResult, error) {
	info, err := c.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("market sell %s: %w", symbol, err)
	}

	quantized := Quantize(qty, info.LotStep)
	if quantized.IsZero() || quantized.IsNegative() {
		return models.OrderResult{}, fmt.Errorf("market sell %s: %w", symbol, ErrBelowMinNotional)
	}

	clientOrderID := newClientOrderID()
	res, err := c.call(ctx, "order", func() (interface{}, error) {
		return c.raw.NewCreateOrderService().
			Symbol(symbol).
			Side(binance.SideTypeSell).
			Type(binance.OrderTypeMarket).
			Quantity(quantized.String()).
			NewClientOrderID(clientOrderID).
			Do(ctx)
	})
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("market sell %s: %w", symbol, classifyOrderError(err))
	}
	return toOrderResult(res.(*binance.CreateOrderResponse))
}

// newClientOrderID produces a short idempotency key for an outbound
// order, namespaced so it is identifiable as ours in exchange logs.
func newClientOrderID() string {
	return "sf_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:22]
}

func classifyOrderError(err error) error {
	apiErr, ok := err.(*binance.APIError)
	if !ok {
		return err
	}
	switch apiErr.Code {
	case -2010: // NEW_ORDER_REJECTED, typically insufficient balance
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, apiErr.Message)
	case -1013: // filter failure, typically MIN_NOTIONAL
		return fmt.Errorf("%w: %s", ErrBelowMinNotional, apiErr.Message)
	default:
		return err
	}
}

func toOrderResult(resp *binance.CreateOrderResponse) (models.OrderResult, error) {
	executedQty, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("parse executed qty: %w", err)
	}
	cumulativeQuote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("parse cumulative quote qty: %w", err)
	}

	avgFillPrice := decimal.Zero
	if !executedQty.IsZero() {
		avgFillPrice = cumulativeQuote.Div(executedQty)
	}

	return models.OrderResult{
		OrderID:            fmt.Sprintf("%d", resp.OrderID),
		Symbol:             resp.Symbol,
		Side:               models.Action(resp.Side),
		ExecutedQty:        executedQty,
		AvgFillPrice:       avgFillPrice,
		CumulativeQuoteQty: cumulativeQuote,
		Status:             string(resp.Status),
	}, nil
}

// Quantize rounds qty down to the symbol's lot step, the way Binance's
// matching engine requires.
func Quantize(qty, lotStep decimal.Decimal) decimal.Decimal {
	if lotStep.IsZero() {
		return qty
	}
	return qty.Div(lotStep).Floor().Mul(lotStep)
}

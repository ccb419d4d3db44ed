// Package worker runs one bot's trading loop: fetch candles, check
// emergency exits, consult the strategy, apply the decision, persist
// state, and alert. One Worker owns exactly one goroutine and exactly
// one Position file.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spotfleet/spotfleet/internal/ai"
	"github.com/spotfleet/spotfleet/internal/botlog"
	"github.com/spotfleet/spotfleet/internal/exchange"
	"github.com/spotfleet/spotfleet/internal/models"
	"github.com/spotfleet/spotfleet/internal/newscache"
	"github.com/spotfleet/spotfleet/internal/notify"
	"github.com/spotfleet/spotfleet/internal/store"
	"github.com/spotfleet/spotfleet/internal/strategy"
)

// Default position-management parameters (spec §4.2/§4.3 defaults).
var (
	DefaultStopLossPct   = decimal.NewFromFloat(0.03)
	DefaultTakeProfitPct = decimal.NewFromFloat(0.05)
	DefaultMaxHold       = 48 * time.Hour
	DefaultTickInterval  = 15 * time.Minute
)

// Accounting is the capital-quota contract a worker needs from the
// fleet supervisor. Implementations must serialize reservations across
// all bots sharing the same USDT balance so no two workers double-spend.
type Accounting interface {
	// Reserve attempts to commit up to want USDT against botID's spare
	// allocated capital. It returns the amount actually reserved (which
	// may be less than want, or zero) and whether any amount was reserved.
	Reserve(botID int64, want decimal.Decimal) (reserved decimal.Decimal, ok bool)
	// Release returns a previously reserved (and possibly never spent,
	// or since-sold) amount to botID's spare capital.
	Release(botID int64, amount decimal.Decimal)
	// UpdateSymbol persists a bot's new trading pair after a news-autonomous switch.
	UpdateSymbol(botID int64, newSymbol string) error
	// CurrentBot returns the live registry entry, so a worker always
	// acts on the latest allocated_capital_usdt/trade_amount_usdt/symbol.
	CurrentBot(botID int64) (*models.Bot, bool)
}

// Config constructs a Worker.
type Config struct {
	Bot           *models.Bot
	Exchange      exchange.Client
	Notifier      *notify.Notifier
	NewsCache     *newscache.Cache
	Analyzer      *ai.Analyzer
	Accounting    Accounting
	PositionStore *store.PositionStore
	Logger        *botlog.Logger
	TickInterval  time.Duration
	AutoAdopted   bool // true for orphan-reconciliation-created bots on their first start

	// StopLossPct, TakeProfitPct, and MaxHold configure position
	// management; zero values fall back to the package defaults.
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	MaxHold       time.Duration
}

// Worker runs one bot's trading loop until its context is canceled.
type Worker struct {
	cfg      Config
	strategy strategy.Strategy
	tick     time.Duration

	stopLossPct   decimal.Decimal
	takeProfitPct decimal.Decimal
	maxHold       time.Duration
}

// New builds a Worker for cfg.Bot. The strategy is resolved once at
// construction; strategies are stateless so this is safe to reuse
// across every tick.
func New(cfg Config) (*Worker, error) {
	s, err := strategy.New(cfg.Bot.StrategyKind)
	if err != nil {
		return nil, err
	}
	tick := cfg.TickInterval
	if tick == 0 {
		tick = DefaultTickInterval
	}

	slPct := cfg.StopLossPct
	if slPct.IsZero() {
		slPct = DefaultStopLossPct
	}
	tpPct := cfg.TakeProfitPct
	if tpPct.IsZero() {
		tpPct = DefaultTakeProfitPct
	}
	maxHold := cfg.MaxHold
	if maxHold == 0 {
		maxHold = DefaultMaxHold
	}

	return &Worker{
		cfg: cfg, strategy: s, tick: tick,
		stopLossPct: slPct, takeProfitPct: tpPct, maxHold: maxHold,
	}, nil
}

// Run executes the tick loop until ctx is canceled. It never returns
// an error: per-tick failures are logged and retried next tick.
func (w *Worker) Run(ctx context.Context) {
	if w.cfg.AutoAdopted {
		if err := w.synthesizeOrphanPosition(ctx); err != nil {
			w.cfg.Logger.Error(models.CategoryPosition, "failed to synthesize orphan position: %v", err)
		}
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	w.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runTick(ctx)
		}
	}
}

func (w *Worker) runTick(ctx context.Context) {
	bot, ok := w.cfg.Accounting.CurrentBot(w.cfg.Bot.ID)
	if !ok {
		w.cfg.Logger.Error(models.CategoryError, "bot no longer in registry, skipping tick")
		return
	}
	w.cfg.Bot = bot

	pos, err := w.cfg.PositionStore.Load()
	if err != nil {
		w.cfg.Logger.Error(models.CategoryError, "loading position: %v", err)
		return
	}

	candles, err := w.cfg.Exchange.GetKlines(ctx, bot.Symbol, strategy.Interval(bot.StrategyKind), 100)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryError, "fetching candles for %s: %v", bot.Symbol, err)
		return
	}

	price, err := w.cfg.Exchange.GetTickerPrice(ctx, bot.Symbol)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryError, "fetching ticker price for %s: %v", bot.Symbol, err)
		return
	}

	if pos != nil {
		reconciled, err := w.reconcileWithWallet(ctx, bot, pos, price)
		if err != nil {
			w.cfg.Logger.Warn(models.CategoryError, "reconciling position for %s: %v", bot.Symbol, err)
		} else {
			pos = reconciled
		}
	}

	if pos != nil {
		if exited := w.checkEmergencyExits(ctx, bot, pos, price); exited {
			return
		}
	}

	signal := w.strategy.Analyze(ctx, strategy.Input{
		Symbol:          bot.Symbol,
		Candles:         candles,
		Position:        pos,
		FetchTickerNews: w.fetchTickerNews,
		FetchGlobalNews: w.fetchGlobalNews,
		AnalyzeNews:     w.analyzeNews,
		IsTradeable:     w.isTradeable(ctx),
	})
	w.cfg.Logger.Info(models.CategoryStrategy, "%s signal=%s confidence=%d reasoning=%q", bot.Symbol, signal.Action, signal.Confidence, signal.Reasoning)

	switch signal.Action {
	case models.Sell:
		if pos != nil {
			w.applySell(ctx, bot, pos, price, models.ExitSignal)
		}
	case models.Buy:
		if pos == nil {
			buyBot, buyPrice := bot, price
			if bot.StrategyKind == models.StrategyNewsAutonomous && signal.RecommendedSymbol != "" && signal.RecommendedSymbol != bot.Symbol {
				switched, newPrice, ok := w.switchAndReprice(ctx, bot, signal.RecommendedSymbol)
				if !ok {
					break
				}
				buyBot, buyPrice = switched, newPrice
			}
			w.applyFirstBuy(ctx, buyBot, buyPrice)
		} else if signal.AllowScaleIn {
			w.applyScaleIn(ctx, bot, pos, price)
		}
	}

	if pos != nil && bot.StrategyKind == models.StrategyNewsAutonomous && signal.RecommendedSymbol != "" && signal.RecommendedSymbol != bot.Symbol {
		w.cfg.Logger.Info(models.CategoryStrategy, "staying focused on %s", bot.Symbol)
	}
}

// reconcileWithWallet reduces pos.Qty to match a lower live wallet
// balance (a manual external sell moved coins out from under the
// bot) and clears the position outright once its notional falls to
// dust, before any emergency-exit or strategy logic sees it.
func (w *Worker) reconcileWithWallet(ctx context.Context, bot *models.Bot, pos *models.Position, price decimal.Decimal) (*models.Position, error) {
	balances, err := w.cfg.Exchange.GetBalances(ctx)
	if err != nil {
		return pos, fmt.Errorf("fetching balances: %w", err)
	}
	walletQty := balanceOf(balances, baseAsset(bot.Symbol))

	changed := false
	if walletQty.LessThan(pos.Qty) {
		w.cfg.Logger.Warn(models.CategoryPosition, "wallet %s below recorded qty %s for %s, reconciling to wallet balance", walletQty, pos.Qty, bot.Symbol)
		pos.Qty = walletQty
		changed = true
	}

	info, err := w.cfg.Exchange.GetSymbolInfo(ctx, bot.Symbol)
	if err != nil {
		return pos, fmt.Errorf("fetching symbol info: %w", err)
	}
	if pos.IsDust(price, info.MinNotional) {
		if err := w.cfg.PositionStore.Clear(); err != nil {
			w.cfg.Logger.Error(models.CategoryError, "clearing dust position: %v", err)
		}
		w.cfg.Logger.Info(models.CategoryPosition, "dust detected for %s, position cleared", bot.Symbol)
		return nil, nil
	}

	if changed {
		if err := w.cfg.PositionStore.Save(pos); err != nil {
			w.cfg.Logger.Error(models.CategoryError, "saving reconciled position: %v", err)
		}
	}
	return pos, nil
}

func (w *Worker) checkEmergencyExits(ctx context.Context, bot *models.Bot, pos *models.Position, price decimal.Decimal) bool {
	switch {
	case price.LessThanOrEqual(pos.StopLossPrice):
		w.applySell(ctx, bot, pos, price, models.ExitStopLoss)
		return true
	case price.GreaterThanOrEqual(pos.TakeProfitPrice):
		w.applySell(ctx, bot, pos, price, models.ExitTakeProfit)
		return true
	case time.Since(pos.OpenedAt) >= w.maxHold:
		w.applySell(ctx, bot, pos, price, models.ExitMaxHold)
		return true
	}
	return false
}

func (w *Worker) applyFirstBuy(ctx context.Context, bot *models.Bot, price decimal.Decimal) {
	balances, err := w.cfg.Exchange.GetBalances(ctx)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryError, "fetching balances: %v", err)
		return
	}
	available := balanceOf(balances, "USDT")

	want := decimal.Min(bot.TradeAmountUSDT, available)
	reserved, ok := w.cfg.Accounting.Reserve(bot.ID, want)
	if !ok || reserved.IsZero() {
		w.cfg.Logger.Info(models.CategoryTrade, "buy skipped: no spare allocated capital or balance")
		return
	}

	info, err := w.cfg.Exchange.GetSymbolInfo(ctx, bot.Symbol)
	if err != nil {
		w.cfg.Accounting.Release(bot.ID, reserved)
		w.cfg.Logger.Warn(models.CategoryError, "fetching symbol info for %s: %v", bot.Symbol, err)
		return
	}
	if reserved.LessThan(info.MinNotional) {
		w.cfg.Accounting.Release(bot.ID, reserved)
		w.cfg.Logger.Info(models.CategoryTrade, "buy skipped: %s below min notional %s", reserved, info.MinNotional)
		return
	}

	result, err := w.cfg.Exchange.MarketBuy(ctx, bot.Symbol, reserved)
	if err != nil {
		w.cfg.Accounting.Release(bot.ID, reserved)
		w.cfg.Logger.Warn(models.CategoryTrade, "market buy %s failed: %v", bot.Symbol, err)
		return
	}

	spent := result.CumulativeQuoteQty
	if spent.LessThan(reserved) {
		w.cfg.Accounting.Release(bot.ID, reserved.Sub(spent))
	}

	pos := &models.Position{
		Symbol:          bot.Symbol,
		Side:            models.Long,
		Qty:             result.ExecutedQty,
		AvgEntryPrice:   result.AvgFillPrice,
		StopLossPrice:   result.AvgFillPrice.Mul(decimal.NewFromInt(1).Sub(w.stopLossPct)),
		TakeProfitPrice: result.AvgFillPrice.Mul(decimal.NewFromInt(1).Add(w.takeProfitPct)),
		OpenedAt:        time.Now().UTC(),
		LastBuyAt:       time.Now().UTC(),
	}
	if err := w.cfg.PositionStore.Save(pos); err != nil {
		w.cfg.Logger.Error(models.CategoryError, "saving position: %v", err)
	}

	w.notifyTrade(ctx, bot, models.Buy, pos.Symbol, result.AvgFillPrice, result.ExecutedQty, spent, nil, "opened position")
}

func (w *Worker) applyScaleIn(ctx context.Context, bot *models.Bot, pos *models.Position, price decimal.Decimal) {
	info, err := w.cfg.Exchange.GetSymbolInfo(ctx, bot.Symbol)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryError, "fetching symbol info for %s: %v", bot.Symbol, err)
		return
	}

	balances, err := w.cfg.Exchange.GetBalances(ctx)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryError, "fetching balances: %v", err)
		return
	}
	available := balanceOf(balances, "USDT")

	reserved, ok := w.cfg.Accounting.Reserve(bot.ID, available)
	if !ok || reserved.IsZero() || reserved.LessThan(info.MinNotional) {
		if reserved.IsPositive() {
			w.cfg.Accounting.Release(bot.ID, reserved)
		}
		w.cfg.Logger.Info(models.CategoryTrade, "scale-in skipped: no spare capital above min notional")
		return
	}

	result, err := w.cfg.Exchange.MarketBuy(ctx, bot.Symbol, reserved)
	if err != nil {
		w.cfg.Accounting.Release(bot.ID, reserved)
		w.cfg.Logger.Warn(models.CategoryTrade, "scale-in buy %s failed: %v", bot.Symbol, err)
		return
	}

	spent := result.CumulativeQuoteQty
	if spent.LessThan(reserved) {
		w.cfg.Accounting.Release(bot.ID, reserved.Sub(spent))
	}

	pos.ApplyScaleIn(result.ExecutedQty, result.AvgFillPrice, w.stopLossPct, w.takeProfitPct)
	if err := w.cfg.PositionStore.Save(pos); err != nil {
		w.cfg.Logger.Error(models.CategoryError, "saving position: %v", err)
	}

	w.notifyTrade(ctx, bot, models.Buy, pos.Symbol, result.AvgFillPrice, result.ExecutedQty, spent, nil, "scaled in")
}

func (w *Worker) applySell(ctx context.Context, bot *models.Bot, pos *models.Position, price decimal.Decimal, reason models.ExitReason) {
	result, err := w.cfg.Exchange.MarketSell(ctx, bot.Symbol, pos.Qty)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryTrade, "market sell %s failed: %v", bot.Symbol, err)
		return
	}

	proceeds := result.CumulativeQuoteQty
	w.cfg.Accounting.Release(bot.ID, proceeds)

	cost := pos.Qty.Mul(pos.AvgEntryPrice)
	pnl := proceeds.Sub(cost)

	if err := w.cfg.PositionStore.Clear(); err != nil {
		w.cfg.Logger.Error(models.CategoryError, "clearing position: %v", err)
	}

	w.cfg.Logger.Info(models.CategoryPosition, "closed %s reason=%s pnl=%s", bot.Symbol, reason, pnl.StringFixed(2))
	w.notifyTrade(ctx, bot, models.Sell, bot.Symbol, result.AvgFillPrice, result.ExecutedQty, proceeds, &pnl, string(reason))
}

// switchAndReprice persists a news-autonomous bot's new trading pair
// and fetches that pair's current price, so the caller can buy the
// recommended symbol in the same tick instead of buying the bot's
// stale symbol and switching out from under the resulting position.
func (w *Worker) switchAndReprice(ctx context.Context, bot *models.Bot, newSymbol string) (*models.Bot, decimal.Decimal, bool) {
	info, err := w.cfg.Exchange.GetSymbolInfo(ctx, newSymbol)
	if err != nil || !info.Tradeable {
		w.cfg.Logger.Warn(models.CategoryStrategy, "cannot switch to %s: not tradeable", newSymbol)
		return nil, decimal.Zero, false
	}
	if err := w.cfg.Accounting.UpdateSymbol(bot.ID, newSymbol); err != nil {
		w.cfg.Logger.Error(models.CategoryError, "updating symbol: %v", err)
		return nil, decimal.Zero, false
	}
	w.cfg.Logger.Info(models.CategoryStrategy, "switched symbol from %s to %s", bot.Symbol, newSymbol)

	price, err := w.cfg.Exchange.GetTickerPrice(ctx, newSymbol)
	if err != nil {
		w.cfg.Logger.Warn(models.CategoryError, "fetching ticker price for %s: %v", newSymbol, err)
		return nil, decimal.Zero, false
	}

	switched := bot.Clone()
	switched.Symbol = newSymbol
	return switched, price, true
}

// synthesizeOrphanPosition creates a Position from the current wallet
// balance on a bot's first start, as required for auto-adopted orphans.
func (w *Worker) synthesizeOrphanPosition(ctx context.Context) error {
	existing, err := w.cfg.PositionStore.Load()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	asset := baseAsset(w.cfg.Bot.Symbol)
	balances, err := w.cfg.Exchange.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("fetching balances: %w", err)
	}
	qty := balanceOf(balances, asset)
	if qty.IsZero() {
		return nil
	}

	price, err := w.cfg.Exchange.GetTickerPrice(ctx, w.cfg.Bot.Symbol)
	if err != nil {
		return fmt.Errorf("fetching price: %w", err)
	}

	pos := &models.Position{
		Symbol:          w.cfg.Bot.Symbol,
		Side:            models.Long,
		Qty:             qty,
		AvgEntryPrice:   price,
		StopLossPrice:   price.Mul(decimal.NewFromInt(1).Sub(w.stopLossPct)),
		TakeProfitPrice: price.Mul(decimal.NewFromInt(1).Add(w.takeProfitPct)),
		OpenedAt:        time.Now().UTC(),
		LastBuyAt:       time.Now().UTC(),
	}
	return w.cfg.PositionStore.Save(pos)
}

func (w *Worker) notifyTrade(ctx context.Context, bot *models.Bot, action models.Action, symbol string, price, qty, notional decimal.Decimal, pnl *decimal.Decimal, reasoning string) {
	if w.cfg.Notifier == nil {
		return
	}
	w.cfg.Notifier.SendTrade(ctx, models.TradeEvent{
		BotID: bot.ID, Action: action, Symbol: symbol,
		Price: price, Qty: qty, Notional: notional, PnL: pnl, Reasoning: reasoning,
	})
}

func (w *Worker) fetchTickerNews(ctx context.Context, ticker string) ([]models.Article, error) {
	if w.cfg.NewsCache == nil {
		return nil, errors.New("news cache not configured")
	}
	return w.cfg.NewsCache.Get(ctx, ticker)
}

func (w *Worker) fetchGlobalNews(ctx context.Context) ([]models.Article, error) {
	if w.cfg.NewsCache == nil {
		return nil, errors.New("news cache not configured")
	}
	return w.cfg.NewsCache.Get(ctx, newscache.GlobalKey)
}

func (w *Worker) analyzeNews(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
	if w.cfg.Analyzer == nil {
		return models.Analysis{Signal: models.Hold, Reasoning: "analyzer unavailable"}
	}
	return w.cfg.Analyzer.Analyze(ctx, ticker, articles)
}

func (w *Worker) isTradeable(ctx context.Context) func(string) bool {
	return func(symbol string) bool {
		info, err := w.cfg.Exchange.GetSymbolInfo(ctx, symbol)
		return err == nil && info.Tradeable
	}
}

func balanceOf(balances []models.Balance, asset string) decimal.Decimal {
	for _, b := range balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return decimal.Zero
}

func baseAsset(symbol string) string {
	const quote = "USDT"
	if len(symbol) > len(quote) && symbol[len(symbol)-len(quote):] == quote {
		return symbol[:len(symbol)-len(quote)]
	}
	return symbol
}

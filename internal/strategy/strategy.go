// Package strategy implements the closed set of signal-generating
// variants a bot can run. Every variant implements the same Analyze
// contract; a factory registry lets many concurrently running bots
// share one stateless variant type.
package strategy

import (
	"context"
	"fmt"

	"github.com/spotfleet/spotfleet/internal/models"
)

// Input is the market/position/news context handed to a strategy on
// every tick.
type Input struct {
	Symbol   string
	Candles  []models.Candle
	Position *models.Position // nil when the bot holds nothing

	// FetchTickerNews and FetchGlobalNews are supplied by the worker so
	// strategies stay free of any direct dependency on the shared cache
	// or the AI analyzer; this keeps Analyze pure and easy to test.
	FetchTickerNews func(ctx context.Context, ticker string) ([]models.Article, error)
	FetchGlobalNews func(ctx context.Context) ([]models.Article, error)
	AnalyzeNews     func(ctx context.Context, ticker string, articles []models.Article) models.Analysis

	// IsTradeable validates a symbol against the exchange's cached
	// symbol list; used by the news-autonomous variant to reject a
	// ticker with no corresponding USDT pair.
	IsTradeable func(symbol string) bool
}

// Strategy produces a Signal from an Input. Implementations must not
// retain ctx or Input beyond the call.
type Strategy interface {
	Analyze(ctx context.Context, in Input) models.Signal
}

// Factory builds a fresh Strategy instance. Strategies are stateless,
// so the same factory output can be reused across ticks, but a new
// instance per bot keeps any accidental per-call state isolated.
type Factory func() Strategy

var registry = map[models.StrategyKind]Factory{
	models.StrategyTechnicalVolatile:         func() Strategy { return volatileStrategy{} },
	models.StrategyTechnicalMeanReversion:    func() Strategy { return meanReversionStrategy{} },
	models.StrategyTechnicalBreakout:         func() Strategy { return breakoutStrategy{} },
	models.StrategyTechnicalConservative:     func() Strategy { return conservativeStrategy{} },
	models.StrategyTechnicalSimpleProfitable: func() Strategy { return simpleProfitableStrategy{} },
	models.StrategyTechnicalEnhanced:         func() Strategy { return enhancedStrategy{} },
	models.StrategyTechnicalMomentum:         func() Strategy { return momentumStrategy{} },
	models.StrategyTickerNews:                func() Strategy { return tickerNewsStrategy{} },
	models.StrategyNewsAutonomous:            func() Strategy { return newsAutonomousStrategy{} },
}

// New builds the Strategy for kind. An unrecognized kind is a
// configuration error that surfaces when the bot's worker is built
// at start, never at tick time, so callers may treat it as fatal.
func New(kind models.StrategyKind) (Strategy, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown kind %q", kind)
	}
	return factory(), nil
}

// Interval returns the candle interval a strategy kind consumes.
// News-driven variants tick on the same interval as the shared news
// cache TTL granularity; technical variants use 15-minute candles.
func Interval(kind models.StrategyKind) string {
	switch kind {
	case models.StrategyTickerNews, models.StrategyNewsAutonomous:
		return "15m"
	default:
		return "15m"
	}
}

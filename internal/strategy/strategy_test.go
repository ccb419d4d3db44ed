package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotfleet/spotfleet/internal/models"
)

func uptrendCandles(n int, start float64) []models.Candle {
	out := make([]models.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		out[i] = models.Candle{
			Close:  decimal.NewFromFloat(price),
			High:   decimal.NewFromFloat(price * 1.01),
			Low:    decimal.NewFromFloat(price * 0.99),
			Volume: decimal.NewFromInt(100),
		}
		price *= 1.01
	}
	return out
}

func TestNew_UnknownKindErrors(t *testing.T) {
	_, err := New(models.StrategyKind("bogus"))
	assert.Error(t, err)
}

func TestNew_AllClosedSetKindsResolve(t *testing.T) {
	kinds := []models.StrategyKind{
		models.StrategyTechnicalVolatile,
		models.StrategyTechnicalMeanReversion,
		models.StrategyTechnicalBreakout,
		models.StrategyTechnicalConservative,
		models.StrategyTechnicalSimpleProfitable,
		models.StrategyTechnicalEnhanced,
		models.StrategyTechnicalMomentum,
		models.StrategyTickerNews,
		models.StrategyNewsAutonomous,
	}
	for _, k := range kinds {
		s, err := New(k)
		require.NoError(t, err, "kind %s", k)
		assert.NotNil(t, s)
	}
}

func TestMomentumStrategy_BuysOnStrongUptrend(t *testing.T) {
	s := momentumStrategy{}
	in := Input{Symbol: "BTCUSDT", Candles: uptrendCandles(40, 100)}
	got := s.Analyze(context.Background(), in)
	assert.Equal(t, models.Buy, got.Action)
}

func TestMomentumStrategy_HoldsWithNoCandles(t *testing.T) {
	s := momentumStrategy{}
	got := s.Analyze(context.Background(), Input{Symbol: "BTCUSDT"})
	assert.Equal(t, models.Hold, got.Action)
}

func TestTickerNewsStrategy_BuyRequiresHighConfidenceAndNonBearish(t *testing.T) {
	s := tickerNewsStrategy{}
	in := Input{
		Symbol:  "BTCUSDT",
		Candles: uptrendCandles(40, 100),
		FetchTickerNews: func(ctx context.Context, ticker string) ([]models.Article, error) {
			return []models.Article{{Ticker: ticker, Title: "bullish catalyst", PublishedAt: time.Now()}}, nil
		},
		AnalyzeNews: func(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
			return models.Analysis{Signal: models.Buy, Confidence: 80}
		},
	}
	got := s.Analyze(context.Background(), in)
	assert.Equal(t, models.Buy, got.Action)
}

func TestTickerNewsStrategy_LowConfidenceHolds(t *testing.T) {
	s := tickerNewsStrategy{}
	in := Input{
		Symbol:  "BTCUSDT",
		Candles: uptrendCandles(40, 100),
		FetchTickerNews: func(ctx context.Context, ticker string) ([]models.Article, error) {
			return []models.Article{{Ticker: ticker, Title: "minor update"}}, nil
		},
		AnalyzeNews: func(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
			return models.Analysis{Signal: models.Buy, Confidence: 40}
		},
	}
	got := s.Analyze(context.Background(), in)
	assert.Equal(t, models.Hold, got.Action)
}

func TestNewsAutonomousStrategy_LocksToSymbolWhenPositionHeld(t *testing.T) {
	s := newsAutonomousStrategy{}
	in := Input{
		Symbol:   "ETHUSDT",
		Candles:  uptrendCandles(40, 100),
		Position: &models.Position{Symbol: "ETHUSDT"},
		FetchTickerNews: func(ctx context.Context, ticker string) ([]models.Article, error) {
			return []models.Article{{Ticker: ticker, Title: "steady"}}, nil
		},
		AnalyzeNews: func(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
			return models.Analysis{Signal: models.Buy, Confidence: 75}
		},
	}
	got := s.Analyze(context.Background(), in)
	assert.Empty(t, got.RecommendedSymbol, "locked-symbol mode must not recommend a switch")
}

func TestNewsAutonomousStrategy_RanksByConfidenceThenImpactThenUrgency(t *testing.T) {
	s := newsAutonomousStrategy{}
	analyses := map[string]models.Analysis{
		"BTC": {Signal: models.Buy, Confidence: 80, Impact: models.ImpactLow, Urgency: models.UrgencyLong, Tickers: []string{"BTC"}},
		"SOL": {Signal: models.Buy, Confidence: 85, Impact: models.ImpactHigh, Urgency: models.UrgencyImmediate, Tickers: []string{"SOL"}},
	}
	in := Input{
		Symbol: "BTCUSDT",
		FetchGlobalNews: func(ctx context.Context) ([]models.Article, error) {
			return []models.Article{{Ticker: "__global__", Title: "btc news"}, {Ticker: "__global__", Title: "sol news"}}, nil
		},
		AnalyzeNews: func(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
			if len(articles) == 0 {
				return models.Analysis{}
			}
			if articles[0].Title == "btc news" {
				return analyses["BTC"]
			}
			return analyses["SOL"]
		},
		IsTradeable: func(symbol string) bool { return true },
	}
	got := s.Analyze(context.Background(), in)
	assert.Equal(t, "SOLUSDT", got.RecommendedSymbol)
}

func TestNewsAutonomousStrategy_RejectsNonTradeableCandidate(t *testing.T) {
	s := newsAutonomousStrategy{}
	in := Input{
		Symbol: "BTCUSDT",
		FetchGlobalNews: func(ctx context.Context) ([]models.Article, error) {
			return []models.Article{{Ticker: "__global__", Title: "obscure coin news"}}, nil
		},
		AnalyzeNews: func(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
			return models.Analysis{Signal: models.Buy, Confidence: 90, Tickers: []string{"OBSCURE"}}
		},
		IsTradeable: func(symbol string) bool { return false },
	}
	got := s.Analyze(context.Background(), in)
	assert.Equal(t, models.Hold, got.Action)
}

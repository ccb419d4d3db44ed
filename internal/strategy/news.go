package strategy

import (
	"context"
	"sort"

	"github.com/spotfleet/spotfleet/internal/models"
)

// tickerNewsStrategy blends AI sentiment on the bot's own ticker with
// a non-bearish/non-bullish technical confirmation.
type tickerNewsStrategy struct{}

func (tickerNewsStrategy) Analyze(ctx context.Context, in Input) models.Signal {
	tc, haveCandles := buildTechnicalContext(in.Candles)

	articles, err := fetchTickerArticles(ctx, in)
	if err != nil || len(articles) == 0 {
		return hold("no news available")
	}

	analysis := in.AnalyzeNews(ctx, in.Symbol, articles)

	bearish := haveCandles && tc.ema12.LessThan(tc.ema26)
	bullish := haveCandles && tc.ema12.GreaterThan(tc.ema26)

	switch {
	case analysis.Signal == models.Buy && analysis.Confidence >= 70 && !bearish:
		return models.Signal{Action: models.Buy, Confidence: analysis.Confidence, Reasoning: analysis.Reasoning}
	case analysis.Signal == models.Sell && analysis.Confidence >= 60 && !bullish:
		return models.Signal{Action: models.Sell, Confidence: analysis.Confidence, Reasoning: analysis.Reasoning}
	default:
		return hold("news signal not confirmed by technicals")
	}
}

func fetchTickerArticles(ctx context.Context, in Input) ([]models.Article, error) {
	if in.FetchTickerNews == nil {
		return nil, nil
	}
	return in.FetchTickerNews(ctx, in.Symbol)
}

// newsAutonomousStrategy scans news across every ticker and picks the
// best-ranked candidate when flat. Once a position is held, its action
// and confidence come from tickerNewsStrategy on the bot's own symbol;
// a better-ranked other ticker is still reported in RecommendedSymbol.
type newsAutonomousStrategy struct{}

func (newsAutonomousStrategy) Analyze(ctx context.Context, in Input) models.Signal {
	if in.Position != nil {
		signal := tickerNewsStrategy{}.Analyze(ctx, in)
		// Rank global candidates even while holding a position, purely
		// so the worker can log (and the dashboard can surface) that a
		// switch is being suppressed in favor of the held symbol.
		if best, _, ok := rankGlobalCandidate(ctx, in); ok {
			if recommended := best.ticker + "USDT"; recommended != in.Symbol {
				signal.RecommendedSymbol = recommended
			}
		}
		return signal
	}

	best, reason, ok := rankGlobalCandidate(ctx, in)
	if !ok {
		return hold(reason)
	}
	return models.Signal{
		Action:            models.Buy,
		Confidence:        best.analysis.Confidence,
		Reasoning:         best.analysis.Reasoning,
		RecommendedSymbol: best.ticker + "USDT",
	}
}

type globalCandidate struct {
	ticker   string
	analysis models.Analysis
}

// rankGlobalCandidate scans every ticker mentioned across in's global
// news feed and returns the highest-ranked tradeable buy candidate,
// ordered by confidence, then impact, then urgency.
func rankGlobalCandidate(ctx context.Context, in Input) (globalCandidate, string, bool) {
	if in.FetchGlobalNews == nil || in.AnalyzeNews == nil {
		return globalCandidate{}, "news sources unavailable", false
	}
	articles, err := in.FetchGlobalNews(ctx)
	if err != nil || len(articles) == 0 {
		return globalCandidate{}, "no global news available", false
	}

	seen := make(map[string]bool)
	var candidates []globalCandidate
	for _, art := range articles {
		analysis := in.AnalyzeNews(ctx, "", []models.Article{art})
		if analysis.Signal != models.Buy {
			continue
		}
		for _, ticker := range analysis.Tickers {
			if seen[ticker] {
				continue
			}
			seen[ticker] = true
			if in.IsTradeable != nil && !in.IsTradeable(ticker+"USDT") {
				continue
			}
			candidates = append(candidates, globalCandidate{ticker: ticker, analysis: analysis})
		}
	}

	if len(candidates) == 0 {
		return globalCandidate{}, "no tradeable candidate found", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].analysis, candidates[j].analysis
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if impactRank(a.Impact) != impactRank(b.Impact) {
			return impactRank(a.Impact) > impactRank(b.Impact)
		}
		return urgencyRank(a.Urgency) > urgencyRank(b.Urgency)
	})
	return candidates[0], "", true
}

func impactRank(i models.Impact) int {
	switch i {
	case models.ImpactHigh:
		return 2
	case models.ImpactMedium:
		return 1
	default:
		return 0
	}
}

func urgencyRank(u models.Urgency) int {
	switch u {
	case models.UrgencyImmediate:
		return 2
	case models.UrgencyShort:
		return 1
	default:
		return 0
	}
}


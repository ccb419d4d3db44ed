package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/spotfleet/spotfleet/internal/indicator"
	"github.com/spotfleet/spotfleet/internal/models"
)

// technicalContext bundles the indicator values every variant needs,
// computed once per Analyze call.
type technicalContext struct {
	price decimal.Decimal
	rsi   decimal.Decimal
	ema12 decimal.Decimal
	ema26 decimal.Decimal
	macd  decimal.Decimal
	macdSignal decimal.Decimal
	volatility decimal.Decimal
	bollingerMid, bollingerUpper, bollingerLower decimal.Decimal
}

func buildTechnicalContext(candles []models.Candle) (technicalContext, bool) {
	if len(candles) == 0 {
		return technicalContext{}, false
	}
	macd, signal, _ := indicator.MACD(candles)
	mid, upper, lower := indicator.BollingerBands(candles, 20, decimal.NewFromInt(2))
	return technicalContext{
		price:          candles[len(candles)-1].Close,
		rsi:            indicator.RSI(candles, 14),
		ema12:          indicator.EMA(candles, 12),
		ema26:          indicator.EMA(candles, 26),
		macd:           macd,
		macdSignal:     signal,
		volatility:     indicator.Volatility(candles),
		bollingerMid:   mid,
		bollingerUpper: upper,
		bollingerLower: lower,
	}, true
}

func hold(reason string) models.Signal {
	return models.Signal{Action: models.Hold, Confidence: 0, Reasoning: reason}
}

// volatileStrategy trades breakouts from Bollinger band extremes,
// sized for high-volatility pairs.
type volatileStrategy struct{}

func (volatileStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	if in.Position == nil {
		if tc.price.LessThan(tc.bollingerLower) && tc.volatility.GreaterThan(decimal.NewFromFloat(0.5)) {
			return models.Signal{Action: models.Buy, Confidence: 65, Reasoning: "price below lower band with elevated volatility"}
		}
		return hold("no breakout below lower band")
	}

	if tc.price.GreaterThan(tc.bollingerUpper) {
		return models.Signal{Action: models.Sell, Confidence: 60, Reasoning: "price above upper band, taking profit"}
	}
	return hold("holding within bands")
}

// meanReversionStrategy fades moves away from the Bollinger midline.
type meanReversionStrategy struct{}

func (meanReversionStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	if in.Position == nil {
		if tc.rsi.LessThan(decimal.NewFromInt(30)) && tc.price.LessThan(tc.bollingerLower) {
			return models.Signal{Action: models.Buy, Confidence: 70, Reasoning: "oversold and below lower band"}
		}
		return hold("not oversold")
	}

	if tc.rsi.GreaterThan(decimal.NewFromInt(70)) || tc.price.GreaterThan(tc.bollingerMid) {
		return models.Signal{Action: models.Sell, Confidence: 55, Reasoning: "reverted to mean or overbought"}
	}
	return hold("mean reversion target not reached")
}

// breakoutStrategy enters on EMA-confirmed upside breaks, exits on
// trend reversal.
type breakoutStrategy struct{}

func (breakoutStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	if in.Position == nil {
		if tc.ema12.GreaterThan(tc.ema26) && tc.price.GreaterThan(tc.bollingerUpper) {
			return models.Signal{Action: models.Buy, Confidence: 72, Reasoning: "breakout above upper band with bullish EMA cross"}
		}
		return hold("no confirmed breakout")
	}

	if tc.ema12.LessThan(tc.ema26) {
		return models.Signal{Action: models.Sell, Confidence: 58, Reasoning: "EMA trend reversal"}
	}
	return hold("trend intact")
}

// conservativeStrategy only enters on strongly confirmed setups and
// exits at the first sign of weakness.
type conservativeStrategy struct{}

func (conservativeStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	if in.Position == nil {
		if tc.rsi.GreaterThan(decimal.NewFromInt(45)) && tc.rsi.LessThan(decimal.NewFromInt(60)) &&
			tc.ema12.GreaterThan(tc.ema26) && tc.macd.GreaterThan(tc.macdSignal) {
			return models.Signal{Action: models.Buy, Confidence: 68, Reasoning: "confirmed uptrend, neutral RSI"}
		}
		return hold("setup not strongly confirmed")
	}

	if tc.macd.LessThan(tc.macdSignal) || tc.rsi.GreaterThan(decimal.NewFromInt(75)) {
		return models.Signal{Action: models.Sell, Confidence: 60, Reasoning: "momentum fading, exiting early"}
	}
	return hold("position intact")
}

// simpleProfitableStrategy is a minimal RSI/EMA crossover with no
// frills, kept as a baseline comparator.
type simpleProfitableStrategy struct{}

func (simpleProfitableStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	if in.Position == nil {
		if tc.rsi.LessThan(decimal.NewFromInt(50)) && tc.ema12.GreaterThan(tc.ema26) {
			return models.Signal{Action: models.Buy, Confidence: 55, Reasoning: "RSI below midline with bullish EMA"}
		}
		return hold("no edge detected")
	}

	if tc.rsi.GreaterThan(decimal.NewFromInt(65)) {
		return models.Signal{Action: models.Sell, Confidence: 52, Reasoning: "RSI overbought"}
	}
	return hold("no exit signal")
}

// enhancedStrategy blends MACD, RSI, and Bollinger bands and allows
// scale-ins on continued strength.
type enhancedStrategy struct{}

func (enhancedStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	bullish := tc.macd.GreaterThan(tc.macdSignal) && tc.rsi.GreaterThan(decimal.NewFromInt(50)) && tc.rsi.LessThan(decimal.NewFromInt(75))

	if in.Position == nil {
		if bullish && tc.price.GreaterThan(tc.bollingerMid) {
			return models.Signal{Action: models.Buy, Confidence: 74, Reasoning: "MACD and RSI confluence above midline"}
		}
		return hold("no confluence")
	}

	if bullish && tc.price.LessThan(tc.bollingerUpper) {
		return models.Signal{Action: models.Buy, Confidence: 70, Reasoning: "continued strength, scaling in", AllowScaleIn: true}
	}
	if !bullish {
		return models.Signal{Action: models.Sell, Confidence: 62, Reasoning: "confluence broke down"}
	}
	return hold("holding position")
}

// momentumStrategy rides strong EMA/RSI momentum and exits on
// reversal, mirroring a classic trend-following rule set.
type momentumStrategy struct{}

func (momentumStrategy) Analyze(_ context.Context, in Input) models.Signal {
	tc, ok := buildTechnicalContext(in.Candles)
	if !ok {
		return hold("no candle data")
	}

	if in.Position == nil {
		if tc.rsi.GreaterThan(decimal.NewFromInt(50)) && tc.rsi.LessThan(decimal.NewFromInt(80)) &&
			tc.ema12.GreaterThan(tc.ema26.Mul(decimal.NewFromFloat(1.01))) {
			return models.Signal{Action: models.Buy, Confidence: 75, Reasoning: "strong bullish momentum"}
		}
		if tc.rsi.GreaterThan(decimal.NewFromInt(70)) {
			return models.Signal{Action: models.Buy, Confidence: 60, Reasoning: "overbought but strong momentum"}
		}
		return hold("no momentum signal")
	}

	if tc.rsi.GreaterThan(decimal.NewFromInt(85)) {
		return models.Signal{Action: models.Sell, Confidence: 65, Reasoning: "overbought, taking profits"}
	}
	if tc.ema12.LessThan(tc.ema26) {
		return models.Signal{Action: models.Sell, Confidence: 58, Reasoning: "trend reversal detected"}
	}
	return hold("momentum intact")
}

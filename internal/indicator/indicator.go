// Package indicator computes the technical indicators the strategy
// variants blend into trading decisions. Every function is pure and
// allocation-light: given a candle slice it returns a value, nothing
// more.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/spotfleet/spotfleet/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// RSI computes the relative strength index over the last period
// candles. Fewer than period+1 candles yields the neutral value 50.
func RSI(candles []models.Candle, period int) decimal.Decimal {
	if len(candles) < period+1 {
		return decimal.NewFromInt(50)
	}

	gains, losses := decimal.Zero, decimal.Zero
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close.Sub(candles[i-1].Close)
		if change.IsPositive() {
			gains = gains.Add(change)
		} else {
			losses = losses.Sub(change)
		}
	}

	periodD := decimal.NewFromInt(int64(period))
	avgGain := gains.Div(periodD)
	avgLoss := losses.Div(periodD)

	if avgLoss.IsZero() {
		return hundred
	}

	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// EMA computes the exponential moving average over period candles,
// seeded from the simple close at index period-1.
func EMA(candles []models.Candle, period int) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	if len(candles) < period {
		return candles[len(candles)-1].Close
	}

	k := two.Div(decimal.NewFromInt(int64(period + 1)))
	ema := candles[period-1].Close

	for i := period; i < len(candles); i++ {
		ema = candles[i].Close.Mul(k).Add(ema.Mul(decimal.NewFromInt(1).Sub(k)))
	}
	return ema
}

// MACD returns the MACD line, its signal line, and their histogram
// using the standard 12/26/9 periods.
func MACD(candles []models.Candle) (macd, signal, histogram decimal.Decimal) {
	ema12 := EMA(candles, 12)
	ema26 := EMA(candles, 26)
	macd = ema12.Sub(ema26)
	// The signal line is the 9-period EMA of the MACD line itself, so
	// the MACD value is taken at every prefix of candles.
	series := make([]models.Candle, len(candles))
	for i := range candles {
		prefix := candles[:i+1]
		series[i] = models.Candle{Close: EMA(prefix, 12).Sub(EMA(prefix, 26))}
	}
	signal = EMA(series, 9)
	histogram = macd.Sub(signal)
	return
}

// BollingerBands returns the middle (SMA), upper, and lower bands
// over period candles at numStdDev standard deviations.
func BollingerBands(candles []models.Candle, period int, numStdDev decimal.Decimal) (mid, upper, lower decimal.Decimal) {
	if len(candles) < period {
		period = len(candles)
	}
	if period == 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	window := candles[len(candles)-period:]
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c.Close)
	}
	periodD := decimal.NewFromInt(int64(period))
	mid = sum.Div(periodD)

	variance := decimal.Zero
	for _, c := range window {
		diff := c.Close.Sub(mid)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(periodD)
	stdDev := sqrt(variance)

	band := stdDev.Mul(numStdDev)
	upper = mid.Add(band)
	lower = mid.Sub(band)
	return
}

// Volatility returns the variance of simple returns across candles,
// expressed as a percentage.
func Volatility(candles []models.Candle) decimal.Decimal {
	if len(candles) < 2 {
		return decimal.Zero
	}

	returns := make([]decimal.Decimal, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev.IsZero() {
			continue
		}
		ret := candles[i].Close.Sub(prev).Div(prev)
		returns = append(returns, ret)
	}
	if len(returns) == 0 {
		return decimal.Zero
	}

	mean := decimal.Zero
	for _, r := range returns {
		mean = mean.Add(r)
	}
	mean = mean.Div(decimal.NewFromInt(int64(len(returns))))

	variance := decimal.Zero
	for _, r := range returns {
		diff := r.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(returns))))
	return variance.Mul(hundred)
}

// VolumeSMA returns the simple moving average of volume over the last
// period candles.
func VolumeSMA(candles []models.Candle, period int) decimal.Decimal {
	if len(candles) < period {
		period = len(candles)
	}
	if period == 0 {
		return decimal.Zero
	}
	window := candles[len(candles)-period:]
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c.Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// sqrt computes a decimal square root via Newton's method; decimal has
// no native Sqrt, and indicators only need a handful of iterations to
// converge to float64-grade precision.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}
	x := d
	for i := 0; i < 30; i++ {
		if x.IsZero() {
			break
		}
		x = x.Add(d.Div(x)).Div(two)
	}
	return x
}

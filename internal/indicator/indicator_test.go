package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/spotfleet/spotfleet/internal/models"
)

func candlesFromCloses(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Close: decimal.NewFromFloat(c), Volume: decimal.NewFromFloat(100)}
	}
	return out
}

func TestRSI_InsufficientDataReturnsNeutral(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3)
	got := RSI(candles, 14)
	assert.True(t, decimal.NewFromInt(50).Equal(got))
}

func TestRSI_AllGainsReturns100(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	got := RSI(candles, 4)
	assert.True(t, decimal.NewFromInt(100).Equal(got))
}

func TestEMA_ShortSeriesReturnsLastClose(t *testing.T) {
	candles := candlesFromCloses(10, 20)
	got := EMA(candles, 5)
	assert.True(t, decimal.NewFromInt(20).Equal(got))
}

func TestBollingerBands_FlatSeriesHasZeroWidth(t *testing.T) {
	candles := candlesFromCloses(100, 100, 100, 100, 100)
	mid, upper, lower := BollingerBands(candles, 5, decimal.NewFromInt(2))
	assert.True(t, decimal.NewFromInt(100).Equal(mid))
	assert.True(t, upper.Equal(mid))
	assert.True(t, lower.Equal(mid))
}

func TestVolatility_ConstantPricesIsZero(t *testing.T) {
	candles := candlesFromCloses(50, 50, 50, 50)
	got := Volatility(candles)
	assert.True(t, got.IsZero())
}

func TestVolumeSMA(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3)
	got := VolumeSMA(candles, 3)
	assert.True(t, decimal.NewFromInt(100).Equal(got))
}

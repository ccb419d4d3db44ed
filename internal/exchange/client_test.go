package exchange

import (
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestQuantize(t *testing.T) {
	cases := []struct {
		qty, step, want string
	}{
		{"1.23456789", "0.00001", "1.23456"},
		{"0.1", "1", "0"},
		{"10", "0", "10"},
	}
	for _, c := range cases {
		qty, _ := decimal.NewFromString(c.qty)
		step, _ := decimal.NewFromString(c.step)
		want, _ := decimal.NewFromString(c.want)
		got := Quantize(qty, step)
		assert.True(t, want.Equal(got), "Quantize(%s, %s) = %s, want %s", c.qty, c.step, got, want)
	}
}

func TestClassifyOrderError(t *testing.T) {
	insufficient := &binance.APIError{Code: -2010, Message: "account has insufficient balance"}
	assert.ErrorIs(t, classifyOrderError(insufficient), ErrInsufficientFunds)

	minNotional := &binance.APIError{Code: -1013, Message: "filter failure: NOTIONAL"}
	assert.ErrorIs(t, classifyOrderError(minNotional), ErrBelowMinNotional)

	other := &binance.APIError{Code: -1100, Message: "illegal characters"}
	assert.Equal(t, other, classifyOrderError(other))
}

func TestToOrderResult(t *testing.T) {
	resp := &binance.CreateOrderResponse{
		OrderID:                  42,
		Symbol:                   "BTCUSDT",
		Side:                     binance.SideTypeBuy,
		ExecutedQuantity:         "0.5",
		CummulativeQuoteQuantity: "15000",
		Status:                   binance.OrderStatusTypeFilled,
	}
	res, err := toOrderResult(resp)
	assert.NoError(t, err)
	assert.Equal(t, "42", res.OrderID)
	assert.True(t, decimal.RequireFromString("30000").Equal(res.AvgFillPrice))
}

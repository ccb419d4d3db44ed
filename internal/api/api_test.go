package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotfleet/spotfleet/internal/fleet"
	"github.com/spotfleet/spotfleet/internal/models"
)

type fakeExchange struct {
	price decimal.Decimal
}

func (f *fakeExchange) GetBalances(ctx context.Context) ([]models.Balance, error) { return nil, nil }
func (f *fakeExchange) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, nil
}
func (f *fakeExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) GetSymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	return models.SymbolInfo{Symbol: symbol, Tradeable: true}, nil
}
func (f *fakeExchange) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (models.OrderResult, error) {
	return models.OrderResult{}, nil
}
func (f *fakeExchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (models.OrderResult, error) {
	return models.OrderResult{}, nil
}

func newTestServer(t *testing.T) (*Server, *fleet.Supervisor) {
	t.Helper()
	ex := &fakeExchange{price: decimal.NewFromInt(65000)}
	sup := fleet.New(fleet.Config{
		DataDir:  t.TempDir(),
		Exchange: ex,
		Logger:   logrus.New(),
	})
	s := New(Config{Supervisor: sup, Exchange: ex, DataDir: t.TempDir(), Logger: logrus.New()})
	return s, sup
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleOverview_EmptyFleet(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/overview", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp overviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Bots)
}

func TestHandleCreateBot_RejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/bots", createBotRequest{Name: "a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.Code)
}

func TestHandleCreateBot_ThenStartThenStop(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/bots", createBotRequest{
		Name:                 "momentum-btc",
		Symbol:               "BTCUSDT",
		StrategyKind:         string(models.StrategyTechnicalMomentum),
		AllocatedCapitalUSDT: decimal.NewFromInt(500),
		TradeAmountUSDT:      decimal.NewFromInt(100),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var bot models.Bot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bot))
	assert.Equal(t, models.StatusStopped, bot.Status)

	startPath := "/api/bots/" + itoa(bot.ID) + "/start"
	rec = doJSON(t, s.Handler(), http.MethodPost, startPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, startPath, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	stopPath := "/api/bots/" + itoa(bot.ID) + "/stop"
	rec = doJSON(t, s.Handler(), http.MethodPost, stopPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDeleteBot_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodDelete, "/api/bots/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCoin_JoinsRegistryAndLivePrice(t *testing.T) {
	s, sup := newTestServer(t)
	_, err := sup.CreateBot(models.CreateBotSpec{
		Name: "btc-bot", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum,
	})
	require.NoError(t, err)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/coin/BTC", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp coinResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BTC", resp.Asset)
	assert.Len(t, resp.ManagingBots, 1)
	assert.Equal(t, "65000", resp.Price)
}

func TestHandleBotLogs_EmptyForFreshBot(t *testing.T) {
	s, sup := newTestServer(t)
	bot, err := sup.CreateBot(models.CreateBotSpec{Name: "a", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum})
	require.NoError(t, err)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/bots/"+itoa(bot.ID)+"/logs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

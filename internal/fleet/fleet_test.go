package fleet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotfleet/spotfleet/internal/models"
)

type fakeExchange struct {
	balances []models.Balance
	symbols  map[string]models.SymbolInfo
	prices   map[string]decimal.Decimal
}

func (f *fakeExchange) GetBalances(ctx context.Context) ([]models.Balance, error) {
	return f.balances, nil
}

func (f *fakeExchange) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := f.prices[symbol]; ok {
		return p, nil
	}
	return decimal.NewFromInt(1), nil
}

func (f *fakeExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) GetSymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	if info, ok := f.symbols[symbol]; ok {
		return info, nil
	}
	return models.SymbolInfo{Symbol: symbol, Tradeable: false}, nil
}

func (f *fakeExchange) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (models.OrderResult, error) {
	return models.OrderResult{}, nil
}

func (f *fakeExchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (models.OrderResult, error) {
	return models.OrderResult{}, nil
}

func newTestSupervisor(t *testing.T, ex *fakeExchange) *Supervisor {
	t.Helper()
	return New(Config{
		DataDir:  t.TempDir(),
		Exchange: ex,
		Logger:   logrus.New(),
	})
}

func TestCreateBot_AssignsSequentialIDs(t *testing.T) {
	s := newTestSupervisor(t, &fakeExchange{})

	b1, err := s.CreateBot(models.CreateBotSpec{Name: "a", Symbol: "btcusdt", StrategyKind: models.StrategyTechnicalMomentum})
	require.NoError(t, err)
	b2, err := s.CreateBot(models.CreateBotSpec{Name: "b", Symbol: "ethusdt", StrategyKind: models.StrategyTechnicalMomentum})
	require.NoError(t, err)

	assert.NotEqual(t, b1.ID, b2.ID)
	assert.Equal(t, "BTCUSDT", b1.Symbol, "symbol is normalized to uppercase")
	assert.Equal(t, models.StatusStopped, b1.Status)
}

func TestReserve_CannotExceedAllocatedCapital(t *testing.T) {
	s := newTestSupervisor(t, &fakeExchange{})
	bot, err := s.CreateBot(models.CreateBotSpec{
		Name: "a", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum,
		AllocatedCapitalUSDT: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	reserved, ok := s.Reserve(bot.ID, decimal.NewFromInt(80))
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(80).Equal(reserved))

	reserved2, ok2 := s.Reserve(bot.ID, decimal.NewFromInt(80))
	require.True(t, ok2)
	assert.True(t, decimal.NewFromInt(20).Equal(reserved2), "second reserve must be capped to remaining spare")

	_, ok3 := s.Reserve(bot.ID, decimal.NewFromInt(1))
	assert.False(t, ok3, "fully committed bot must reject further reservations")
}

func TestReserveRelease_RoundTripRestoresSpare(t *testing.T) {
	s := newTestSupervisor(t, &fakeExchange{})
	bot, err := s.CreateBot(models.CreateBotSpec{
		Name: "a", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum,
		AllocatedCapitalUSDT: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	reserved, ok := s.Reserve(bot.ID, decimal.NewFromInt(100))
	require.True(t, ok)
	s.Release(bot.ID, reserved)

	reserved2, ok2 := s.Reserve(bot.ID, decimal.NewFromInt(100))
	require.True(t, ok2)
	assert.True(t, decimal.NewFromInt(100).Equal(reserved2))
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestSupervisor(t, &fakeExchange{
		symbols: map[string]models.SymbolInfo{"BTCUSDT": {Symbol: "BTCUSDT", Tradeable: true}},
	})
	bot, err := s.CreateBot(models.CreateBotSpec{Name: "a", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum})
	require.NoError(t, err)

	require.NoError(t, s.Start(bot.ID))
	assert.ErrorIs(t, s.Start(bot.ID), ErrBotAlreadyRunning)

	got, ok := s.Bot(bot.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusRunning, got.Status)

	require.NoError(t, s.Stop(bot.ID))
	assert.ErrorIs(t, s.Stop(bot.ID), ErrBotNotRunning)

	got, ok = s.Bot(bot.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusStopped, got.Status)
}

func TestDelete_RefusesWhileRunning(t *testing.T) {
	s := newTestSupervisor(t, &fakeExchange{
		symbols: map[string]models.SymbolInfo{"BTCUSDT": {Symbol: "BTCUSDT", Tradeable: true}},
	})
	bot, err := s.CreateBot(models.CreateBotSpec{Name: "a", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum})
	require.NoError(t, err)
	require.NoError(t, s.Start(bot.ID))

	assert.Error(t, s.Delete(bot.ID))

	require.NoError(t, s.Stop(bot.ID))
	assert.NoError(t, s.Delete(bot.ID))
}

func TestReconcile_AdoptsOrphanAsStoppedBot(t *testing.T) {
	ex := &fakeExchange{
		balances: []models.Balance{{Asset: "SOL", Free: decimal.NewFromInt(5)}},
		symbols:  map[string]models.SymbolInfo{"SOLUSDT": {Symbol: "SOLUSDT", Tradeable: true}},
		prices:   map[string]decimal.Decimal{"SOLUSDT": decimal.NewFromInt(150)},
	}
	s := newTestSupervisor(t, ex)

	require.NoError(t, s.Reconcile(context.Background()))

	snap := s.Snapshot()
	require.Len(t, snap.Bots, 1)
	assert.Equal(t, "Auto-Manager: SOL", snap.Bots[0].Name)
	assert.Equal(t, models.StatusStopped, snap.Bots[0].Status)
	assert.Equal(t, models.StrategyNewsAutonomous, snap.Bots[0].StrategyKind)
}

func TestReconcile_SkipsStablecoinsAndCoveredSymbols(t *testing.T) {
	ex := &fakeExchange{
		balances: []models.Balance{
			{Asset: "USDT", Free: decimal.NewFromInt(1000)},
			{Asset: "BTC", Free: decimal.NewFromFloat(0.1)},
		},
		symbols: map[string]models.SymbolInfo{"BTCUSDT": {Symbol: "BTCUSDT", Tradeable: true}},
	}
	s := newTestSupervisor(t, ex)
	_, err := s.CreateBot(models.CreateBotSpec{Name: "existing", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum})
	require.NoError(t, err)

	require.NoError(t, s.Reconcile(context.Background()))

	snap := s.Snapshot()
	assert.Len(t, snap.Bots, 1, "USDT is a stablecoin and BTCUSDT is already covered")
}

func TestEditSymbol_RefusesWhilePositionHeld(t *testing.T) {
	s := newTestSupervisor(t, &fakeExchange{})
	bot, err := s.CreateBot(models.CreateBotSpec{
		Name: "a", Symbol: "BTCUSDT", StrategyKind: models.StrategyTechnicalMomentum,
		AllocatedCapitalUSDT: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, ok := s.Reserve(bot.ID, decimal.NewFromInt(50))
	require.True(t, ok)

	_, err = s.EditSymbol(bot.ID, "ETHUSDT")
	assert.ErrorIs(t, err, ErrSymbolLocked)
}

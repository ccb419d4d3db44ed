// Package models holds the shared value types for the bot registry,
// positions, signals, and log records that flow between the fleet
// supervisor, workers, and strategies.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a bot.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// StrategyKind names one of the closed set of strategy variants a bot
// can run (see internal/strategy).
type StrategyKind string

const (
	StrategyTechnicalVolatile         StrategyKind = "technical_volatile"
	StrategyTechnicalMeanReversion    StrategyKind = "technical_mean_reversion"
	StrategyTechnicalBreakout         StrategyKind = "technical_breakout"
	StrategyTechnicalConservative     StrategyKind = "technical_conservative"
	StrategyTechnicalSimpleProfitable StrategyKind = "technical_simple_profitable"
	StrategyTechnicalEnhanced         StrategyKind = "technical_enhanced"
	StrategyTechnicalMomentum         StrategyKind = "technical_momentum"
	StrategyTickerNews                StrategyKind = "ticker_news"
	StrategyNewsAutonomous            StrategyKind = "news_autonomous"
)

// Bot is a registry entry: one bot permanently bound to a trading pair,
// running one strategy, owning at most one long position.
type Bot struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	Symbol               string          `json:"symbol"`
	StrategyKind         StrategyKind    `json:"strategy_kind"`
	AllocatedCapitalUSDT decimal.Decimal `json:"allocated_capital_usdt"`
	TradeAmountUSDT      decimal.Decimal `json:"trade_amount_usdt"`
	Status               Status          `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`

	// CommittedUSDT is the portion of AllocatedCapitalUSDT currently
	// reserved by an in-flight or filled buy. Not persisted: recomputed
	// at boot from the bot's position, see fleet.Supervisor.recomputeCommittedLocked.
	CommittedUSDT decimal.Decimal `json:"-"`
}

// Clone returns a deep copy safe to hand to callers outside the registry lock.
func (b *Bot) Clone() *Bot {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// CreateBotSpec is the input to Supervisor.CreateBot.
type CreateBotSpec struct {
	Name                 string
	Symbol               string
	StrategyKind         StrategyKind
	AllocatedCapitalUSDT decimal.Decimal
	TradeAmountUSDT      decimal.Decimal
}

// EditBotPatch is the input to Supervisor.Edit. Zero/nil fields are left
// unchanged. Symbol is intentionally omitted: changing a bot's symbol
// goes through a dedicated path that checks the position-lock invariant.
type EditBotPatch struct {
	Name                 *string
	StrategyKind         *StrategyKind
	AllocatedCapitalUSDT *decimal.Decimal
	TradeAmountUSDT      *decimal.Decimal
}

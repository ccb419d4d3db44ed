package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBot_Clone_IsIndependentCopy(t *testing.T) {
	b := &Bot{ID: 1, Name: "Alpha", AllocatedCapitalUSDT: decimal.NewFromInt(100)}
	clone := b.Clone()
	clone.Name = "Beta"
	clone.AllocatedCapitalUSDT = decimal.NewFromInt(999)

	assert.Equal(t, "Alpha", b.Name)
	assert.True(t, decimal.NewFromInt(100).Equal(b.AllocatedCapitalUSDT))
	assert.Equal(t, "Beta", clone.Name)
}

func TestBot_Clone_NilReceiverReturnsNil(t *testing.T) {
	var b *Bot
	assert.Nil(t, b.Clone())
}

package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotfleet/spotfleet/internal/models"
)

func TestRegistryStore_LoadOnEmptyStartsNextIDAtOne(t *testing.T) {
	s := NewRegistryStore(t.TempDir())

	bots, nextID, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, bots)
	assert.Equal(t, int64(1), nextID)
}

func TestRegistryStore_SaveLoadRoundTrips(t *testing.T) {
	s := NewRegistryStore(t.TempDir())

	bots := []*models.Bot{
		{ID: 1, Name: "Alpha", Symbol: "BTCUSDT", AllocatedCapitalUSDT: decimal.NewFromInt(100)},
		{ID: 2, Name: "Beta", Symbol: "ETHUSDT", AllocatedCapitalUSDT: decimal.NewFromInt(200)},
	}
	require.NoError(t, s.Save(bots, 3))

	got, nextID, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, "Beta", got[1].Name)
	assert.Equal(t, int64(3), nextID)
}

func TestRegistryStore_SaveOverwritesPreviousRegistry(t *testing.T) {
	s := NewRegistryStore(t.TempDir())

	require.NoError(t, s.Save([]*models.Bot{{ID: 1, Name: "Old"}}, 2))
	require.NoError(t, s.Save([]*models.Bot{{ID: 5, Name: "New"}}, 6))

	got, nextID, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "New", got[0].Name)
	assert.Equal(t, int64(6), nextID)
}

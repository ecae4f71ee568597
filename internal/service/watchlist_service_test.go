package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatchlist(store *countingStore) *WatchlistService {
	svc := NewWatchlistService(store, logging.NewNopLogger())
	svc.retryCfg = fastRetry()
	return svc
}

func TestWatchlistService_AddIsIdempotent(t *testing.T) {
	store := newCountingStore()
	svc := newTestWatchlist(store)
	ctx := context.Background()

	item, added, err := svc.Add(ctx, "tsla", "Tesla Inc.")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "TSLA", item.Symbol)
	assert.False(t, item.AddedAt.IsZero())

	_, added, err = svc.Add(ctx, "TSLA", "")
	require.NoError(t, err)
	assert.False(t, added)

	_, _, err = svc.Add(ctx, "NVDA", "")
	require.NoError(t, err)

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, "TSLA", list[0].Symbol)
	assert.Equal(t, "NVDA", list[1].Symbol)
	assert.Equal(t, "NVDA", list[1].CompanyName)
	assert.Equal(t, int64(2), store.writes.Load())
}

func TestWatchlistService_Remove(t *testing.T) {
	store := newCountingStore()
	svc := newTestWatchlist(store)
	ctx := context.Background()

	_, _, err := svc.Add(ctx, "TSLA", "")
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, "NOPE")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, int64(1), store.writes.Load())

	removed, err = svc.Remove(ctx, "tsla")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, svc.Contains("TSLA"))
	assert.Equal(t, int64(2), store.writes.Load())

	_, err = svc.Remove(ctx, " ")
	assert.Error(t, err)
}

func TestWatchlistService_LoadRoundTripAndDedupe(t *testing.T) {
	store := newCountingStore()
	ctx := context.Background()

	raw, err := json.Marshal([]models.WatchlistItem{
		{Symbol: "tsla", CompanyName: "Tesla"},
		{Symbol: "TSLA", CompanyName: "Tesla again"},
		{Symbol: "", CompanyName: "blank"},
		{Symbol: "NVDA", CompanyName: "NVIDIA"},
	})
	require.NoError(t, err)
	require.NoError(t, store.MemoryStore.Write(ctx, types.KeyWatchlist, raw))

	svc := newTestWatchlist(store)
	require.NoError(t, svc.Load(ctx))

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, "TSLA", list[0].Symbol)
	assert.Equal(t, "Tesla", list[0].CompanyName)
	assert.True(t, svc.Contains("nvda"))
}

func TestWatchlistService_LoadCorrupt(t *testing.T) {
	store := newCountingStore()
	require.NoError(t, store.MemoryStore.Write(context.Background(), types.KeyWatchlist, []byte("[not json")))

	svc := newTestWatchlist(store)
	require.NoError(t, svc.Load(context.Background()))
	assert.Empty(t, svc.List())
}

func TestWatchlistService_PersistFailureKeepsMemory(t *testing.T) {
	store := newCountingStore()
	store.failing.Store(true)
	svc := newTestWatchlist(store)

	_, added, err := svc.Add(context.Background(), "TSLA", "")
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, svc.Contains("TSLA"))
}

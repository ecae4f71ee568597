package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// exerciseStore runs the behaviour every KeyValueStore must share
func exerciseStore(t *testing.T, store KeyValueStore) {
	t.Helper()
	ctx := testContext(t)

	_, found, err := store.Read(ctx, "portfolio")
	require.NoError(t, err)
	assert.False(t, found, "absent key must report not found")

	require.NoError(t, store.Write(ctx, "portfolio", []byte(`[{"symbol":"AAPL"}]`)))
	data, found, err := store.Read(ctx, "portfolio")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `[{"symbol":"AAPL"}]`, string(data))

	// last writer wins
	require.NoError(t, store.Write(ctx, "portfolio", []byte(`[]`)))
	data, _, err = store.Read(ctx, "portfolio")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	// keys are independent
	_, found, err = store.Read(ctx, "watchlist")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := testContext(t)

	payload := []byte("abc")
	require.NoError(t, store.Write(ctx, "k", payload))
	payload[0] = 'z'

	got, _, err := store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'z'
	again, _, _ := store.Read(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Write(ctx, "k", []byte("v")))
	_, _, err := store.Read(ctx, "k")
	assert.Error(t, err)
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stock-tracker/internal/adapter"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/retry"
	"github.com/stock-tracker/internal/storage"
	"github.com/stock-tracker/internal/types"
)

// mockQuotes serves fixed prices; unknown symbols are not found
type mockQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func newMockQuotes(prices map[string]float64) *mockQuotes {
	return &mockQuotes{prices: prices, errs: map[string]error{}, calls: map[string]int{}}
}

func (m *mockQuotes) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[symbol]++
	if err, ok := m.errs[symbol]; ok {
		return nil, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return nil, apperrors.NewSymbolNotFoundError("mock", symbol)
	}
	return &models.Quote{Symbol: symbol, Price: price, FetchedAt: time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)}, nil
}

// nilQuotes answers with neither a quote nor an error
type nilQuotes struct{}

func (nilQuotes) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, nil
}

func (m *mockQuotes) setPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *mockQuotes) callCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// mockCandles records the window it was asked for
type mockCandles struct {
	mu         sync.Mutex
	candles    []models.Candle
	err        error
	resolution types.Resolution
	from, to   time.Time
}

func (m *mockCandles) GetCandles(ctx context.Context, symbol string, resolution types.Resolution, from, to time.Time) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolution, m.from, m.to = resolution, from, to
	if m.err != nil {
		return nil, m.err
	}
	return m.candles, nil
}

type mockSearcher struct {
	stocks []models.Stock
}

func (m *mockSearcher) SearchSymbols(ctx context.Context, query string) ([]models.Stock, error) {
	var out []models.Stock
	for _, s := range m.stocks {
		if strings.Contains(strings.ToLower(s.Description), strings.ToLower(query)) {
			out = append(out, s)
		}
	}
	return out, nil
}

// countingStore wraps a MemoryStore and can be told to fail writes
type countingStore struct {
	*storage.MemoryStore
	writes  atomic.Int64
	failing atomic.Bool
	readErr error
}

var errStoreDown = errors.New("store unavailable")

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore()}
}

func (c *countingStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if c.readErr != nil {
		return nil, false, c.readErr
	}
	return c.MemoryStore.Read(ctx, key)
}

func (c *countingStore) Write(ctx context.Context, key string, data []byte) error {
	c.writes.Add(1)
	if c.failing.Load() {
		return errStoreDown
	}
	return c.MemoryStore.Write(ctx, key, data)
}

// countingTrigger counts refresh requests
type countingTrigger struct {
	n atomic.Int64
}

func (c *countingTrigger) Trigger() { c.n.Add(1) }

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func newTestPortfolio(store storage.KeyValueStore, quotes adapter.QuoteProvider) *PortfolioService {
	svc := NewPortfolioService(store, quotes, logging.NewNopLogger())
	svc.retryCfg = fastRetry()
	return svc
}

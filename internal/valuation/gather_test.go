package valuation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stock-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	calls    map[string]int
	delays   map[string]time.Duration
	failures map[string]error
	prices   map[string]float64

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:    make(map[string]int),
		delays:   make(map[string]time.Duration),
		failures: make(map[string]error),
		prices:   make(map[string]float64),
	}
}

func (f *fakeSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[symbol]++
	delay := f.delays[symbol]
	err := f.failures[symbol]
	price := f.prices[symbol]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &models.Quote{Symbol: symbol, Price: price}, nil
}

func TestGather_PreservesInputOrder(t *testing.T) {
	src := newFakeSource()
	src.prices = map[string]float64{"AAPL": 180, "MSFT": 410, "TSLA": 250}
	// first symbol finishes last
	src.delays["AAPL"] = 30 * time.Millisecond
	src.delays["MSFT"] = 10 * time.Millisecond

	outcomes := Gather(context.Background(), src, []string{"AAPL", "MSFT", "TSLA"}, GatherOptions{})

	require.Len(t, outcomes, 3)
	assert.Equal(t, "AAPL", outcomes[0].Symbol)
	assert.Equal(t, "MSFT", outcomes[1].Symbol)
	assert.Equal(t, "TSLA", outcomes[2].Symbol)
	assert.Equal(t, 180.0, outcomes[0].Quote.Price)
}

func TestGather_FailureDoesNotPoisonOthers(t *testing.T) {
	src := newFakeSource()
	src.prices = map[string]float64{"AAPL": 180, "TSLA": 250}
	src.failures["MSFT"] = errors.New("connection reset")

	outcomes := Gather(context.Background(), src, []string{"AAPL", "MSFT", "TSLA"}, GatherOptions{MaxConcurrent: 2})

	assert.True(t, outcomes[0].OK())
	assert.False(t, outcomes[1].OK())
	assert.Error(t, outcomes[1].Err)
	assert.True(t, outcomes[2].OK())
}

func TestGather_LookupTimeout(t *testing.T) {
	src := newFakeSource()
	src.prices = map[string]float64{"AAPL": 180, "SLOW": 1}
	src.delays["SLOW"] = time.Second

	start := time.Now()
	outcomes := Gather(context.Background(), src, []string{"AAPL", "SLOW"}, GatherOptions{LookupTimeout: 20 * time.Millisecond})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, outcomes[0].OK())
	assert.ErrorIs(t, outcomes[1].Err, context.DeadlineExceeded)
}

func TestGather_DeduplicatesSymbols(t *testing.T) {
	src := newFakeSource()
	src.prices["AAPL"] = 180

	outcomes := Gather(context.Background(), src, []string{"AAPL", "AAPL"}, GatherOptions{})

	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, src.calls["AAPL"])
	assert.True(t, outcomes[1].OK())
}

func TestGather_RespectsConcurrencyLimit(t *testing.T) {
	src := newFakeSource()
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	for _, s := range symbols {
		src.prices[s] = 1
		src.delays[s] = 10 * time.Millisecond
	}

	Gather(context.Background(), src, symbols, GatherOptions{MaxConcurrent: 2})

	assert.LessOrEqual(t, src.maxInFlight.Load(), int32(2))
	for _, s := range symbols {
		assert.Equal(t, 1, src.calls[s])
	}
}

func TestGather_Empty(t *testing.T) {
	src := newFakeSource()
	assert.Empty(t, Gather(context.Background(), src, nil, GatherOptions{}))
}

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stock-tracker/internal/circuitbreaker"
	"github.com/stock-tracker/internal/config"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appleQuote = `{
	"Global Quote": {
		"01. symbol": "AAPL",
		"02. open": "178.1000",
		"03. high": "181.2500",
		"04. low": "177.9000",
		"05. price": "180.0000",
		"06. volume": "51234567",
		"07. latest trading day": "2024-06-03",
		"08. previous close": "177.5000",
		"09. change": "2.5000",
		"10. change percent": "1.4085%"
	}
}`

func newTestAlphaVantage(t *testing.T, handler http.HandlerFunc) *AlphaVantageClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewAlphaVantageClient(config.QuoteProviderConfig{
		APIKey:           "test-key",
		BaseURL:          srv.URL,
		Timeout:          2 * time.Second,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	})
	client.http.baseDelay = time.Millisecond
	client.now = func() time.Time { return time.Date(2024, 6, 3, 20, 0, 0, 0, time.UTC) }
	return client
}

func TestAlphaVantageClient_GetQuote(t *testing.T) {
	client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(appleQuote))
	})

	quote, err := client.GetQuote(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 180.0, quote.Price)
	assert.Equal(t, 178.1, quote.Open)
	assert.Equal(t, 181.25, quote.High)
	assert.Equal(t, 177.9, quote.Low)
	assert.Equal(t, 177.5, quote.PreviousClose)
	assert.Equal(t, 2.5, quote.Change)
	assert.InDelta(t, 1.4085, quote.ChangePercent, 1e-9)
	assert.Equal(t, int64(51234567), quote.Volume)
	assert.Equal(t, "2024-06-03", quote.AsOfDate)
	assert.Equal(t, time.Date(2024, 6, 3, 20, 0, 0, 0, time.UTC), quote.FetchedAt)
}

func TestAlphaVantageClient_FailureKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   types.FailureKind
	}{
		{"error message", http.StatusOK, `{"Error Message": "Invalid API call."}`, types.FailureSymbolNotFound},
		{"empty global quote", http.StatusOK, `{"Global Quote": {}}`, types.FailureSymbolNotFound},
		{"note", http.StatusOK, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, types.FailureRateLimited},
		{"information", http.StatusOK, `{"Information": "rate limit"}`, types.FailureRateLimited},
		{"not json", http.StatusOK, `<html>oops</html>`, types.FailureMalformedResponse},
		{"bad number", http.StatusOK, `{"Global Quote": {"01. symbol": "AAPL", "05. price": "abc"}}`, types.FailureMalformedResponse},
		{"nan price", http.StatusOK, `{"Global Quote": {"01. symbol": "AAPL", "05. price": "NaN"}}`, types.FailureMalformedResponse},
		{"infinite price", http.StatusOK, `{"Global Quote": {"01. symbol": "AAPL", "05. price": "+Inf"}}`, types.FailureMalformedResponse},
		{"zero price", http.StatusOK, `{"Global Quote": {"01. symbol": "AAPL", "05. price": "0.0000"}}`, types.FailureMalformedResponse},
		{"server error", http.StatusInternalServerError, `boom`, types.FailureNetwork},
		{"http 429", http.StatusTooManyRequests, ``, types.FailureRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			quote, err := client.GetQuote(context.Background(), "AAPL")
			require.Error(t, err)
			assert.Nil(t, quote)
			assert.Equal(t, tt.want, apperrors.LookupFailureKind(err))
		})
	}
}

func TestAlphaVantageClient_RetriesAfter429(t *testing.T) {
	var calls atomic.Int32
	client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(appleQuote))
	})

	quote, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 180.0, quote.Price)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlphaVantageClient_BreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := client.GetQuote(context.Background(), "AAPL")
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.StateOpen, client.BreakerState())
	assert.GreaterOrEqual(t, client.BreakerStats().ConsecutiveFails, 1)

	before := calls.Load()
	_, err := client.GetQuote(context.Background(), "AAPL")
	assert.Equal(t, types.FailureCircuitOpen, apperrors.LookupFailureKind(err))
	assert.Equal(t, before, calls.Load(), "open breaker must not reach the provider")
}

func TestAlphaVantageClient_UnknownSymbolsDoNotTripBreaker(t *testing.T) {
	client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Global Quote": {}}`))
	})

	for i := 0; i < 5; i++ {
		_, _ = client.GetQuote(context.Background(), "ZZZZ")
	}
	assert.Equal(t, circuitbreaker.StateClosed, client.BreakerState())
}

func TestAlphaVantageClient_Timeout(t *testing.T) {
	client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetQuote(ctx, "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.FailureNetwork, apperrors.LookupFailureKind(err))
	assert.Equal(t, circuitbreaker.StateClosed, client.BreakerState())
}

func TestAlphaVantageClient_EmptySymbol(t *testing.T) {
	client := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})

	_, err := client.GetQuote(context.Background(), "  ")
	assert.True(t, apperrors.IsUserError(err))
}

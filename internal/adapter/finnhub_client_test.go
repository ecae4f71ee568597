package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stock-tracker/internal/config"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFinnhub(t *testing.T, handler http.HandlerFunc) *FinnhubClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFinnhubClient(config.CandleProviderConfig{
		APIKey:  "fh-key",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	})
}

func TestFinnhubClient_GetCandles(t *testing.T) {
	from := time.Unix(1717000000, 0)
	to := time.Unix(1717600000, 0)

	client := newTestFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "AAPL", q.Get("symbol"))
		assert.Equal(t, "D", q.Get("resolution"))
		assert.Equal(t, "1717000000", q.Get("from"))
		assert.Equal(t, "1717600000", q.Get("to"))
		assert.Equal(t, "fh-key", q.Get("token"))
		// deliberately out of order
		_, _ = w.Write([]byte(`{
			"s": "ok",
			"t": [1717200000, 1717100000],
			"o": [2, 1],
			"h": [2.5, 1.5],
			"l": [1.9, 0.9],
			"c": [2.2, 1.2],
			"v": [2000, 1000]
		}`))
	})

	candles, err := client.GetCandles(context.Background(), "aapl", types.ResolutionDay, from, to)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1717100000), candles[0].Timestamp)
	assert.Equal(t, 1.0, candles[0].Open)
	assert.Equal(t, 1.2, candles[0].Close)
	assert.Equal(t, int64(1000), candles[0].Volume)
	assert.Equal(t, int64(1717200000), candles[1].Timestamp)
}

func TestFinnhubClient_GetCandles_NoData(t *testing.T) {
	client := newTestFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s": "no_data"}`))
	})

	candles, err := client.GetCandles(context.Background(), "AAPL", types.Resolution5Min, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestFinnhubClient_GetCandles_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"mismatched arrays", `{"s":"ok","t":[1,2],"o":[1],"h":[1,2],"l":[1,2],"c":[1,2],"v":[1,2]}`},
		{"unknown status", `{"s":"error"}`},
		{"not json", `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetCandles(context.Background(), "AAPL", types.ResolutionDay, time.Now().Add(-time.Hour), time.Now())
			require.Error(t, err)
			assert.Equal(t, types.FailureMalformedResponse, apperrors.LookupFailureKind(err))
		})
	}
}

func TestFinnhubClient_SearchSymbols(t *testing.T) {
	client := newTestFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "apple", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{
			"count": 2,
			"result": [
				{"description": "APPLE INC", "displaySymbol": "AAPL", "symbol": "AAPL", "type": "Common Stock"},
				{"description": "APPLE HOSPITALITY REIT INC", "displaySymbol": "APLE", "symbol": "APLE", "type": "REIT"}
			]
		}`))
	})

	stocks, err := client.SearchSymbols(context.Background(), " apple ")
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "AAPL", stocks[0].Symbol)
	assert.Equal(t, "APPLE INC", stocks[0].Description)
	assert.Equal(t, "Common Stock", stocks[0].Type)
}

func TestFinnhubClient_SearchSymbols_EmptyQuery(t *testing.T) {
	client := newTestFinnhub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called for an empty query")
	})

	stocks, err := client.SearchSymbols(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, stocks)
}

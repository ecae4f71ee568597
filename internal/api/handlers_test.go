package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stock-tracker/internal/format"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHolding_ThenGetPortfolio(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "POST", "/api/portfolio/holdings", map[string]interface{}{
		"symbol":        "aapl",
		"companyName":   "Apple Inc.",
		"shares":        10,
		"purchasePrice": 150,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var added HoldingResponse
	decode(t, w, &added)
	assert.Equal(t, "AAPL", added.Holding.Symbol)
	assert.Equal(t, "$1,800.00", added.Display.Value)
	assert.Equal(t, "+20.00%", added.Display.GainPercentage)
	assert.Equal(t, int64(1), env.refresher.triggers.Load())

	w = env.do(t, "GET", "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var portfolio PortfolioResponse
	decode(t, w, &portfolio)
	require.Len(t, portfolio.Holdings, 1)
	assert.InDelta(t, 1800, portfolio.Totals.TotalValue, 1e-9)
	assert.Equal(t, "$1,500.00", portfolio.Display.Totals.TotalInvestment)
	assert.Equal(t, "+$300.00", portfolio.Display.Totals.TotalGain)
}

func TestAddHolding_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"zero shares", map[string]interface{}{"symbol": "AAPL", "shares": 0, "purchasePrice": 150}, http.StatusBadRequest, "INVALID_SHARES"},
		{"bad price", map[string]interface{}{"symbol": "AAPL", "shares": 1, "purchasePrice": -5}, http.StatusBadRequest, "INVALID_PRICE"},
		{"unknown field", map[string]interface{}{"symbol": "AAPL", "qty": 1}, http.StatusBadRequest, ErrCodeInvalidInput},
		{"unknown symbol", map[string]interface{}{"symbol": "ZZZZ", "shares": 1, "purchasePrice": 1}, http.StatusUnprocessableEntity, "SYMBOL_NOT_RESOLVED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			w := env.do(t, "POST", "/api/portfolio/holdings", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body ErrorResponse
			decode(t, w, &body)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Empty(t, env.portfolio.Holdings())
		})
	}
}

func TestAddHolding_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest("POST", "/api/portfolio/holdings", bytes.NewReader([]byte("invalid json")))
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddHolding_Duplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	body := map[string]interface{}{"symbol": "AAPL", "shares": 1, "purchasePrice": 100}

	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/portfolio/holdings", body).Code)
	w := env.do(t, "POST", "/api/portfolio/holdings", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "DUPLICATE_HOLDING", resp.Error.Code)
	assert.Equal(t, "AAPL", resp.Error.Details["symbol"])
}

func TestRemoveHolding(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/portfolio/holdings",
		map[string]interface{}{"symbol": "AAPL", "shares": 1, "purchasePrice": 100}).Code)

	w := env.do(t, "DELETE", "/api/portfolio/holdings/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, true, body["removed"])

	w = env.do(t, "DELETE", "/api/portfolio/holdings/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, false, body["removed"])
}

func TestSelectHolding(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/portfolio/holdings",
		map[string]interface{}{"symbol": "AAPL", "companyName": "Apple Inc.", "shares": 1, "purchasePrice": 100}).Code)

	before := env.portfolio.Snapshot().Version

	// selecting changes state, so reads must not do it
	w := env.do(t, "GET", "/api/portfolio/holdings/aapl", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, before, env.portfolio.Snapshot().Version)

	w = env.do(t, "PUT", "/api/portfolio/holdings/aapl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stock models.Stock
	decode(t, w, &stock)
	assert.Equal(t, "Apple Inc.", stock.Description)
	assert.Equal(t, "AAPL", env.portfolio.Snapshot().SelectedSymbol)

	w = env.do(t, "PUT", "/api/portfolio/holdings/MSFT", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshAndWarnings(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "POST", "/api/portfolio/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(1), env.refresher.triggers.Load())

	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/portfolio/holdings",
		map[string]interface{}{"symbol": "AAPL", "shares": 1, "purchasePrice": 100}).Code)
	env.portfolio.CommitRefresh(t.Context(), service.RefreshResult{
		Holdings:  []models.Holding{env.portfolio.Holdings()[0].WithoutValuation()},
		Attempted: 1,
		Failed:    []string{"AAPL"},
	})
	env.portfolio.Wait()

	var portfolio PortfolioResponse
	decode(t, env.do(t, "GET", "/api/portfolio", nil), &portfolio)
	require.Len(t, portfolio.Warnings, 1)
	assert.Equal(t, format.Placeholder, portfolio.Display.Holdings[0].Value)

	w = env.do(t, "DELETE", "/api/portfolio/warnings/"+portfolio.Warnings[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "DELETE", "/api/portfolio/warnings/"+portfolio.Warnings[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWatchlistEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "POST", "/api/watchlist", map[string]string{"symbol": "tsla"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, "POST", "/api/watchlist", map[string]string{"symbol": "TSLA"})
	assert.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Items []models.WatchlistItem `json:"items"`
	}
	decode(t, env.do(t, "GET", "/api/watchlist", nil), &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "TSLA", list.Items[0].Symbol)

	w = env.do(t, "DELETE", "/api/watchlist/TSLA", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	decode(t, env.do(t, "GET", "/api/watchlist", nil), &list)
	assert.Empty(t, list.Items)

	w = env.do(t, "POST", "/api/watchlist", map[string]string{"symbol": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStockEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "GET", "/api/stocks/aapl/quote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var quote models.Quote
	decode(t, w, &quote)
	assert.Equal(t, 180.0, quote.Price)

	w = env.do(t, "GET", "/api/stocks/ZZZZ/quote", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/stocks/search?q=apple", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var search struct {
		Count   int            `json:"count"`
		Results []models.Stock `json:"results"`
	}
	decode(t, w, &search)
	assert.Equal(t, 1, search.Count)

	w = env.do(t, "GET", "/api/stocks/AAPL/chart?timeframe=1w", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chart service.Chart
	decode(t, w, &chart)
	assert.Equal(t, "1W", string(chart.Timeframe))
	assert.Len(t, chart.Candles, 2)

	w = env.do(t, "GET", "/api/stocks/AAPL/chart?timeframe=5Y", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetailEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "PUT", "/api/detail", map[string]string{"symbol": "aapl", "timeframe": "3M"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var state service.DetailViewState
	decode(t, w, &state)
	assert.Equal(t, "AAPL", state.Request.Symbol)
	assert.False(t, state.Loading)
	require.NotNil(t, state.Detail)
	assert.Equal(t, 180.0, state.Detail.Quote.Price)

	decode(t, env.do(t, "GET", "/api/detail", nil), &state)
	assert.Equal(t, "AAPL", state.Request.Symbol)

	w = env.do(t, "PUT", "/api/detail", map[string]string{"symbol": "AAPL", "timeframe": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stock-tracker/internal/config"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/types"
)

const finnhubProvider = "finnhub"

// FinnhubClient fetches historical candles and symbol search results
type FinnhubClient struct {
	apiKey  string
	baseURL string
	http    *httpGetter
}

// NewFinnhubClient creates a candle/search client from configuration
func NewFinnhubClient(cfg config.CandleProviderConfig) *FinnhubClient {
	return &FinnhubClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPGetter(finnhubProvider, cfg.Timeout, nil),
	}
}

// finnhubCandles holds the parallel arrays returned by /stock/candle
type finnhubCandles struct {
	Status string    `json:"s"`
	T      []int64   `json:"t"`
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// GetCandles returns bars for symbol between from and to, ascending by time.
// A "no_data" answer yields an empty slice.
func (c *FinnhubClient) GetCandles(ctx context.Context, symbol string, resolution types.Resolution, from, to time.Time) ([]models.Candle, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperrors.NewInvalidParameterError("symbol", "symbol is required")
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", string(resolution))
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))
	params.Set("token", c.apiKey)

	body, err := c.http.get(ctx, fmt.Sprintf("%s/stock/candle?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	return parseCandles(body)
}

func parseCandles(body []byte) ([]models.Candle, error) {
	var raw finnhubCandles
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewMalformedResponseError(finnhubProvider, err)
	}

	switch raw.Status {
	case "ok":
	case "no_data":
		return []models.Candle{}, nil
	default:
		return nil, apperrors.NewMalformedResponseError(finnhubProvider,
			fmt.Errorf("unexpected candle status %q", raw.Status))
	}

	n := len(raw.T)
	if len(raw.O) != n || len(raw.H) != n || len(raw.L) != n || len(raw.C) != n || len(raw.V) != n {
		return nil, apperrors.NewMalformedResponseError(finnhubProvider,
			fmt.Errorf("candle arrays have mismatched lengths"))
	}

	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = models.Candle{
			Timestamp: raw.T[i],
			Open:      raw.O[i],
			High:      raw.H[i],
			Low:       raw.L[i],
			Close:     raw.C[i],
			Volume:    int64(raw.V[i]),
		}
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})

	return candles, nil
}

type finnhubSearchResult struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	} `json:"result"`
}

// SearchSymbols looks up tickers matching query
func (c *FinnhubClient) SearchSymbols(ctx context.Context, query string) ([]models.Stock, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Stock{}, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("token", c.apiKey)

	body, err := c.http.get(ctx, fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var raw finnhubSearchResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewMalformedResponseError(finnhubProvider, err)
	}

	stocks := make([]models.Stock, 0, len(raw.Result))
	for _, r := range raw.Result {
		stocks = append(stocks, models.Stock{
			Symbol:        r.Symbol,
			DisplaySymbol: r.DisplaySymbol,
			Description:   r.Description,
			Type:          r.Type,
		})
	}
	return stocks, nil
}

// Package adapter contains the clients for the external market data providers.
package adapter

import (
	"context"
	"time"

	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/types"
)

// QuoteProvider returns a point-in-time price snapshot for a symbol.
// Errors are categorized provider errors carrying a types.FailureKind.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// CandleProvider returns OHLCV bars ordered ascending by timestamp
type CandleProvider interface {
	GetCandles(ctx context.Context, symbol string, resolution types.Resolution, from, to time.Time) ([]models.Candle, error)
}

// SymbolSearcher looks up tickers by symbol or company name
type SymbolSearcher interface {
	SearchSymbols(ctx context.Context, query string) ([]models.Stock, error)
}

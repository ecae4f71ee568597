package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stock-tracker/internal/adapter"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/types"
	"golang.org/x/sync/errgroup"
)

// StockService answers single-symbol market data questions
type StockService struct {
	quotes   adapter.QuoteProvider
	candles  adapter.CandleProvider
	searcher adapter.SymbolSearcher
	logger   *logging.Logger
	now      func() time.Time
}

// NewStockService creates a new stock service
func NewStockService(quotes adapter.QuoteProvider, candles adapter.CandleProvider, searcher adapter.SymbolSearcher, logger *logging.Logger) *StockService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &StockService{
		quotes:   quotes,
		candles:  candles,
		searcher: searcher,
		logger:   logger.WithField("component", "stocks"),
		now:      time.Now,
	}
}

// Chart is a candle series for one symbol and timeframe
type Chart struct {
	Symbol     string           `json:"symbol"`
	Timeframe  types.Timeframe  `json:"timeframe"`
	Resolution types.Resolution `json:"resolution"`
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	Candles    []models.Candle  `json:"candles"`
}

// StockDetail is everything the detail view shows for a symbol. A failed
// chart does not hide the quote.
type StockDetail struct {
	Quote      *models.Quote `json:"quote"`
	Chart      *Chart        `json:"chart,omitempty"`
	ChartError string        `json:"chartError,omitempty"`
}

// GetQuote returns the latest quote for symbol
func (s *StockService) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol, err := requireSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return s.quotes.GetQuote(ctx, symbol)
}

// Search looks up tickers by symbol or company name
func (s *StockService) Search(ctx context.Context, query string) ([]models.Stock, error) {
	return s.searcher.SearchSymbols(ctx, query)
}

// GetChart returns the candles covering timeframe, ending now
func (s *StockService) GetChart(ctx context.Context, symbol string, timeframe types.Timeframe) (*Chart, error) {
	symbol, err := requireSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = types.DefaultTimeframe
	}

	resolution, from, to := timeframe.Window(s.now())
	candles, err := s.candles.GetCandles(ctx, symbol, resolution, from, to)
	if err != nil {
		return nil, err
	}

	return &Chart{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Resolution: resolution,
		From:       from,
		To:         to,
		Candles:    candles,
	}, nil
}

// GetDetail fetches the quote and the chart concurrently
func (s *StockService) GetDetail(ctx context.Context, symbol string, timeframe types.Timeframe) (*StockDetail, error) {
	symbol, err := requireSymbol(symbol)
	if err != nil {
		return nil, err
	}

	detail := &StockDetail{}
	var chartErr error

	var g errgroup.Group
	g.Go(func() error {
		quote, err := s.quotes.GetQuote(ctx, symbol)
		detail.Quote = quote
		return err
	})
	g.Go(func() error {
		detail.Chart, chartErr = s.GetChart(ctx, symbol, timeframe)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if chartErr != nil {
		s.logger.WithField("symbol", symbol).WithError(chartErr).Warn("Chart unavailable")
		detail.ChartError = chartErr.Error()
	}
	return detail, nil
}

func requireSymbol(symbol string) (string, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
	}
	return symbol, nil
}

// ViewRequest identifies one selection in a DetailView
type ViewRequest struct {
	Generation uint64          `json:"generation"`
	Symbol     string          `json:"symbol"`
	Timeframe  types.Timeframe `json:"timeframe"`
}

// DetailViewState is what the detail view currently shows
type DetailViewState struct {
	Request ViewRequest  `json:"request"`
	Loading bool         `json:"loading"`
	Detail  *StockDetail `json:"detail,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// DetailView holds the selected symbol's data. Responses for a selection
// that has since been replaced are discarded.
type DetailView struct {
	stocks *StockService

	mu      sync.Mutex
	current ViewRequest
	loading bool
	detail  *StockDetail
	err     error
}

// NewDetailView creates an empty detail view
func NewDetailView(stocks *StockService) *DetailView {
	return &DetailView{stocks: stocks}
}

// Select makes (symbol, timeframe) the current selection and returns its request
func (v *DetailView) Select(symbol string, timeframe types.Timeframe) ViewRequest {
	if timeframe == "" {
		timeframe = types.DefaultTimeframe
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = ViewRequest{
		Generation: v.current.Generation + 1,
		Symbol:     types.NormalizeSymbol(symbol),
		Timeframe:  timeframe,
	}
	v.loading = true
	v.detail = nil
	v.err = nil
	return v.current
}

// Apply stores the response for req. It reports false and changes nothing
// when req is no longer the current selection.
func (v *DetailView) Apply(req ViewRequest, detail *StockDetail, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if req.Generation != v.current.Generation {
		return false
	}
	v.loading = false
	v.detail = detail
	v.err = err
	return true
}

// Open selects symbol, fetches its detail and applies the result if the
// selection is still current when the fetch returns.
func (v *DetailView) Open(ctx context.Context, symbol string, timeframe types.Timeframe) (DetailViewState, error) {
	req := v.Select(symbol, timeframe)
	if req.Symbol == "" {
		err := &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
		v.Apply(req, nil, err)
		return v.State(), err
	}

	detail, err := v.stocks.GetDetail(ctx, req.Symbol, req.Timeframe)
	if !v.Apply(req, detail, err) {
		v.stocks.logger.WithFields(map[string]interface{}{
			"symbol":     req.Symbol,
			"generation": req.Generation,
		}).Debug("Discarding stale detail response")
	}
	return v.State(), nil
}

// State returns what the view currently shows
func (v *DetailView) State() DetailViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	state := DetailViewState{
		Request: v.current,
		Loading: v.loading,
		Detail:  v.detail,
	}
	if v.err != nil {
		state.Error = fmt.Sprint(v.err)
	}
	return state
}

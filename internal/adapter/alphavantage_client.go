package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stock-tracker/internal/circuitbreaker"
	"github.com/stock-tracker/internal/config"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/types"
	"golang.org/x/time/rate"
)

const alphaVantageProvider = "alphavantage"

// AlphaVantageClient fetches GLOBAL_QUOTE snapshots from Alpha Vantage.
// Requests are throttled to the configured per-minute quota and pass through
// a circuit breaker so an outage fails fast instead of stalling every cycle.
type AlphaVantageClient struct {
	apiKey  string
	baseURL string
	http    *httpGetter
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

// NewAlphaVantageClient creates a quote client from configuration
func NewAlphaVantageClient(cfg config.QuoteProviderConfig) *AlphaVantageClient {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	breakerCfg := circuitbreaker.DefaultConfig(alphaVantageProvider)
	if cfg.BreakerThreshold > 0 {
		breakerCfg.MaxFailures = cfg.BreakerThreshold
	}
	if cfg.BreakerCooldown > 0 {
		breakerCfg.Timeout = cfg.BreakerCooldown
	}
	breakerCfg.IsFailure = countsAgainstProvider

	return &AlphaVantageClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPGetter(alphaVantageProvider, cfg.Timeout, limiter),
		breaker: circuitbreaker.NewCircuitBreaker(breakerCfg),
		now:     time.Now,
	}
}

// countsAgainstProvider excludes answers about the symbol itself
func countsAgainstProvider(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.LookupFailureKind(err) != types.FailureSymbolNotFound
}

// BreakerStats reports the circuit breaker counters for health output
func (c *AlphaVantageClient) BreakerStats() *circuitbreaker.Stats {
	return c.breaker.GetStats()
}

// BreakerState reports the circuit breaker state
func (c *AlphaVantageClient) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}

// alphaVantageQuote mirrors the "Global Quote" object
type alphaVantageQuote struct {
	Symbol           string `json:"01. symbol"`
	Open             string `json:"02. open"`
	High             string `json:"03. high"`
	Low              string `json:"04. low"`
	Price            string `json:"05. price"`
	Volume           string `json:"06. volume"`
	LatestTradingDay string `json:"07. latest trading day"`
	PreviousClose    string `json:"08. previous close"`
	Change           string `json:"09. change"`
	ChangePercent    string `json:"10. change percent"`
}

type alphaVantageResponse struct {
	GlobalQuote  *alphaVantageQuote `json:"Global Quote"`
	ErrorMessage string             `json:"Error Message"`
	Note         string             `json:"Note"`
	Information  string             `json:"Information"`
}

// GetQuote fetches the latest quote for symbol
func (c *AlphaVantageClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperrors.NewInvalidParameterError("symbol", "symbol is required")
	}

	var quote *models.Quote
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		q, err := c.fetchQuote(ctx, symbol)
		quote = q
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return nil, apperrors.NewCircuitOpenError(alphaVantageProvider, err)
	}
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (c *AlphaVantageClient) fetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	body, err := c.http.get(ctx, fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	return c.parseQuote(symbol, body)
}

func (c *AlphaVantageClient) parseQuote(symbol string, body []byte) (*models.Quote, error) {
	var resp alphaVantageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewMalformedResponseError(alphaVantageProvider, err)
	}

	switch {
	case resp.ErrorMessage != "":
		return nil, apperrors.NewSymbolNotFoundError(alphaVantageProvider, symbol)
	case resp.Note != "", resp.Information != "":
		return nil, apperrors.NewProviderRateLimitError(alphaVantageProvider)
	case resp.GlobalQuote == nil:
		return nil, apperrors.NewMalformedResponseError(alphaVantageProvider, errors.New("missing Global Quote"))
	case resp.GlobalQuote.Symbol == "" && resp.GlobalQuote.Price == "":
		// an empty Global Quote object means the ticker is unknown
		return nil, apperrors.NewSymbolNotFoundError(alphaVantageProvider, symbol)
	}

	gq := resp.GlobalQuote
	p := &numberParser{}
	quote := &models.Quote{
		Symbol:        gq.Symbol,
		Open:          p.float(gq.Open),
		High:          p.float(gq.High),
		Low:           p.float(gq.Low),
		Price:         p.float(gq.Price),
		Volume:        p.int(gq.Volume),
		AsOfDate:      gq.LatestTradingDay,
		PreviousClose: p.float(gq.PreviousClose),
		Change:        p.float(gq.Change),
		ChangePercent: p.float(strings.TrimSuffix(strings.TrimSpace(gq.ChangePercent), "%")),
		FetchedAt:     c.now().UTC(),
	}
	if p.err != nil {
		return nil, apperrors.NewMalformedResponseError(alphaVantageProvider, p.err)
	}
	if quote.Price <= 0 {
		return nil, apperrors.NewMalformedResponseError(alphaVantageProvider,
			fmt.Errorf("non-positive price %q", gq.Price))
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}

	return quote, nil
}

// numberParser keeps the first conversion error
type numberParser struct {
	err error
}

func (p *numberParser) float(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = fmt.Errorf("non-finite number %q", s)
	}
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *numberParser) int(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

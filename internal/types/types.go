// Package types provides common type definitions for the stock tracker system.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Store keys used by the single-profile persistent store.
const (
	// KeyPortfolio holds the serialized holdings list
	KeyPortfolio = "portfolio"
	// KeyWatchlist holds the serialized watchlist
	KeyWatchlist = "watchlist"
)

// FailureKind classifies why a quote lookup did not produce a price
type FailureKind string

const (
	// FailureNetwork represents a transport failure or timeout
	FailureNetwork FailureKind = "network"
	// FailureSymbolNotFound represents an unknown ticker
	FailureSymbolNotFound FailureKind = "symbol_not_found"
	// FailureRateLimited represents a provider quota rejection
	FailureRateLimited FailureKind = "rate_limited"
	// FailureMalformedResponse represents an unparseable provider payload
	FailureMalformedResponse FailureKind = "malformed_response"
	// FailureCircuitOpen represents a lookup skipped while the provider is failing
	FailureCircuitOpen FailureKind = "circuit_open"
)

// Timeframe represents a chart window selectable in the stock detail view
type Timeframe string

const (
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe1Y Timeframe = "1Y"
)

// DefaultTimeframe is used when a chart request names none
const DefaultTimeframe = Timeframe1M

// Resolution is the candle width understood by the candle provider
type Resolution string

const (
	Resolution5Min Resolution = "5"
	ResolutionHour Resolution = "60"
	ResolutionDay  Resolution = "D"
	ResolutionWeek Resolution = "W"
)

type timeframeWindow struct {
	resolution Resolution
	lookback   time.Duration
}

var timeframeWindows = map[Timeframe]timeframeWindow{
	Timeframe1D: {Resolution5Min, 24 * time.Hour},
	Timeframe1W: {ResolutionHour, 7 * 24 * time.Hour},
	Timeframe1M: {ResolutionDay, 30 * 24 * time.Hour},
	Timeframe3M: {ResolutionDay, 90 * 24 * time.Hour},
	Timeframe1Y: {ResolutionWeek, 365 * 24 * time.Hour},
}

// ParseTimeframe parses a timeframe string, falling back to DefaultTimeframe for an empty value
func ParseTimeframe(s string) (Timeframe, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultTimeframe, nil
	}
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := timeframeWindows[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Window returns the candle resolution and the [from, to] range ending at now
func (tf Timeframe) Window(now time.Time) (Resolution, time.Time, time.Time) {
	w, ok := timeframeWindows[tf]
	if !ok {
		w = timeframeWindows[DefaultTimeframe]
	}
	return w.resolution, now.Add(-w.lookback), now
}

// Timeframes returns all supported timeframes in display order
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe1Y}
}

// NormalizeSymbol trims and upper-cases a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

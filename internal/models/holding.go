// Package models provides data models for the stock tracker system.
package models

import (
	"fmt"
	"math"
	"time"
)

// Holding represents a simulated position in a single ticker.
// The pointer fields are derived from the latest quote and are nil when no
// successful quote backs them.
type Holding struct {
	Symbol         string     `json:"symbol"`
	CompanyName    string     `json:"companyName"`
	Shares         float64    `json:"shares"`
	PurchasePrice  float64    `json:"purchasePrice"`
	CurrentPrice   *float64   `json:"currentPrice,omitempty"`
	Value          *float64   `json:"value,omitempty"`
	Gain           *float64   `json:"gain,omitempty"`
	GainPercentage *float64   `json:"gainPercentage,omitempty"`
	PricedAt       *time.Time `json:"pricedAt,omitempty"`
}

// CostBasis returns shares times purchase price
func (h Holding) CostBasis() float64 {
	return h.Shares * h.PurchasePrice
}

// IsValued reports whether the derived fields are present
func (h Holding) IsValued() bool {
	return h.CurrentPrice != nil
}

// WithoutValuation returns a copy with every derived field cleared
func (h Holding) WithoutValuation() Holding {
	h.CurrentPrice = nil
	h.Value = nil
	h.Gain = nil
	h.GainPercentage = nil
	h.PricedAt = nil
	return h
}

// Validate checks the static fields
func (h Holding) Validate() error {
	if h.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !isPositiveFinite(h.Shares) {
		return fmt.Errorf("shares must be a positive number, got %v", h.Shares)
	}
	if !isPositiveFinite(h.PurchasePrice) {
		return fmt.Errorf("purchase price must be a positive number, got %v", h.PurchasePrice)
	}
	return nil
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Totals holds the portfolio aggregates
type Totals struct {
	TotalValue          float64 `json:"totalValue"`
	TotalInvestment     float64 `json:"totalInvestment"`
	TotalGain           float64 `json:"totalGain"`
	TotalGainPercentage float64 `json:"totalGainPercentage"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

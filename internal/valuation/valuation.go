// Package valuation prices holdings against quote lookups and folds
// portfolio totals. Valuate and ValuatePortfolio are pure; Gather performs
// the concurrent lookups that feed them.
package valuation

import (
	"math"
	"time"

	"github.com/stock-tracker/internal/models"
)

// Outcome is the tagged result of one quote lookup: either Quote is set or Err is.
type Outcome struct {
	Symbol string
	Quote  *models.Quote
	Err    error
}

// OK reports whether the lookup produced a usable price
func (o Outcome) OK() bool {
	return o.Err == nil && o.Quote != nil && o.Quote.Price > 0 &&
		!math.IsInf(o.Quote.Price, 0) && !math.IsNaN(o.Quote.Price)
}

// Valuate applies one lookup outcome to a holding. A failed outcome clears the
// derived fields; the static fields are never touched.
func Valuate(h models.Holding, o Outcome) models.Holding {
	h = h.WithoutValuation()
	if !o.OK() {
		return h
	}

	price := o.Quote.Price
	value := price * h.Shares
	gain := value - h.PurchasePrice*h.Shares
	gainPct := (price - h.PurchasePrice) / h.PurchasePrice * 100

	h.CurrentPrice = &price
	h.Value = &value
	h.Gain = &gain
	h.GainPercentage = &gainPct

	pricedAt := o.Quote.FetchedAt
	if pricedAt.IsZero() {
		pricedAt = time.Now().UTC()
	}
	h.PricedAt = &pricedAt

	return h
}

// ValuatePortfolio valuates every holding with the outcome for its symbol and
// folds the totals. A holding without a matching outcome is treated as failed.
func ValuatePortfolio(holdings []models.Holding, outcomes []Outcome) ([]models.Holding, models.Totals) {
	bySymbol := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		bySymbol[o.Symbol] = o
	}

	valued := make([]models.Holding, len(holdings))
	for i, h := range holdings {
		valued[i] = Valuate(h, bySymbol[h.Symbol])
	}

	return valued, ComputeTotals(valued)
}

// ComputeTotals folds the aggregates over holdings. An absent value counts as
// zero, so a holding whose lookup failed still adds its cost basis to the
// investment and depresses the total gain.
func ComputeTotals(holdings []models.Holding) models.Totals {
	var t models.Totals
	for _, h := range holdings {
		t.TotalInvestment += h.CostBasis()
		if h.Value != nil {
			t.TotalValue += *h.Value
		}
	}

	t.TotalGain = t.TotalValue - t.TotalInvestment
	if t.TotalInvestment > 0 {
		t.TotalGainPercentage = t.TotalGain / t.TotalInvestment * 100
	}
	return t
}

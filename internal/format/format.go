// Package format renders monetary and percentage values for display.
// Absent values render as Placeholder.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stock-tracker/internal/models"
)

// Placeholder is shown wherever a derived value is unavailable
const Placeholder = "-"

// Money formats v as dollars with comma separators and two decimals
func Money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + "$" + groupThousands(d.StringFixed(2))
}

// SignedMoney formats v with an explicit + for non-negative amounts
func SignedMoney(v float64) string {
	if v >= 0 {
		return "+" + Money(v)
	}
	return Money(v)
}

// Percent formats v as a percentage with two decimals
func Percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// SignedPercent formats v with an explicit + for non-negative values
func SignedPercent(v float64) string {
	if v >= 0 {
		return "+" + Percent(v)
	}
	return Percent(v)
}

// Shares formats a share count with at most four decimals and no trailing zeros
func Shares(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}

// OptionalMoney formats v or returns Placeholder when v is nil
func OptionalMoney(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return Money(*v)
}

// OptionalSignedMoney formats v with a sign or returns Placeholder when v is nil
func OptionalSignedMoney(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return SignedMoney(*v)
}

// OptionalSignedPercent formats v with a sign or returns Placeholder when v is nil
func OptionalSignedPercent(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return SignedPercent(*v)
}

// Direction classifies a gain for colouring: "up", "down", "flat", or "" when unknown
func Direction(gain *float64) string {
	switch {
	case gain == nil:
		return ""
	case *gain > 0:
		return "up"
	case *gain < 0:
		return "down"
	default:
		return "flat"
	}
}

func groupThousands(fixed string) string {
	whole, frac, _ := strings.Cut(fixed, ".")
	if len(whole) <= 3 {
		return fixed
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// HoldingRow is one display row of the holdings table
type HoldingRow struct {
	Symbol         string `json:"symbol"`
	CompanyName    string `json:"companyName"`
	Shares         string `json:"shares"`
	PurchasePrice  string `json:"purchasePrice"`
	CurrentPrice   string `json:"currentPrice"`
	Value          string `json:"value"`
	Gain           string `json:"gain"`
	GainPercentage string `json:"gainPercentage"`
	Direction      string `json:"direction,omitempty"`
}

// TotalsRow is the display form of the portfolio summary
type TotalsRow struct {
	TotalValue          string `json:"totalValue"`
	TotalInvestment     string `json:"totalInvestment"`
	TotalGain           string `json:"totalGain"`
	TotalGainPercentage string `json:"totalGainPercentage"`
	Direction           string `json:"direction,omitempty"`
}

// Holding renders h for the holdings table
func Holding(h models.Holding) HoldingRow {
	return HoldingRow{
		Symbol:         h.Symbol,
		CompanyName:    h.CompanyName,
		Shares:         Shares(h.Shares),
		PurchasePrice:  Money(h.PurchasePrice),
		CurrentPrice:   OptionalMoney(h.CurrentPrice),
		Value:          OptionalMoney(h.Value),
		Gain:           OptionalSignedMoney(h.Gain),
		GainPercentage: OptionalSignedPercent(h.GainPercentage),
		Direction:      Direction(h.Gain),
	}
}

// Holdings renders every holding in order
func Holdings(holdings []models.Holding) []HoldingRow {
	rows := make([]HoldingRow, len(holdings))
	for i, h := range holdings {
		rows[i] = Holding(h)
	}
	return rows
}

// Totals renders the portfolio summary
func Totals(t models.Totals) TotalsRow {
	return TotalsRow{
		TotalValue:          Money(t.TotalValue),
		TotalInvestment:     Money(t.TotalInvestment),
		TotalGain:           SignedMoney(t.TotalGain),
		TotalGainPercentage: SignedPercent(t.TotalGainPercentage),
		Direction:           Direction(&t.TotalGain),
	}
}

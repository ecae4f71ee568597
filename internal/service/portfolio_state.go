package service

import (
	"time"

	"github.com/stock-tracker/internal/models"
)

// WarningKind identifies what a soft warning is about
type WarningKind string

const (
	// WarningLookupFailed is raised per symbol whose quote lookup failed in a cycle
	WarningLookupFailed WarningKind = "lookup_failed"
	// WarningRefreshFailed is raised once when every lookup in a cycle failed
	WarningRefreshFailed WarningKind = "refresh_failed"
	// WarningPersistenceFailed is raised when the portfolio could not be written
	WarningPersistenceFailed WarningKind = "persistence_failed"
)

// Warning is a dismissible, non-fatal notice for the presentation layer
type Warning struct {
	ID        string      `json:"id"`
	Kind      WarningKind `json:"kind"`
	Symbol    string      `json:"symbol,omitempty"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"createdAt"`
}

// PortfolioState is the observable snapshot handed to the presentation layer.
// Every slice is a private copy.
type PortfolioState struct {
	Holdings       []models.Holding `json:"holdings"`
	Totals         models.Totals    `json:"totals"`
	Loading        bool             `json:"loading"`
	Warnings       []Warning        `json:"warnings"`
	LastRefreshAt  *time.Time       `json:"lastRefreshAt,omitempty"`
	SelectedSymbol string           `json:"selectedSymbol,omitempty"`
	Version        uint64           `json:"version"`
}

// RefreshResult is what one refresh cycle hands to CommitRefresh
type RefreshResult struct {
	CycleID string
	// Holdings is the cycle's valued snapshot of the holdings it started with
	Holdings   []models.Holding
	Attempted  int
	Failed     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// AllFailed reports whether no lookup in the cycle produced a price
func (r RefreshResult) AllFailed() bool {
	return r.Attempted > 0 && len(r.Failed) == r.Attempted
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/format"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/service"
)

// PortfolioResponse is the portfolio state plus its display strings
type PortfolioResponse struct {
	service.PortfolioState
	Display PortfolioDisplay `json:"display"`
}

// PortfolioDisplay holds preformatted values for the holdings table
type PortfolioDisplay struct {
	Holdings []format.HoldingRow `json:"holdings"`
	Totals   format.TotalsRow    `json:"totals"`
}

// HoldingResponse is a single holding plus its display row
type HoldingResponse struct {
	Holding *models.Holding   `json:"holding"`
	Display format.HoldingRow `json:"display"`
}

// handleGetPortfolio handles GET /api/portfolio
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	state := s.portfolioService.Snapshot()
	respondJSON(w, http.StatusOK, PortfolioResponse{
		PortfolioState: state,
		Display: PortfolioDisplay{
			Holdings: format.Holdings(state.Holdings),
			Totals:   format.Totals(state.Totals),
		},
	})
}

// handleAddHolding handles POST /api/portfolio/holdings
func (s *Server) handleAddHolding(w http.ResponseWriter, r *http.Request) {
	var input service.AddHoldingInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	holding, err := s.portfolioService.AddHolding(r.Context(), &input)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, HoldingResponse{
		Holding: holding,
		Display: format.Holding(*holding),
	})
}

// handleRemoveHolding handles DELETE /api/portfolio/holdings/{symbol}
func (s *Server) handleRemoveHolding(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	removed, err := s.portfolioService.RemoveHolding(r.Context(), symbol)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"removed": removed,
	})
}

// handleSelectHolding handles PUT /api/portfolio/holdings/{symbol}
func (s *Server) handleSelectHolding(w http.ResponseWriter, r *http.Request) {
	stock, err := s.portfolioService.SelectSymbol(mux.Vars(r)["symbol"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stock)
}

// handleRefresh handles POST /api/portfolio/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		respondCategorized(w, apperrors.NewServiceUnavailableError("refresh scheduler"))
		return
	}

	s.refresher.Trigger()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// handleDismissWarning handles DELETE /api/portfolio/warnings/{id}
func (s *Server) handleDismissWarning(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.portfolioService.DismissWarning(id) {
		respondError(w, http.StatusNotFound, "WARNING_NOT_FOUND", "Warning not found", map[string]interface{}{"id": id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stock-tracker/internal/types"
)

// handleSearchStocks handles GET /api/stocks/search?q=
func (s *Server) handleSearchStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.stockService.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(stocks),
		"results": stocks,
	})
}

// handleGetQuote handles GET /api/stocks/{symbol}/quote
func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := s.stockService.GetQuote(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// handleGetChart handles GET /api/stocks/{symbol}/chart?timeframe=
func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	timeframe, ok := parseTimeframe(w, r)
	if !ok {
		return
	}

	chart, err := s.stockService.GetChart(r.Context(), mux.Vars(r)["symbol"], timeframe)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chart)
}

// handleGetDetail handles GET /api/detail
func (s *Server) handleGetDetail(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.detailView.State())
}

// handleOpenDetail handles PUT /api/detail. A selection superseded while its
// data loads returns the newer selection's state.
func (s *Server) handleOpenDetail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe,omitempty"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	timeframe, err := types.ParseTimeframe(req.Timeframe)
	if err != nil {
		respondTimeframeError(w, req.Timeframe)
		return
	}

	state, err := s.detailView.Open(r.Context(), req.Symbol, timeframe)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func parseTimeframe(w http.ResponseWriter, r *http.Request) (types.Timeframe, bool) {
	raw := r.URL.Query().Get("timeframe")
	timeframe, err := types.ParseTimeframe(raw)
	if err != nil {
		respondTimeframeError(w, raw)
		return "", false
	}
	return timeframe, true
}

func respondTimeframeError(w http.ResponseWriter, raw string) {
	respondError(w, http.StatusBadRequest, "INVALID_TIMEFRAME", "Unsupported timeframe", map[string]interface{}{
		"timeframe": raw,
		"supported": types.Timeframes(),
	})
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleListWatchlist handles GET /api/watchlist
func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": s.watchlistService.List(),
	})
}

// handleAddWatchlist handles POST /api/watchlist
func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol      string `json:"symbol"`
		CompanyName string `json:"companyName,omitempty"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	item, added, err := s.watchlistService.Add(r.Context(), req.Symbol, req.CompanyName)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	respondJSON(w, status, item)
}

// handleRemoveWatchlist handles DELETE /api/watchlist/{symbol}
func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	removed, err := s.watchlistService.Remove(r.Context(), symbol)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"removed": removed,
	})
}

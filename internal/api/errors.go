package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// respondCategorized sends a categorized error with its own status
func respondCategorized(w http.ResponseWriter, catErr *apperrors.CategorizedError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(catErr.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: *catErr.ToServiceError()})
}

// respondServiceError maps a service or provider error onto its HTTP status.
// Internal failures are reported without their cause.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
		return
	}

	switch {
	case apperrors.IsSystemError(catErr):
		s.logger.WithError(err).Error("Request failed")
		if catErr.Category != apperrors.CategoryProvider {
			respondError(w, catErr.StatusCode, ErrCodeInternalError, "An internal error occurred", nil)
			return
		}
	case apperrors.IsUserError(catErr):
		s.logger.WithField("code", catErr.Code).Debug("Request rejected")
	}

	respondCategorized(w, catErr)
}

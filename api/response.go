package api

import (
	"encoding/json"
	"net/http"

	"github.com/Blackie360/Persona-Studio/utils"
)

const maxPageLimit = 100

type ErrorResponse struct {
	Error     string  `json:"error"`
	Remaining float64 `json:"remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// writeError maps service errors to HTTP responses. Unknown errors become a
// generic 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*utils.APIError); ok {
		writeJSON(w, apiErr.Code, ErrorResponse{Error: apiErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

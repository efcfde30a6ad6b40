package handlers

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the JSON body of every error reply
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondJSON writes v as JSON with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, errMsg, message string) {
	respondJSON(w, statusCode, errorResponse{Error: errMsg, Message: message})
}

// NotFound answers unknown routes
func NotFound(w http.ResponseWriter, _ *http.Request) {
	respondWithError(w, http.StatusNotFound, "route not found", "")
}

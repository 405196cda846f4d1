package testutil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ReplyJSON writes an arbitrary JSON response with the given status.
func ReplyJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ReplyData writes a successful data payload.
func ReplyData(w http.ResponseWriter, data any) {
	ReplyJSON(w, http.StatusOK, data)
}

// ReplyError writes an error response with a JSON error body.
func ReplyError(w http.ResponseWriter, status int, message string) {
	ReplyJSON(w, status, map[string]any{"error": message})
}

// ReplyRateLimit writes a 429 response with a Retry-After header.
func ReplyRateLimit(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	ReplyError(w, http.StatusTooManyRequests, "too many requests: retry after "+strconv.Itoa(retryAfter))
}

// ReplyServerError writes a 5xx server error response.
func ReplyServerError(w http.ResponseWriter, status int, message string) {
	ReplyError(w, status, message)
}

// ReplyBadRequest writes a 400 bad request error.
func ReplyBadRequest(w http.ResponseWriter, message string) {
	ReplyError(w, http.StatusBadRequest, "bad request: "+message)
}

// ReplyNotFound writes a 404 not found error.
func ReplyNotFound(w http.ResponseWriter, message string) {
	ReplyError(w, http.StatusNotFound, "not found: "+message)
}

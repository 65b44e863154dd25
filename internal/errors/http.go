package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// HTTPErrorResponse wraps a GatewayError for HTTP JSON responses.
type HTTPErrorResponse struct {
	Error GatewayError `json:"error"`
}

// WriteHTTPError writes a GatewayError as an HTTP JSON response.
// A RetryAfter hint is additionally surfaced as a Retry-After header.
func WriteHTTPError(w http.ResponseWriter, err *GatewayError) {
	w.Header().Set("Content-Type", "application/json")
	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(HTTPErrorResponse{Error: *err})
}

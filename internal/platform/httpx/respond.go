package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an {"error": msg} response.
func Error(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	JSON(w, status, ErrorBody{Error: msg})
}

// Package httpx carries the JSON conventions shared by every rovergate
// handler: plain encoding for payloads and a single {code, message} envelope
// for errors.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse is the error envelope the service returns on every non-2xx
// JSON response. Code is a stable machine-readable token (robot_busy,
// robot_offline, wallet_required, ...) that clients branch on; Message is
// advisory text for humans.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// WriteErrorf is WriteError with a formatted message, for errors that name
// the rover or wallet involved.
func WriteErrorf(w http.ResponseWriter, status int, code, format string, args ...any) {
	WriteError(w, status, code, fmt.Sprintf(format, args...))
}

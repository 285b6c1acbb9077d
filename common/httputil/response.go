package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// StatusResponse is the body of every collector reply: a human readable
// text plus a numeric code the agent can branch on (0 means success).
type StatusResponse struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

// WriteJSON writes a JSON response with the given status code and data.
// Encoding failures are logged; the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// WriteStatus writes a StatusResponse with the given HTTP status.
func WriteStatus(w http.ResponseWriter, status int, code int, text string) {
	WriteJSON(w, status, StatusResponse{Text: text, Code: code})
}

// WriteError writes a plain {"error": message} body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

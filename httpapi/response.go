package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Connection", "close")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// errorBody is the enhanced 4xx/5xx JSON shape from spec.md §6.
type errorBody struct {
	Error      string            `json:"error"`
	ErrorCode  string            `json:"error_code"`
	Details    string            `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	StatusCode int               `json:"status_code"`
}

func writeError(w http.ResponseWriter, status int, code, details, suggestion string, context map[string]string) {
	writeJSON(w, status, errorBody{
		Error:      http.StatusText(status),
		ErrorCode:  code,
		Details:    details,
		Suggestion: suggestion,
		Context:    context,
		Timestamp:  time.Now().UTC(),
		StatusCode: status,
	})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/shehryarbajwa/gemini-bridge/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: code, Message: message})
}

// writeFailure writes an error body carrying success:false
func writeFailure(w http.ResponseWriter, status int, code, message, details string) {
	success := false
	writeJSON(w, status, models.ErrorResponse{
		Success: &success,
		Error:   code,
		Message: message,
		Details: details,
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed",
		r.Method+"メソッドはサポートされていません")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found", r.URL.Path+" は存在しません")
}

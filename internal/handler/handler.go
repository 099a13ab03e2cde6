// Package handler contains HTTP request handlers for the matching
// engine's REST surface. Grounded on the teacher's internal/handler
// package: a thin handler per concern, a shared writeJSON helper, and
// errors.Is switches translating service-layer sentinel errors into
// HTTP status codes.
package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorBody(code, message string) map[string]string {
	return map[string]string{"error": code, "message": message}
}

package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError responde no mesmo formato dos erros da camada SED.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":     message,
			"type":        kind,
			"status_code": status,
			"context":     map[string]any{},
		},
	})
}

package utils

import (
	"encoding/json"
	"net/http"

	"github.com/chatdeck/chatdeck/internal/apperr"
	"github.com/chatdeck/chatdeck/internal/logger"
	"go.uber.org/zap"
)

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]string{"error": code}
	if details != "" {
		body["details"] = details
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// WriteAppError converts an apperr value into the wire error shape, mapping
// the status through the shared taxonomy.
func WriteAppError(w http.ResponseWriter, err error) {
	WriteError(w, apperr.Code(err), err.Error(), apperr.HTTPStatus(err))
}

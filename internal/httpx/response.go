// Package httpx centralizes the JSON response envelope every handler
// uses (spec §6: "all responses carry a boolean success"), replacing the
// teacher's handler-by-handler json.NewEncoder calls with one helper.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/unclebandit/relaycast/internal/apperrors"
)

// WriteJSON writes payload as a successful JSON response, merging in
// "success": true.
func WriteJSON(w http.ResponseWriter, status int, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["success"] = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes a failed JSON response. In production (devMode
// false) the message is sanitized to a generic description for 500s;
// validation-class errors always surface full detail (spec §7).
func WriteError(w http.ResponseWriter, status int, message string, devMode bool) {
	if status >= 500 && !devMode {
		message = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// WriteValidationErrors writes a 400 with the full accumulated list of
// validation failures (spec §4.G: "errors accumulate; return all at
// once").
func WriteValidationErrors(w http.ResponseWriter, errs []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"errors":  errs,
	})
}

// StatusForError maps an apperrors.Code to the HTTP status spec §7's
// taxonomy implies.
func StatusForError(err error) int {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeCapacity:
		return http.StatusTooManyRequests
	case apperrors.CodeCampaignNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/service"
)

// Handler serves the fallback routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes the failure envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Success: false,
		Message: message,
		Code:    code,
	})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "CHAT_NOT_FOUND", "Chat not found")
	case errors.Is(err, service.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", service.ErrInsufficientCredits.Error())
	case errors.Is(err, service.ErrProvider):
		writeError(w, http.StatusBadGateway, "PROVIDER_ERROR", "Generation failed, please try again")
	case errors.Is(err, service.ErrInvalidPrompt):
		writeError(w, http.StatusBadRequest, "INVALID_PROMPT", service.ErrInvalidPrompt.Error())
	case errors.Is(err, service.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, "INVALID_MODE", service.ErrInvalidMode.Error())
	case errors.Is(err, service.ErrModeUnavailable):
		writeError(w, http.StatusServiceUnavailable, "MODE_UNAVAILABLE", service.ErrModeUnavailable.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrEmailExists):
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", service.ErrEmailExists.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized")
	case errors.Is(err, service.ErrPlanNotFound):
		writeError(w, http.StatusBadRequest, "PLAN_NOT_FOUND", service.ErrPlanNotFound.Error())
	case errors.Is(err, service.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", service.ErrTransactionNotFound.Error())
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

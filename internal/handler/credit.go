package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/handler/dto"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/payment"
	"github.com/quickgpt/quickgpt/internal/service"
)

// PaymentProcessor sells plans and applies payment notifications.
type PaymentProcessor interface {
	Plans() []model.Plan
	Purchase(ctx context.Context, userID, planID string) (*service.Checkout, error)
	HandleEvent(ctx context.Context, evt payment.Event) (bool, error)
}

// CreditHandler handles plans, purchases and the payment notification hook.
type CreditHandler struct {
	svc      PaymentProcessor
	verifier *payment.Verifier
	logger   *slog.Logger
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(svc PaymentProcessor, verifier *payment.Verifier, logger *slog.Logger) *CreditHandler {
	return &CreditHandler{svc: svc, verifier: verifier, logger: logger}
}

// Plans handles GET /api/credit/plan.
func (h *CreditHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.PlansResponse{Success: true, Plans: h.svc.Plans()})
}

// Purchase handles POST /api/credit/purchase.
func (h *CreditHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req dto.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	checkout, err := h.svc.Purchase(r.Context(), auth.UserIDFromContext(r.Context()), req.PlanID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PurchaseResponse{
		Success:       true,
		URL:           checkout.URL,
		TransactionID: checkout.Transaction.ID,
	})
}

// Webhook handles POST /api/payment/webhook.
func (h *CreditHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "WEBHOOK_DISABLED", "Payment notifications are not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Unable to read request body")
		return
	}

	err = h.verifier.Verify(r.Header.Get(payment.SignatureHeader), r.Header.Get(payment.TimestampHeader), body)
	if err != nil {
		h.logger.Warn("payment_webhook_rejected", "reason", err.Error())
		writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature")
		return
	}

	evt, err := payment.ParseEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid event payload")
		return
	}

	applied, err := h.svc.HandleEvent(r.Context(), *evt)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) || errors.Is(err, service.ErrInvalidInput) {
			handleServiceError(w, h.logger, err)
			return
		}
		// Non-2xx makes the provider redeliver.
		h.logger.Error("payment_webhook_failed", "event_id", evt.EventID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.WebhookResponse{Success: true, Received: true, Applied: applied})
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// checkoutCompletedEvent is the webhook event type that triggers payment
// reconciliation. All other types are acknowledged and ignored.
const checkoutCompletedEvent = "checkout.session.completed"

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// Webhook handles POST /api/payments/webhook. The payload is used only to
// learn the session id; payment state is re-fetched from the gateway before
// any order is touched, so a forged or duplicated delivery cannot corrupt
// payment status.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		badRequest(w, "invalid webhook payload")
		return
	}

	if event.Type != checkoutCompletedEvent {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if event.Data.Object.ID == "" {
		badRequest(w, "missing session id")
		return
	}

	o, err := h.orders.CompletePayment(r.Context(), event.Data.Object.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("Payment reconciled",
		zap.String("order_id", o.ID),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

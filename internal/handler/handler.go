// Package handler exposes the order API over HTTP: order creation and reads,
// staff status updates, coupon verification, and the payment webhook.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-orders/internal/domain/coupon"
	"github.com/xenking/pizza-orders/internal/domain/order"
)

// Handler serves the order API, delegating business logic to the order
// service and coupon repository.
type Handler struct {
	orders  *order.Service
	coupons coupon.Repository
	now     func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, coupons coupon.Repository) *Handler {
	return &Handler{
		orders:  orders,
		coupons: coupons,
		now:     time.Now,
	}
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses. Unrecognized errors are
// logged and returned as an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pricingErr *order.PricingRejectedError
		sessionErr *order.PaymentSessionError
		authErr    *order.UnauthorizedError
	)

	switch {
	case errors.Is(err, order.ErrMissingIdempotency),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
	case errors.As(err, &pricingErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: pricingErr.Error(),
		})
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code:    http.StatusForbidden,
			Message: "forbidden",
		})
	case errors.Is(err, order.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: "order not found",
		})
	case errors.As(err, &sessionErr):
		// The order exists; only the payment session failed. The order id
		// lets the client retry with the same idempotency key.
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Code:    http.StatusBadGateway,
			Message: "payment session could not be created, retry with the same Idempotency-Key",
			OrderID: sessionErr.OrderID,
		})
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal error",
		})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: msg,
	})
}

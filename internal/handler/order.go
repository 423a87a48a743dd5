package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xenking/pizza-orders/internal/domain/auth"
	"github.com/xenking/pizza-orders/internal/domain/cart"
	"github.com/xenking/pizza-orders/internal/domain/customer"
	"github.com/xenking/pizza-orders/internal/domain/order"
)

// IdempotencyKeyHeader carries the client-supplied key deduplicating order
// submissions.
const IdempotencyKeyHeader = "Idempotency-Key"

type createOrderRequest struct {
	Cart        []cart.Item       `json:"cart"`
	Address     customer.Address  `json:"address"`
	Comment     string            `json:"comment"`
	CustomerID  string            `json:"customerId"`
	TenantID    string            `json:"tenantId"`
	PaymentMode order.PaymentMode `json:"paymentMode"`
	CouponCode  string            `json:"couponCode"`
}

type createOrderResponse struct {
	*order.Order
	PaymentURL string `json:"paymentUrl,omitempty"`
}

// CreateOrder handles POST /api/orders. Submissions are deduplicated by the
// Idempotency-Key header: a replay returns the previously created order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	switch req.PaymentMode {
	case order.PaymentModeCash, order.PaymentModeCard:
	default:
		badRequest(w, "paymentMode must be cod or card")
		return
	}
	if req.CustomerID == "" || req.TenantID == "" {
		badRequest(w, "customerId and tenantId are required")
		return
	}

	result, err := h.orders.Create(r.Context(), order.CreateRequest{
		Cart:           req.Cart,
		Address:        req.Address,
		Comment:        req.Comment,
		CustomerID:     req.CustomerID,
		TenantID:       req.TenantID,
		PaymentMode:    req.PaymentMode,
		CouponCode:     req.CouponCode,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		Order:      result.Order,
		PaymentURL: result.PaymentURL,
	})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListOrders handles GET /api/orders?customerId=&tenantId=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	tenantID := r.URL.Query().Get("tenantId")
	if customerID == "" || tenantID == "" {
		badRequest(w, "customerId and tenantId query parameters are required")
		return
	}

	list, err := h.orders.ListByCustomer(r.Context(), customerID, tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []order.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

type updateStatusRequest struct {
	Status order.Status `json:"status"`
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status. The route is
// guarded by the staff authentication middleware; tenancy is enforced by the
// service against the resolved actor.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Code:    http.StatusUnauthorized,
			Message: "unauthorized",
		})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

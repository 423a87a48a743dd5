package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-orders/internal/domain/coupon"
)

type verifyCouponRequest struct {
	Code     string `json:"code"`
	TenantID string `json:"tenantId"`
}

type verifyCouponResponse struct {
	Valid    bool            `json:"valid"`
	Discount decimal.Decimal `json:"discount"`
}

// VerifyCoupon handles POST /api/coupons/verify. Unknown and expired coupons
// both report valid=false; the order flow applies the same rule at creation
// time, so verification is advisory only.
func (h *Handler) VerifyCoupon(w http.ResponseWriter, r *http.Request) {
	var req verifyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Code == "" || req.TenantID == "" {
		badRequest(w, "code and tenantId are required")
		return
	}

	c, err := h.coupons.FindActive(r.Context(), req.Code, req.TenantID, h.now())
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeJSON(w, http.StatusOK, verifyCouponResponse{Valid: false, Discount: decimal.Zero})
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyCouponResponse{Valid: true, Discount: c.Discount})
}

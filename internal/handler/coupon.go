package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-commerce/internal/money"
)

// ListCoupons handles GET /api/coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	owned, err := h.coupons.ListForUser(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range owned {
			encodeOwnedCoupon(e, &owned[i])
		}
		e.ArrEnd()
	})
}

// QuoteCoupon handles GET /api/coupons/{id}/quote?amount=.
func (h *Handler) QuoteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	raw := r.URL.Query().Get("amount")
	amount, err := money.Parse(raw)
	if err != nil || amount.IsNegative() {
		fail(w, r, invalid("amount must be a non-negative decimal, got %q", raw))
		return
	}

	discount, err := h.coupons.Discount(r.Context(), principal(r).UserID, id, amount)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("couponId")
		e.Int64(id)
		e.FieldStart("amount")
		encodeAmount(e, amount)
		e.FieldStart("discountAmount")
		encodeAmount(e, discount)
		e.FieldStart("finalAmount")
		encodeAmount(e, money.FloorAtZero(amount.Sub(discount)))
		e.ObjEnd()
	})
}

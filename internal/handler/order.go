package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/internal/domain/order"
	"github.com/xenking/kart-commerce/internal/idempotency"
)

// IdempotencyKeyHeader deduplicates order submissions.
const IdempotencyKeyHeader = "Idempotency-Key"

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	err := decodeObject(r, false, func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.ItemRequest
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						it.ProductID, err = d.Int64()
					case "quantity":
						it.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
				req.Items = append(req.Items, it)
				return err
			})
		case "couponId":
			var err error
			req.CouponID, err = optionalID(d)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	userID := principal(r).UserID
	h.submit(w, r, userID, func(ctx context.Context) (*order.Order, error) {
		return h.orders.PlaceOrder(ctx, userID, req)
	})
}

// PlaceOrderFromCart handles POST /api/orders/cart.
func (h *Handler) PlaceOrderFromCart(w http.ResponseWriter, r *http.Request) {
	var couponID int64
	err := decodeObject(r, true, func(d *jx.Decoder, key string) error {
		if key != "couponId" {
			return d.Skip()
		}
		var err error
		couponID, err = optionalID(d)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	userID := principal(r).UserID
	h.submit(w, r, userID, func(ctx context.Context) (*order.Order, error) {
		return h.orders.PlaceOrderFromCart(ctx, userID, couponID)
	})
}

// submit runs place at most once per Idempotency-Key. A replayed key
// returns the order it produced with 200 instead of 201.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, userID int64, place func(ctx context.Context) (*order.Order, error)) {
	ctx := r.Context()
	raw := r.Header.Get(IdempotencyKeyHeader)
	if raw == "" || h.idem == nil {
		o, err := place(ctx)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
		return
	}

	key, err := idempotency.Key(userID, raw)
	if err != nil {
		fail(w, r, err)
		return
	}
	existing, reserved, err := h.idem.Reserve(ctx, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !reserved {
		o, err := h.orders.GetOrder(ctx, userID, existing)
		if err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
		return
	}

	lg := zctx.From(ctx).With(zap.String("idempotency_key", raw))
	o, err := place(ctx)
	if err != nil {
		if rerr := h.idem.Release(context.WithoutCancel(ctx), key); rerr != nil {
			lg.Warn("Release idempotency key", zap.Error(rerr))
		}
		fail(w, r, err)
		return
	}
	if err := h.idem.Complete(context.WithoutCancel(ctx), key, o.ID); err != nil {
		lg.Warn("Complete idempotency key", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		f   order.Filter
		err error
	)
	f.Status = order.Status(strings.ToUpper(r.URL.Query().Get("status")))
	if f.From, err = queryTime(r, "from"); err != nil {
		fail(w, r, err)
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		fail(w, r, err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), principal(r).UserID, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), principal(r).UserID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.CancelOrder(r.Context(), principal(r).UserID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// PayOrder handles POST /api/orders/{id}/payments.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var method string
	err = decodeObject(r, false, func(d *jx.Decoder, key string) error {
		if key != "method" {
			return d.Skip()
		}
		var err error
		method, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	p, o, err := h.payments.Pay(r.Context(), principal(r).UserID, id, method)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("payment")
		encodePayment(e, p)
		e.FieldStart("order")
		encodeOrder(e, o)
		e.ObjEnd()
	})
}

// GetPayment handles GET /api/orders/{id}/payments.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.payments.Get(r.Context(), principal(r).UserID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}

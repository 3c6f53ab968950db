package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-commerce/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Cart, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), principal(r).UserID)
	h.writeCart(w, r, c, err)
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), principal(r).UserID)
	h.writeCart(w, r, c, err)
}

// AddCartItem handles POST /api/cart/items.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID int64
		qty       int
	)
	err := decodeObject(r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Int64()
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.AddItem(r.Context(), principal(r).UserID, productID, qty)
	h.writeCart(w, r, c, err)
}

// UpdateCartItem handles PUT /api/cart/items/{productId}.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var qty int
	err = decodeObject(r, false, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), principal(r).UserID, productID, qty)
	h.writeCart(w, r, c, err)
}

// RemoveCartItem handles DELETE /api/cart/items/{productId}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), principal(r).UserID, productID)
	h.writeCart(w, r, c, err)
}

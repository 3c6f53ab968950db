// Package handler exposes the commerce services over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/cart"
	"github.com/xenking/kart-commerce/internal/domain/coupon"
	"github.com/xenking/kart-commerce/internal/domain/order"
	"github.com/xenking/kart-commerce/internal/domain/payment"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/user"
	"github.com/xenking/kart-commerce/internal/idempotency"
)

// ScopeCreateOrder is the API key scope required to place orders.
const ScopeCreateOrder = "create_order"

// Services are the domain services served by the Handler.
type Services struct {
	Products *product.Service
	Users    *user.Service
	Carts    *cart.Service
	Orders   *order.Service
	Payments *payment.Service
	Coupons  *coupon.Service
}

// Config holds the non-service dependencies of the Handler.
type Config struct {
	Auth *auth.Authenticator
	// Idempotency deduplicates order submissions. Nil disables the
	// Idempotency-Key header.
	Idempotency idempotency.Store
}

// Handler serves the /api routes.
type Handler struct {
	products *product.Service
	users    *user.Service
	carts    *cart.Service
	orders   *order.Service
	payments *payment.Service
	coupons  *coupon.Service

	auth *auth.Authenticator
	idem idempotency.Store
}

// New constructs a Handler.
func New(s Services, cfg Config) *Handler {
	return &Handler{
		products: s.Products,
		users:    s.Users,
		carts:    s.Carts,
		orders:   s.Orders,
		payments: s.Payments,
		coupons:  s.Coupons,
		auth:     cfg.Auth,
		idem:     cfg.Idempotency,
	}
}

// Routes registers the API under /api on r.
func (h *Handler) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/users/me", h.GetMe)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Put("/cart/items/{productId}", h.UpdateCartItem)
			r.Delete("/cart/items/{productId}", h.RemoveCartItem)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Get("/orders/{id}/payments", h.GetPayment)
			r.Post("/orders/{id}/payments", h.PayOrder)
			r.With(RequireScope(ScopeCreateOrder)).Post("/orders", h.PlaceOrder)
			r.With(RequireScope(ScopeCreateOrder)).Post("/orders/cart", h.PlaceOrderFromCart)

			r.Get("/coupons", h.ListCoupons)
			r.Get("/coupons/{id}/quote", h.QuoteCoupon)
		})
	})
}

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
)

type payResponse struct {
	Payment *struct {
		ID     int64  `json:"id"`
		Amount string `json:"amount"`
		Status string `json:"status"`
	} `json:"payment"`
	Order orderResponse `json:"order"`
}

type cartResponse struct {
	Items     []orderItemRequest `json:"items"`
	ItemCount int                `json:"itemCount"`
}

func placeOrder(t *testing.T, req orderRequest, headers ...string) *http.Response {
	t.Helper()
	return doAuth(t, http.MethodPost, "/api/orders", req, headers...)
}

func TestPlaceOrder_Auth(t *testing.T) {
	req := orderRequest{Items: []orderItemRequest{{ProductID: 1, Quantity: 1}}}

	expectError(t, do(t, http.MethodPost, "/api/orders", req), http.StatusUnauthorized, "UNAUTHORIZED")
	expectError(t, do(t, http.MethodPost, "/api/orders", req, "api_key", "wrong-key"),
		http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestPlaceOrder_Rejected(t *testing.T) {
	mat := productByName(t, "Desk Mat")

	tests := []struct {
		name   string
		req    orderRequest
		status int
		code   string
	}{
		{
			name:   "EmptyItems",
			req:    orderRequest{Items: []orderItemRequest{}},
			status: http.StatusBadRequest,
			code:   "EMPTY_ORDER_ITEMS",
		},
		{
			name:   "ZeroQuantity",
			req:    orderRequest{Items: []orderItemRequest{{ProductID: mat.ID, Quantity: 0}}},
			status: http.StatusBadRequest,
			code:   "INVALID_QUANTITY",
		},
		{
			name:   "UnknownProduct",
			req:    orderRequest{Items: []orderItemRequest{{ProductID: 999999, Quantity: 1}}},
			status: http.StatusNotFound,
			code:   "PRODUCT_NOT_FOUND",
		},
		{
			name:   "InsufficientStock",
			req:    orderRequest{Items: []orderItemRequest{{ProductID: mat.ID, Quantity: 1_000_000}}},
			status: http.StatusConflict,
			code:   "INSUFFICIENT_STOCK",
		},
		{
			name:   "CouponNotGranted",
			req:    orderRequest{Items: []orderItemRequest{{ProductID: mat.ID, Quantity: 1}}, CouponID: 999999},
			status: http.StatusNotFound,
			code:   "COUPON_GRANT_NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, placeOrder(t, tt.req), tt.status, tt.code)
		})
	}

	// A rejected order never touches stock.
	if got := productByName(t, "Desk Mat").StockQuantity; got != mat.StockQuantity {
		t.Errorf("stock: got %d, want %d", got, mat.StockQuantity)
	}
}

func TestPlaceOrder_ReservesStock(t *testing.T) {
	mat := productByName(t, "Desk Mat")

	// Duplicate lines are merged into one.
	o := expectStatus[orderResponse](t, placeOrder(t, orderRequest{Items: []orderItemRequest{
		{ProductID: mat.ID, Quantity: 1},
		{ProductID: mat.ID, Quantity: 1},
	}}), http.StatusCreated)

	if o.Status != "PENDING" {
		t.Errorf("status: got %q, want PENDING", o.Status)
	}
	if o.OrderNumber == "" {
		t.Error("order number is empty")
	}
	if o.TotalAmount != "38.00" || o.DiscountAmount != "0.00" || o.FinalAmount != "38.00" {
		t.Errorf("amounts: got %s - %s = %s, want 38.00 - 0.00 = 38.00",
			o.TotalAmount, o.DiscountAmount, o.FinalAmount)
	}
	if len(o.Items) != 1 || o.Items[0].Quantity != 2 || o.Items[0].UnitPrice != "19.00" {
		t.Errorf("items: got %+v", o.Items)
	}
	if got := productByName(t, "Desk Mat").StockQuantity; got != mat.StockQuantity-2 {
		t.Errorf("stock: got %d, want %d", got, mat.StockQuantity-2)
	}

	got := expectStatus[orderResponse](t, doAuth(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", o.ID), nil), http.StatusOK)
	if got.OrderNumber != o.OrderNumber {
		t.Errorf("order number: got %q, want %q", got.OrderNumber, o.OrderNumber)
	}
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	mat := productByName(t, "Desk Mat")
	req := orderRequest{Items: []orderItemRequest{{ProductID: mat.ID, Quantity: 1}}}

	first := placeOrder(t, req, "Idempotency-Key", "integration-retry-1")
	created := expectStatus[orderResponse](t, first, http.StatusCreated)

	second := placeOrder(t, req, "Idempotency-Key", "integration-retry-1")
	if second.Header.Get("Idempotent-Replayed") != "true" {
		t.Error("Idempotent-Replayed header not set on replay")
	}
	replayed := expectStatus[orderResponse](t, second, http.StatusOK)

	if replayed.ID != created.ID {
		t.Errorf("replayed order %d, want %d", replayed.ID, created.ID)
	}
	if got := productByName(t, "Desk Mat").StockQuantity; got != mat.StockQuantity-1 {
		t.Errorf("stock: got %d, want %d", got, mat.StockQuantity-1)
	}
}

func TestPlaceOrder_Coupon(t *testing.T) {
	coupons := expectStatus[[]couponResponse](t, doAuth(t, http.MethodGet, "/api/coupons", nil), http.StatusOK)
	var fiveOff couponResponse
	for _, c := range coupons {
		if c.Code == "FIVEOFF" {
			fiveOff = c
		}
	}
	if fiveOff.ID == 0 || fiveOff.Status != "AVAILABLE" {
		t.Fatalf("FIVEOFF grant not available: %+v", coupons)
	}
	keyboard := productByName(t, "Mechanical Keyboard")

	// Below the minimum order amount the coupon is rejected.
	mat := productByName(t, "Desk Mat")
	expectError(t, placeOrder(t, orderRequest{
		Items:    []orderItemRequest{{ProductID: mat.ID, Quantity: 1}},
		CouponID: fiveOff.ID,
	}), http.StatusConflict, "MIN_ORDER_AMOUNT_NOT_MET")

	req := orderRequest{
		Items:    []orderItemRequest{{ProductID: keyboard.ID, Quantity: 1}},
		CouponID: fiveOff.ID,
	}
	o := expectStatus[orderResponse](t, placeOrder(t, req), http.StatusCreated)
	if o.DiscountAmount != "5.00" || o.FinalAmount != "124.00" || o.CouponID != fiveOff.ID {
		t.Errorf("got discount %s final %s coupon %d", o.DiscountAmount, o.FinalAmount, o.CouponID)
	}

	// The grant is spent.
	expectError(t, placeOrder(t, req), http.StatusConflict, "COUPON_NOT_USABLE")
}

func TestOrderLifecycle(t *testing.T) {
	hub := productByName(t, "USB-C Hub")
	req := orderRequest{Items: []orderItemRequest{{ProductID: hub.ID, Quantity: 3}}}

	t.Run("PayConfirms", func(t *testing.T) {
		o := expectStatus[orderResponse](t, placeOrder(t, req), http.StatusCreated)
		path := fmt.Sprintf("/api/orders/%d/payments", o.ID)

		paid := expectStatus[payResponse](t, doAuth(t, http.MethodPost, path, map[string]string{"method": "CARD"}), http.StatusCreated)
		if paid.Order.Status != "CONFIRMED" {
			t.Errorf("status: got %q, want CONFIRMED", paid.Order.Status)
		}
		if paid.Payment == nil || paid.Payment.Amount != o.FinalAmount {
			t.Errorf("payment: got %+v, want amount %s", paid.Payment, o.FinalAmount)
		}

		expectError(t, doAuth(t, http.MethodPost, path, map[string]string{"method": "CARD"}),
			http.StatusConflict, "INVALID_ORDER_STATE")
	})

	t.Run("CancelRestoresStock", func(t *testing.T) {
		before := productByName(t, "USB-C Hub").StockQuantity
		o := expectStatus[orderResponse](t, placeOrder(t, req), http.StatusCreated)
		if got := productByName(t, "USB-C Hub").StockQuantity; got != before-3 {
			t.Fatalf("stock after order: got %d, want %d", got, before-3)
		}

		path := fmt.Sprintf("/api/orders/%d/cancel", o.ID)
		cancelled := expectStatus[orderResponse](t, doAuth(t, http.MethodPost, path, nil), http.StatusOK)
		if cancelled.Status != "CANCELLED" {
			t.Errorf("status: got %q, want CANCELLED", cancelled.Status)
		}
		if got := productByName(t, "USB-C Hub").StockQuantity; got != before {
			t.Errorf("stock after cancel: got %d, want %d", got, before)
		}

		expectError(t, doAuth(t, http.MethodPost, path, nil), http.StatusConflict, "INVALID_ORDER_STATE")
	})

	t.Run("ListByStatus", func(t *testing.T) {
		orders := expectStatus[[]orderResponse](t, doAuth(t, http.MethodGet, "/api/orders?status=cancelled", nil), http.StatusOK)
		if len(orders) == 0 {
			t.Fatal("expected at least one cancelled order")
		}
		for _, o := range orders {
			if o.Status != "CANCELLED" {
				t.Errorf("order %d: status %q", o.ID, o.Status)
			}
		}
	})
}

func TestCartCheckout(t *testing.T) {
	stand := productByName(t, "Laptop Stand")
	mouse := productByName(t, "Wireless Mouse")

	expectStatus[cartResponse](t, doAuth(t, http.MethodDelete, "/api/cart", nil), http.StatusOK)
	expectError(t, doAuth(t, http.MethodPost, "/api/orders/cart", nil), http.StatusBadRequest, "CART_EMPTY")

	for _, it := range []orderItemRequest{
		{ProductID: stand.ID, Quantity: 1},
		{ProductID: mouse.ID, Quantity: 1},
	} {
		expectStatus[cartResponse](t, doAuth(t, http.MethodPost, "/api/cart/items", it), http.StatusOK)
	}
	c := expectStatus[cartResponse](t, doAuth(t, http.MethodPut,
		fmt.Sprintf("/api/cart/items/%d", mouse.ID), map[string]int{"quantity": 2}), http.StatusOK)
	if c.ItemCount != 3 {
		t.Fatalf("item count: got %d, want 3", c.ItemCount)
	}

	// 35.50 + 2 * 49.90
	o := expectStatus[orderResponse](t, doAuth(t, http.MethodPost, "/api/orders/cart", nil), http.StatusCreated)
	if o.TotalAmount != "135.30" {
		t.Errorf("total: got %s, want 135.30", o.TotalAmount)
	}

	c = expectStatus[cartResponse](t, doAuth(t, http.MethodGet, "/api/cart", nil), http.StatusOK)
	if len(c.Items) != 0 {
		t.Errorf("cart not cleared after checkout: %+v", c.Items)
	}
}

// sendConcurrently fires n copies of one authenticated request at once and
// returns the response statuses and error codes.
func sendConcurrently(t *testing.T, n int, method, path string, body any) (statuses []int, codes []string) {
	t.Helper()

	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	reqs := make([]*http.Request, n)
	for i := range reqs {
		var r io.Reader = http.NoBody
		if data != nil {
			r = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, r)
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		req.Header.Set("api_key", testAPIKey)
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		reqs[i] = req
	}

	statuses = make([]int, n)
	codes = make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := httpClient.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
			if resp.StatusCode >= http.StatusBadRequest {
				var e errorResponse
				_ = json.NewDecoder(resp.Body).Decode(&e)
				codes[i] = e.Error
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
	}
	return statuses, codes
}

func TestCartAddItem_ConcurrentAddsAllCount(t *testing.T) {
	mouse := productByName(t, "Wireless Mouse")
	expectStatus[cartResponse](t, doAuth(t, http.MethodDelete, "/api/cart", nil), http.StatusOK)

	const n = 8
	statuses, _ := sendConcurrently(t, n, http.MethodPost, "/api/cart/items",
		orderItemRequest{ProductID: mouse.ID, Quantity: 1})
	for i, s := range statuses {
		if s != http.StatusOK {
			t.Fatalf("add %d: got status %d", i, s)
		}
	}

	c := expectStatus[cartResponse](t, doAuth(t, http.MethodGet, "/api/cart", nil), http.StatusOK)
	if c.ItemCount != n {
		t.Errorf("item count: got %d, want %d", c.ItemCount, n)
	}
	expectStatus[cartResponse](t, doAuth(t, http.MethodDelete, "/api/cart", nil), http.StatusOK)
}

func TestCartCheckout_ConcurrentPlacesOneOrder(t *testing.T) {
	stand := productByName(t, "Laptop Stand")
	expectStatus[cartResponse](t, doAuth(t, http.MethodDelete, "/api/cart", nil), http.StatusOK)
	expectStatus[cartResponse](t, doAuth(t, http.MethodPost, "/api/cart/items",
		orderItemRequest{ProductID: stand.ID, Quantity: 2}), http.StatusOK)
	before := len(expectStatus[[]orderResponse](t, doAuth(t, http.MethodGet, "/api/orders", nil), http.StatusOK))

	const n = 5
	statuses, codes := sendConcurrently(t, n, http.MethodPost, "/api/orders/cart", nil)
	created := 0
	for i, s := range statuses {
		switch {
		case s == http.StatusCreated:
			created++
		case s == http.StatusBadRequest && codes[i] == "CART_EMPTY":
		default:
			t.Errorf("checkout %d: got status %d code %q", i, s, codes[i])
		}
	}
	if created != 1 {
		t.Fatalf("orders created: got %d, want 1", created)
	}

	after := len(expectStatus[[]orderResponse](t, doAuth(t, http.MethodGet, "/api/orders", nil), http.StatusOK))
	if after != before+1 {
		t.Errorf("order count: got %d, want %d", after, before+1)
	}
	if got := productByName(t, "Laptop Stand").StockQuantity; got != stand.StockQuantity-2 {
		t.Errorf("stock: got %d, want %d", got, stand.StockQuantity-2)
	}
}

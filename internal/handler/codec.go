package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/cart"
	"github.com/xenking/kart-commerce/internal/domain/coupon"
	"github.com/xenking/kart-commerce/internal/domain/errs"
	"github.com/xenking/kart-commerce/internal/domain/order"
	"github.com/xenking/kart-commerce/internal/domain/payment"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/user"
	"github.com/xenking/kart-commerce/internal/money"
)

const maxBodyBytes = 1 << 20

const codeInvalidRequest = "INVALID_REQUEST"

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("error")
		e.Str(code)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// fail maps err to a status by its kind. Unclassified errors are logged
// and hidden from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid API key")
		return
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		writeError(w, http.StatusBadRequest, errs.CodeOf(err), err.Error())
	case errs.KindNotFound:
		writeError(w, http.StatusNotFound, errs.CodeOf(err), err.Error())
	case errs.KindConflict:
		writeError(w, http.StatusConflict, errs.CodeOf(err), err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, errs.CodeOf(err), "internal server error")
	}
}

func invalid(format string, args ...any) error {
	return errs.Validation(codeInvalidRequest, format, args...)
}

// readBody returns the request body, or nil when it is empty.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, invalid("read request body: %v", err)
	}
	if len(data) > maxBodyBytes {
		return nil, invalid("request body too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// decodeObject decodes a JSON object body field by field. An empty body is
// an error unless optional is set.
func decodeObject(r *http.Request, optional bool, fn func(d *jx.Decoder, key string) error) error {
	data, err := readBody(r)
	if err != nil {
		return err
	}
	if data == nil {
		if optional {
			return nil
		}
		return invalid("request body is required")
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		if _, ok := errs.As(err); ok {
			return err
		}
		return invalid("invalid request body: %v", err)
	}
	return nil
}

// optionalID decodes an ID that may be null.
func optionalID(d *jx.Decoder) (int64, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int64()
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, invalid("%s must be an RFC 3339 timestamp, got %q", name, raw)
	}
	return t, nil
}

func encodeAmount(e *jx.Encoder, d decimal.Decimal) {
	e.Str(money.Format(d))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeAmount(e, p.Price)
	e.FieldStart("stockQuantity")
	e.Int(p.StockQuantity)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("available")
	e.Bool(p.StockQuantity > 0)
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("phone")
	e.Str(u.Phone)
	e.FieldStart("role")
	e.Str(string(u.Role))
	e.FieldStart("createdAt")
	encodeTime(e, u.CreatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("userId")
	e.Int64(c.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("itemCount")
	e.Int(c.ItemCount())
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.Number)
	e.FieldStart("userId")
	e.Int64(o.UserID)
	e.FieldStart("totalAmount")
	encodeAmount(e, o.TotalAmount)
	e.FieldStart("discountAmount")
	encodeAmount(e, o.DiscountAmount)
	e.FieldStart("finalAmount")
	encodeAmount(e, o.FinalAmount)
	e.FieldStart("status")
	e.Str(string(o.Status))
	if o.CouponID != 0 {
		e.FieldStart("couponId")
		e.Int64(o.CouponID)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Int64(it.ProductID)
		e.FieldStart("productName")
		e.Str(it.ProductName)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		encodeAmount(e, it.UnitPrice)
		e.FieldStart("totalPrice")
		encodeAmount(e, it.TotalPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	if p == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("orderId")
	e.Int64(p.OrderID)
	e.FieldStart("method")
	e.Str(p.Method)
	e.FieldStart("amount")
	encodeAmount(e, p.Amount)
	e.FieldStart("status")
	e.Str(string(p.Status))
	if p.PaidAt != nil {
		e.FieldStart("paidAt")
		encodeTime(e, *p.PaidAt)
	}
	e.ObjEnd()
}

func encodeOwnedCoupon(e *jx.Encoder, o *coupon.Owned) {
	c := &o.Coupon
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	e.FieldStart("discountValue")
	encodeAmount(e, c.DiscountValue)
	e.FieldStart("minOrderAmount")
	encodeAmount(e, c.MinOrderAmount)
	if c.MaxDiscountAmount.Valid {
		e.FieldStart("maxDiscountAmount")
		encodeAmount(e, c.MaxDiscountAmount.Decimal)
	}
	e.FieldStart("validFrom")
	encodeTime(e, c.ValidFrom)
	e.FieldStart("validTo")
	encodeTime(e, c.ValidTo)
	e.FieldStart("status")
	e.Str(string(o.Grant.Status))
	if o.Grant.OrderID != 0 {
		e.FieldStart("orderId")
		e.Int64(o.Grant.OrderID)
	}
	if o.Grant.UsedAt != nil {
		e.FieldStart("usedAt")
		encodeTime(e, *o.Grant.UsedAt)
	}
	e.ObjEnd()
}

package order

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/internal/domain/cart"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/txn"
)

// maxNumberAttempts bounds retries when a generated order number collides.
const maxNumberAttempts = 3

const (
	sourceRequest = "request"
	sourceCart    = "cart"
)

// CouponRedeemer computes and records coupon discounts for a user's grants.
type CouponRedeemer interface {
	// Discount returns the discount for amount without recording usage.
	Discount(ctx context.Context, userID, couponID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// Redeem marks the grant as spent on orderID and bumps coupon usage.
	Redeem(ctx context.Context, userID, couponID, orderID int64) error
}

// PaymentCanceler voids the completed payment of an order, if any.
type PaymentCanceler interface {
	CancelForOrder(ctx context.Context, orderID int64) error
}

// ItemRequest is one requested product line.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order from an explicit
// item list. CouponID 0 means no coupon.
type PlaceOrderRequest struct {
	Items    []ItemRequest
	CouponID int64
}

// Deps are the collaborators of the order Service. Payments, Numbers, Now
// and the telemetry providers are optional.
type Deps struct {
	Orders   Repository
	Products product.Repository
	Carts    cart.Repository
	Coupons  CouponRedeemer
	Payments PaymentCanceler
	Tx       txn.Transactor

	Numbers        *NumberGenerator
	Now            func() time.Time
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service runs the order workflows. Every mutating workflow executes inside
// a single transaction: a failure at any step leaves no order, no stock
// change, no coupon usage and an untouched cart.
type Service struct {
	orders   Repository
	products product.Repository
	carts    cart.Repository
	coupons  CouponRedeemer
	payments PaymentCanceler
	tx       txn.Transactor
	numbers  *NumberGenerator
	now      func() time.Time

	metrics *metrics
	tracer  trace.Tracer
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Numbers == nil {
		d.Numbers = NewNumberGenerator(d.Now)
	}
	if d.Tx == nil {
		d.Tx = txn.NoTx
	}
	if d.MeterProvider == nil {
		d.MeterProvider = metricnoop.NewMeterProvider()
	}
	if d.TracerProvider == nil {
		d.TracerProvider = tracenoop.NewTracerProvider()
	}
	m, err := newMetrics(d.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "init metrics")
	}
	return &Service{
		orders:   d.Orders,
		products: d.Products,
		carts:    d.Carts,
		coupons:  d.Coupons,
		payments: d.Payments,
		tx:       d.Tx,
		numbers:  d.Numbers,
		now:      d.Now,
		metrics:  m,
		tracer:   d.TracerProvider.Tracer(instrumentationName),
	}, nil
}

// PlaceOrder places an order for the requested items. Duplicate product IDs
// are merged by summing their quantities.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("order.request_items", len(req.Items)),
	))
	defer func() { s.finish(ctx, span, sourceRequest, rerr) }()

	if err := validateRequest(userID, req.CouponID); err != nil {
		return nil, err
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}
	return s.placeWithRetry(ctx, userID, req.CouponID, sourceRequest, func(context.Context) ([]ItemRequest, error) {
		return items, nil
	})
}

// PlaceOrderFromCart checks out the user's cart and clears it in the same
// transaction. A missing cart counts as empty.
func (s *Service) PlaceOrderFromCart(ctx context.Context, userID, couponID int64) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrderFromCart", trace.WithAttributes(
		attribute.Int64("user.id", userID),
	))
	defer func() { s.finish(ctx, span, sourceCart, rerr) }()

	if err := validateRequest(userID, couponID); err != nil {
		return nil, err
	}
	return s.placeWithRetry(ctx, userID, couponID, sourceCart, func(ctx context.Context) ([]ItemRequest, error) {
		c, err := s.carts.FindByUserID(ctx, userID)
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrCartEmpty
		}
		if err != nil {
			return nil, errors.Wrap(err, "find cart")
		}
		if c.IsEmpty() {
			return nil, ErrCartEmpty
		}
		reqs := make([]ItemRequest, len(c.Items))
		for i, it := range c.Items {
			reqs[i] = ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		items, err := mergeItems(reqs)
		if err != nil {
			return nil, err
		}

		c.Clear()
		if _, err := s.carts.Save(ctx, c); err != nil {
			return nil, errors.Wrap(err, "clear cart")
		}
		return items, nil
	})
}

func (s *Service) placeWithRetry(
	ctx context.Context,
	userID, couponID int64,
	source string,
	resolve func(ctx context.Context) ([]ItemRequest, error),
) (*Order, error) {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		var o *Order
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			items, err := resolve(ctx)
			if err != nil {
				return err
			}
			o, err = s.place(ctx, userID, couponID, items)
			return err
		})
		if err == nil {
			zctx.From(ctx).Info("Order placed",
				zap.Int64("order_id", o.ID),
				zap.String("order_number", o.Number),
				zap.Int64("user_id", userID),
				zap.String("source", source),
				zap.String("final_amount", o.FinalAmount.StringFixed(2)),
			)
			s.metrics.recordPlaced(ctx, source, o)
			return o, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return nil, err
		}
		zctx.From(ctx).Warn("Order number collision, retrying", zap.Int("attempt", attempt))
	}
	return nil, err
}

// place runs the placement steps inside the caller's transaction.
func (s *Service) place(ctx context.Context, userID, couponID int64, items []ItemRequest) (*Order, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := product.Resolve(ctx, s.products, ids)
	if err != nil {
		return nil, err
	}

	specs := make([]LineItemSpec, len(items))
	for i, it := range items {
		p := products[it.ProductID]
		if !p.IsAvailable(it.Quantity) {
			return nil, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: p.StockQuantity,
			}
		}
		specs[i] = LineItemSpec{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
		}
	}

	o, err := New(userID, specs, s.numbers.Next(), s.now())
	if err != nil {
		return nil, err
	}
	if couponID > 0 {
		discount, err := s.coupons.Discount(ctx, userID, couponID, o.TotalAmount)
		if err != nil {
			return nil, err
		}
		if err := o.ApplyCoupon(couponID, discount); err != nil {
			return nil, err
		}
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	// Ascending product order keeps row locks ordered across concurrent
	// placements.
	byProduct := slices.Clone(items)
	slices.SortFunc(byProduct, func(a, b ItemRequest) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	for _, it := range byProduct {
		n, err := s.products.DecreaseStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "decrease stock of product %d", it.ProductID)
		}
		if n == 0 {
			return nil, &product.InsufficientStockError{
				ProductID: it.ProductID,
				Name:      products[it.ProductID].Name,
				Requested: it.Quantity,
				Available: -1,
			}
		}
	}

	if couponID > 0 {
		if err := s.coupons.Redeem(ctx, userID, couponID, o.ID); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// CancelOrder cancels the user's order, returns every line's quantity to
// stock and voids a completed payment.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("order.id", orderID),
	))
	defer func() { endSpan(span, rerr) }()

	var o *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.LockByUserAndID(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if err := o.Cancel(s.now()); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}
		for _, li := range o.Items {
			if err := s.products.IncreaseStock(ctx, li.ProductID, li.Quantity); err != nil {
				return errors.Wrapf(err, "restock product %d", li.ProductID)
			}
		}
		if s.payments != nil {
			if err := s.payments.CancelForOrder(ctx, o.ID); err != nil {
				return errors.Wrap(err, "cancel payment")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", userID),
		zap.Int("restocked_units", o.ItemCount()),
	)
	return o, nil
}

// ConfirmOrder moves a PENDING order to CONFIRMED.
func (s *Service) ConfirmOrder(ctx context.Context, orderID int64) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
	))
	defer func() { endSpan(span, rerr) }()

	var o *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Confirm(s.now()); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder returns one of the user's orders.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*Order, error) {
	o, err := s.orders.FindByUserAndID(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return o, nil
}

// ListOrders returns the user's orders matching f. f.UserID is overridden
// with userID.
func (s *Service) ListOrders(ctx context.Context, userID int64, f Filter) ([]Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, errInvalidStatus(f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, errInvalidRange
	}
	f.UserID = userID
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func (s *Service) finish(ctx context.Context, span trace.Span, source string, err error) {
	if err != nil {
		s.metrics.recordRejected(ctx, source, err)
	}
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateRequest(userID, couponID int64) error {
	if userID <= 0 {
		return ErrInvalidUser
	}
	if couponID < 0 {
		return ErrInvalidCoupon
	}
	return nil
}

// mergeItems validates items and folds repeated product IDs into a single
// line, keeping first-seen order.
func mergeItems(items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	out := make([]ItemRequest, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if it.ProductID <= 0 {
			return nil, ErrInvalidProduct
		}
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[it.ProductID]; ok {
			if out[i].Quantity > MaxQuantity-it.Quantity {
				return nil, ErrInvalidQuantity
			}
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/internal/domain/order"
	"github.com/xenking/kart-commerce/internal/domain/txn"
	"github.com/xenking/kart-commerce/internal/money"
)

// Service settles orders.
type Service struct {
	payments Repository
	orders   order.Repository
	tx       txn.Transactor
	now      func() time.Time
}

// NewService creates a payment Service. now nil means time.Now.
func NewService(payments Repository, orders order.Repository, tx txn.Transactor, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{payments: payments, orders: orders, tx: tx, now: now}
}

// Pay settles the user's PENDING order with method and confirms it, in one
// transaction. An order whose final amount is zero is confirmed without a
// payment record and the returned Payment is nil.
func (s *Service) Pay(ctx context.Context, userID, orderID int64, method string) (*Payment, *order.Order, error) {
	var (
		p *Payment
		o *order.Order
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.LockByUserAndID(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status != order.StatusPending {
			return &order.InvalidStateError{Status: o.Status, Action: "pay"}
		}
		now := s.now()

		if money.IsPositive(o.FinalAmount) {
			p, err = New(o.ID, method, o.FinalAmount, now)
			if err != nil {
				return err
			}
			if err := p.Complete(now); err != nil {
				return err
			}
			if err := s.payments.Save(ctx, p); err != nil {
				return errors.Wrap(err, "save payment")
			}
		}

		if err := o.Confirm(now); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	lg := zctx.From(ctx)
	if p == nil {
		lg.Info("Order confirmed without payment", zap.Int64("order_id", o.ID))
	} else {
		lg.Info("Payment completed",
			zap.Int64("order_id", o.ID),
			zap.Int64("payment_id", p.ID),
			zap.String("method", p.Method),
			zap.String("amount", money.Format(p.Amount)),
		)
	}
	return p, o, nil
}

// Get returns the payment of one of the user's orders.
func (s *Service) Get(ctx context.Context, userID, orderID int64) (*Payment, error) {
	if _, err := s.orders.FindByUserAndID(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.payments.FindByOrderID(ctx, orderID)
}

// CancelForOrder voids the order's completed payment. Orders without a
// payment, or whose payment is not completed, are left alone. It runs in
// the caller's transaction when there is one.
func (s *Service) CancelForOrder(ctx context.Context, orderID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.FindByOrderID(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "find payment")
		}
		if !p.Status.CanCancel() {
			return nil
		}
		if err := p.Cancel(s.now()); err != nil {
			return err
		}
		if err := s.payments.Save(ctx, p); err != nil {
			return errors.Wrap(err, "save payment")
		}
		return nil
	})
}

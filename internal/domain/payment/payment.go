// Package payment records settlement of orders.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-commerce/internal/domain/errs"
	"github.com/xenking/kart-commerce/internal/money"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// CanCancel reports whether a payment in status s may be cancelled. Only
// completed payments can.
func (s Status) CanCancel() bool {
	return s == StatusCompleted
}

var (
	// ErrNotFound is returned when an order has no payment.
	ErrNotFound = errs.NotFound("PAYMENT_NOT_FOUND", "payment not found")
	// ErrInvalidPayment is returned when payment parameters fail validation.
	ErrInvalidPayment = errs.Validation("INVALID_PAYMENT", "invalid payment")
)

// StateError is returned for an illegal payment status transition.
type StateError struct {
	Status Status
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a payment in status %s", e.Action, e.Status)
}

func (e *StateError) Kind() errs.Kind { return errs.KindConflict }
func (e *StateError) Code() string    { return "INVALID_PAYMENT_STATE" }

// Payment settles an order's final amount.
type Payment struct {
	ID        int64
	OrderID   int64
	Method    string
	Amount    decimal.Decimal
	Status    Status
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a PENDING payment of amount for orderID.
func New(orderID int64, method string, amount decimal.Decimal, now time.Time) (*Payment, error) {
	switch {
	case orderID <= 0:
		return nil, errs.Validation(ErrInvalidPayment.Code(), "order id must be greater than 0")
	case strings.TrimSpace(method) == "":
		return nil, errs.Validation(ErrInvalidPayment.Code(), "payment method is required")
	case !money.IsPositive(amount):
		return nil, errs.Validation(ErrInvalidPayment.Code(), "payment amount must be greater than 0")
	}
	return &Payment{
		OrderID:   orderID,
		Method:    strings.TrimSpace(method),
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Complete settles a PENDING payment at now.
func (p *Payment) Complete(now time.Time) error {
	if p.Status != StatusPending {
		return &StateError{Status: p.Status, Action: "complete"}
	}
	p.Status = StatusCompleted
	p.PaidAt = &now
	p.UpdatedAt = now
	return nil
}

// Fail marks a PENDING payment as failed.
func (p *Payment) Fail(now time.Time) error {
	if p.Status != StatusPending {
		return &StateError{Status: p.Status, Action: "fail"}
	}
	p.Status = StatusFailed
	p.UpdatedAt = now
	return nil
}

// Cancel voids a COMPLETED payment.
func (p *Payment) Cancel(now time.Time) error {
	if !p.Status.CanCancel() {
		return &StateError{Status: p.Status, Action: "cancel"}
	}
	p.Status = StatusCancelled
	p.UpdatedAt = now
	return nil
}

// Repository is the payment store.
type Repository interface {
	// Save inserts the payment when ID is zero and sets ID, otherwise it
	// updates status, PaidAt and UpdatedAt.
	Save(ctx context.Context, p *Payment) error
	// FindByOrderID returns the most recent payment of the order, or
	// ErrNotFound.
	FindByOrderID(ctx context.Context, orderID int64) (*Payment, error)
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-commerce/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, method, amount, status, paid_at, created_at, updated_at`

	insertPaymentSQL = `INSERT INTO payments (order_id, method, amount, status, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	updatePaymentSQL = `UPDATE payments SET status = $2, paid_at = $3, updated_at = $4 WHERE id = $1`

	latestPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY id DESC LIMIT 1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository that uses db.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Save inserts p when it has no ID yet and updates its state otherwise.
func (r *PaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	q := r.db.conn(ctx)
	if p.ID == 0 {
		err := q.QueryRow(ctx, insertPaymentSQL,
			p.OrderID, p.Method, p.Amount, string(p.Status), p.PaidAt, p.CreatedAt, p.UpdatedAt,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("inserting payment for order %d: %w", p.OrderID, err)
		}
		return nil
	}

	tag, err := q.Exec(ctx, updatePaymentSQL, p.ID, string(p.Status), p.PaidAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating payment %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// FindByOrderID returns the most recent payment of orderID.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	rows, err := r.db.conn(ctx).Query(ctx, latestPaymentSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting payment of order %d: %w", orderID, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (payment.Payment, error) {
		var (
			p      payment.Payment
			status string
		)
		err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount, &status, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
		p.Status = payment.Status(status)
		return p, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment of order %d: %w", orderID, err)
	}
	return &p, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-commerce/internal/domain/order"
)

const (
	orderColumns = `id, user_id, order_number, total_amount, discount_amount, final_amount,
		status, coupon_id, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (user_id, order_number, total_amount, discount_amount,
			final_amount, status, coupon_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, product_name,
			quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateOrderSQL = `UPDATE orders SET discount_amount = $2, final_amount = $3, status = $4,
			coupon_id = $5, updated_at = $6
		WHERE id = $1`

	getOrderByIDSQL         = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByUserAndIDSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`
	lockOrderByIDSQL        = getOrderByIDSQL + ` FOR UPDATE`
	lockOrderByUserAndIDSQL = getOrderByUserAndIDSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = 0 OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <= $4)
		ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT order_id, product_id, product_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items live in order_items and are loaded in one query per call.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save inserts a new order with its items or updates the mutable fields of
// an existing one.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	if o.ID != 0 {
		tag, err := r.db.conn(ctx).Exec(ctx, updateOrderSQL,
			o.ID, o.DiscountAmount, o.FinalAmount, string(o.Status), nullID(o.CouponID), o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating order %d: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}
		return nil
	}

	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)
		err := q.QueryRow(ctx, insertOrderSQL,
			o.UserID, o.Number, o.TotalAmount, o.DiscountAmount, o.FinalAmount,
			string(o.Status), nullID(o.CouponID), o.CreatedAt,
		).Scan(&o.ID)
		if err != nil {
			if isViolation(err, uniqueViolation, "orders_order_number_key") {
				return order.ErrDuplicateNumber
			}
			return fmt.Errorf("inserting order %q: %w", o.Number, err)
		}
		o.UpdatedAt = o.CreatedAt

		b := &pgx.Batch{}
		for i, li := range o.Items {
			b.Queue(insertOrderItemSQL,
				o.ID, i, li.ProductID, li.ProductName, li.Quantity, li.UnitPrice, li.TotalPrice)
		}
		if err := sendBatch(ctx, q, b); err != nil {
			return fmt.Errorf("inserting items of order %d: %w", o.ID, err)
		}
		return nil
	})
}

// FindByID returns the order with id.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.one(ctx, getOrderByIDSQL, id)
}

// FindByUserAndID returns the order with id if it belongs to userID.
func (r *OrderRepository) FindByUserAndID(ctx context.Context, userID, id int64) (*order.Order, error) {
	return r.one(ctx, getOrderByUserAndIDSQL, id, userID)
}

// LockByID loads the order with id and locks its row.
func (r *OrderRepository) LockByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.one(ctx, lockOrderByIDSQL, id)
}

// LockByUserAndID loads the user's order and locks its row.
func (r *OrderRepository) LockByUserAndID(ctx context.Context, userID, id int64) (*order.Order, error) {
	return r.one(ctx, lockOrderByUserAndIDSQL, id, userID)
}

// FindByUser returns all orders of userID, newest first.
func (r *OrderRepository) FindByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return r.List(ctx, order.Filter{UserID: userID})
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listOrdersSQL,
		f.UserID, string(f.Status), nullTime(f.From), nullTime(f.To))
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) one(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.db.conn(ctx).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			li      order.LineItem
		)
		if err := rows.Scan(&orderID, &li.ProductID, &li.ProductName, &li.Quantity,
			&li.UnitPrice, &li.TotalPrice); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, li)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		status   string
		couponID *int64
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Number, &o.TotalAmount, &o.DiscountAmount, &o.FinalAmount,
		&status, &couponID, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	if couponID != nil {
		o.CouponID = *couponID
	}
	return o, err
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

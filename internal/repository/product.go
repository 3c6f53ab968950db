package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-commerce/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, stock_quantity, category, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = '' OR lower(category) = lower($1))
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		  AND (NOT $3 OR stock_quantity > 0)
		ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	insertProductSQL = `INSERT INTO products (name, description, price, stock_quantity, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock_quantity = EXCLUDED.stock_quantity,
			category = EXCLUDED.category,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	updateProductSQL = `UPDATE products SET
			name = $2, description = $3, price = $4, stock_quantity = $5, category = $6, updated_at = now()
		WHERE id = $1
		RETURNING id, created_at, updated_at`

	decreaseStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`

	increaseStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns catalog products matching f ordered by ID.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listProductsSQL, f.Category, f.Keyword, f.AvailableOnly)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts p keyed by name when p.ID is zero, otherwise updates the
// product with p.ID.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	var row pgx.Row
	if p.ID == 0 {
		row = r.db.conn(ctx).QueryRow(ctx, insertProductSQL,
			p.Name, p.Description, p.Price, p.StockQuantity, p.Category)
	} else {
		row = r.db.conn(ctx).QueryRow(ctx, updateProductSQL,
			p.ID, p.Name, p.Description, p.Price, p.StockQuantity, p.Category)
	}
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("upserting product %q: %w", p.Name, err)
	}
	return nil
}

// DecreaseStock subtracts qty with a single conditional update.
func (r *ProductRepository) DecreaseStock(ctx context.Context, id int64, qty int) (int64, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, decreaseStockSQL, id, qty)
	if err != nil {
		return 0, fmt.Errorf("decreasing stock of product %d: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// IncreaseStock adds qty back to the product's stock.
func (r *ProductRepository) IncreaseStock(ctx context.Context, id int64, qty int) error {
	tag, err := r.db.conn(ctx).Exec(ctx, increaseStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("increasing stock of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity,
		&p.Category, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

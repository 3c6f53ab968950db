package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-commerce/internal/domain/user"
)

const (
	getUserSQL = `SELECT id, email, name, phone, role, created_at, updated_at FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (email, name, phone, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			role = EXCLUDED.role,
			updated_at = now()
		RETURNING id, created_at, updated_at`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository that uses db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the user with id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := r.db.conn(ctx).QueryRow(ctx, getUserSQL, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	u.Role = user.Role(role)
	return &u, nil
}

// Upsert inserts or updates u keyed by email.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	err := r.db.conn(ctx).QueryRow(ctx, upsertUserSQL, u.Email, u.Name, u.Phone, string(u.Role)).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return nil
}

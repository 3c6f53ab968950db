// Package user holds customer accounts.
package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-commerce/internal/domain/errs"
)

// Role is the customer tier.
type Role string

const (
	RoleGeneral Role = "GENERAL"
	RoleVIP     Role = "VIP"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errs.NotFound("USER_NOT_FOUND", "user not found")
	// ErrInvalidUser is returned when user parameters fail validation.
	ErrInvalidUser = errs.Validation("INVALID_USER", "invalid user")
)

// User is a customer account. Credentials live with the authentication
// collaborator, not here.
type User struct {
	ID        int64
	Email     string
	Name      string
	Phone     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Params holds the input for New.
type Params struct {
	Email string
	Name  string
	Phone string
	Role  Role
}

// New validates p and returns an unsaved user. An empty role means GENERAL.
func New(p Params) (*User, error) {
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return nil, errs.Validation(ErrInvalidUser.Code(), "invalid email %q", p.Email)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, errs.Validation(ErrInvalidUser.Code(), "user name is required")
	}
	if p.Role == "" {
		p.Role = RoleGeneral
	}
	if p.Role != RoleGeneral && p.Role != RoleVIP {
		return nil, errs.Validation(ErrInvalidUser.Code(), "unknown role %q", p.Role)
	}
	return &User{
		Email: strings.ToLower(strings.TrimSpace(p.Email)),
		Name:  p.Name,
		Phone: p.Phone,
		Role:  p.Role,
	}, nil
}

// IsVIP reports whether the user is in the VIP tier.
func (u *User) IsVIP() bool { return u.Role == RoleVIP }

// Repository is the user store.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	// Upsert inserts or updates the user keyed by email and sets u.ID.
	Upsert(ctx context.Context, u *User) error
}

// Service exposes user reads.
type Service struct {
	repo Repository
}

// NewService creates a user Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	return u, nil
}

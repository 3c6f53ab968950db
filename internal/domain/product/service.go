package product

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Service exposes catalog reads and the lookup helpers used by the order
// workflow.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{IDs: []int64{id}}
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return p, nil
}

// List returns catalog products matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	products, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Resolve batch-loads ids and requires every one of them to exist. The
// result is keyed by product ID.
func Resolve(ctx context.Context, repo Repository, ids []int64) (map[int64]Product, error) {
	fetched, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}
	return byID, nil
}

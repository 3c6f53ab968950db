package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/xenking/kart-commerce/internal/domain/product"
)

func (s *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	defer s.lock(ctx)()

	keyword := strings.ToLower(f.Keyword)
	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		switch {
		case f.Category != "" && !strings.EqualFold(p.Category, f.Category):
			continue
		case keyword != "" && !strings.Contains(strings.ToLower(p.Name), keyword):
			continue
		case f.AvailableOnly && p.StockQuantity <= 0:
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	defer s.lock(ctx)()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	defer s.lock(ctx)()

	out := make([]product.Product, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Upsert matches an existing product by name when p.ID is zero, otherwise
// updates the product with p.ID.
func (s *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	defer s.lock(ctx)()

	now := s.now()
	if p.ID == 0 {
		for id, existing := range s.products {
			if existing.Name == p.Name {
				p.ID = id
				break
			}
		}
	}
	if p.ID == 0 {
		p.ID = s.nextID()
		p.CreatedAt = now
	} else {
		existing, ok := s.products[p.ID]
		if !ok {
			return product.ErrNotFound
		}
		p.CreatedAt = existing.CreatedAt
	}
	p.UpdatedAt = now

	s.onRollback(ctx, restore(s.products, p.ID))
	s.products[p.ID] = *p
	return nil
}

func (s *ProductRepository) DecreaseStock(ctx context.Context, id int64, qty int) (int64, error) {
	defer s.lock(ctx)()

	p, ok := s.products[id]
	if !ok || p.StockQuantity < qty {
		return 0, nil
	}
	s.onRollback(ctx, restore(s.products, id))
	p.StockQuantity -= qty
	p.UpdatedAt = s.now()
	s.products[id] = p
	return 1, nil
}

func (s *ProductRepository) IncreaseStock(ctx context.Context, id int64, qty int) error {
	defer s.lock(ctx)()

	p, ok := s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	s.onRollback(ctx, restore(s.products, id))
	p.StockQuantity += qty
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

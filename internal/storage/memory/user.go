package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/user"
)

func (s *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	defer s.lock(ctx)()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

// Upsert matches an existing user by email.
func (s *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	defer s.lock(ctx)()

	now := s.now()
	u.ID = 0
	for id, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			u.ID = id
			u.CreatedAt = existing.CreatedAt
			break
		}
	}
	if u.ID == 0 {
		u.ID = s.nextID()
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.onRollback(ctx, restore(s.users, u.ID))
	s.users[u.ID] = *u
	return nil
}

func (s *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	defer s.lock(ctx)()

	info, ok := s.apikeys[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	info.Scopes = slices.Clone(info.Scopes)
	return &info, nil
}

func (s *APIKeyRepository) Upsert(ctx context.Context, info *auth.APIKeyInfo) error {
	defer s.lock(ctx)()

	if existing, ok := s.apikeys[info.KeyHash]; ok {
		info.ID = existing.ID
	} else {
		info.ID = s.nextID()
	}
	stored := *info
	stored.Scopes = slices.Clone(info.Scopes)
	s.onRollback(ctx, restore(s.apikeys, info.KeyHash))
	s.apikeys[info.KeyHash] = stored
	return nil
}

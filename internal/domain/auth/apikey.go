// Package auth authenticates API keys and carries the resulting principal
// through request contexts.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for a missing, unknown or mismatching key.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a stored API key.
type APIKeyInfo struct {
	ID      int64
	UserID  int64
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	// Upsert stores a key hash for a user, keyed by the hash.
	Upsert(ctx context.Context, info *APIKeyInfo) error
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID int64
	KeyID  int64
	Scopes []string
}

// HasScope reports whether the principal was granted scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// Authenticator verifies raw API keys against their peppered HMAC-SHA256
// hashes.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Hash returns the hex HMAC-SHA256 of rawKey under pepper, the form keys
// are stored in.
func Hash(pepper []byte, rawKey string) string {
	return hex.EncodeToString(sum(pepper, rawKey))
}

func sum(pepper []byte, rawKey string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(rawKey))
	return mac.Sum(nil)
}

// Authenticate resolves rawKey to a Principal. Every failure is reported as
// ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (Principal, error) {
	if rawKey == "" {
		return Principal{}, ErrUnauthorized
	}
	hash := sum(a.pepper, rawKey)

	info, err := a.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return Principal{}, ErrUnauthorized
	}

	// The store might hand back a row whose hash is not the one computed.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return Principal{}, ErrUnauthorized
	}
	if info.UserID <= 0 {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: info.UserID, KeyID: info.ID, Scopes: info.Scopes}, nil
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

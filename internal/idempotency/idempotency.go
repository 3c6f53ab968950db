// Package idempotency deduplicates order submissions that carry the same
// Idempotency-Key.
package idempotency

import (
	"context"
	"strconv"

	"github.com/xenking/kart-commerce/internal/domain/errs"
)

// ErrInFlight is returned when another request holding the same key has not
// finished yet.
var ErrInFlight = errs.Conflict("IDEMPOTENCY_KEY_IN_USE", "a request with this idempotency key is still in progress")

// ErrInvalidKey is returned for an empty or oversized key.
var ErrInvalidKey = errs.Validation("INVALID_IDEMPOTENCY_KEY", "idempotency key must be 1 to 255 characters")

// MaxKeyLength bounds client supplied keys.
const MaxKeyLength = 255

// Store records which keys produced which orders.
type Store interface {
	// Reserve claims key for a new submission. When the key already
	// produced an order, reserved is false and orderID names it. A key
	// claimed by an unfinished request yields ErrInFlight.
	Reserve(ctx context.Context, key string) (orderID int64, reserved bool, err error)
	// Complete binds a reserved key to the order it produced.
	Complete(ctx context.Context, key string, orderID int64) error
	// Release frees a reserved key after the submission failed so that the
	// client may retry with it.
	Release(ctx context.Context, key string) error
}

// Key scopes a client supplied key to a user.
func Key(userID int64, raw string) (string, error) {
	if raw == "" || len(raw) > MaxKeyLength {
		return "", ErrInvalidKey
	}
	return "kart:idem:" + strconv.FormatInt(userID, 10) + ":" + raw, nil
}

const pending = "pending"

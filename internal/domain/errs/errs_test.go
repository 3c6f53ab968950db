package errs

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type stockErr struct{}

func (stockErr) Error() string { return "out of stock" }
func (stockErr) Kind() Kind    { return KindConflict }
func (stockErr) Code() string  { return "INSUFFICIENT_STOCK" }

func TestKindOf(t *testing.T) {
	sentinel := NotFound("ORDER_NOT_FOUND", "order %d not found", 7)

	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
	}{
		{name: "nil", err: nil, wantKind: KindInternal, wantCode: "INTERNAL_ERROR"},
		{name: "plain error", err: errors.New("db down"), wantKind: KindInternal, wantCode: "INTERNAL_ERROR"},
		{name: "sentinel", err: sentinel, wantKind: KindNotFound, wantCode: "ORDER_NOT_FOUND"},
		{name: "wrapped sentinel", err: errors.Wrap(sentinel, "get order"), wantKind: KindNotFound, wantCode: "ORDER_NOT_FOUND"},
		{name: "custom type", err: errors.Wrap(stockErr{}, "place order"), wantKind: KindConflict, wantCode: "INSUFFICIENT_STOCK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantCode, CodeOf(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := Validation("INVALID_USER", "user id must be positive, got %d", -1)
	assert.Equal(t, "user id must be positive, got -1", err.Error())
	assert.Equal(t, "validation", err.Kind().String())
}

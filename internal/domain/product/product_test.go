package product

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-commerce/internal/domain/errs"
)

type mockRepo struct {
	byID   map[int64]Product
	getErr error
}

func (m *mockRepo) List(_ context.Context, _ Filter) ([]Product, error) {
	out := make([]Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, m.getErr
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []int64) ([]Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) Upsert(_ context.Context, _ *Product) error { return nil }

func (m *mockRepo) DecreaseStock(_ context.Context, _ int64, _ int) (int64, error) { return 0, nil }

func (m *mockRepo) IncreaseStock(_ context.Context, _ int64, _ int) error { return nil }

func TestNewProduct(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "valid", params: Params{Name: "Waffle", Price: decimal.NewFromInt(10), StockQuantity: 5}},
		{name: "zero stock is valid", params: Params{Name: "Waffle", Price: decimal.NewFromInt(10)}},
		{name: "blank name", params: Params{Name: "  ", Price: decimal.NewFromInt(10)}, wantErr: true},
		{name: "zero price", params: Params{Name: "Waffle", Price: decimal.Zero}, wantErr: true},
		{name: "price beyond cents", params: Params{Name: "Waffle", Price: decimal.RequireFromString("9.999")}, wantErr: true},
		{name: "price with trailing zeros", params: Params{Name: "Waffle", Price: decimal.RequireFromString("9.9900")}},
		{name: "negative stock", params: Params{Name: "Waffle", Price: decimal.NewFromInt(1), StockQuantity: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProduct(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.KindValidation, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.params.Name, p.Name)
		})
	}
}

func TestIsAvailable(t *testing.T) {
	p := Product{StockQuantity: 5}
	assert.True(t, p.IsAvailable(5))
	assert.True(t, p.IsAvailable(1))
	assert.False(t, p.IsAvailable(6))
}

func TestResolve(t *testing.T) {
	repo := &mockRepo{byID: map[int64]Product{
		1: {ID: 1, Name: "Waffle"},
		2: {ID: 2, Name: "Macaron"},
	}}

	t.Run("all found", func(t *testing.T) {
		got, err := Resolve(context.Background(), repo, []int64{1, 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("missing ids are reported once", func(t *testing.T) {
		_, err := Resolve(context.Background(), repo, []int64{1, 9, 9, 8})
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []int64{9, 8}, nf.IDs)
		assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})

	t.Run("store error is wrapped", func(t *testing.T) {
		_, err := Resolve(context.Background(), &mockRepo{getErr: errors.New("db down")}, []int64{1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "get products")
		assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	})
}

func TestService_Get(t *testing.T) {
	svc := NewService(&mockRepo{byID: map[int64]Product{1: {ID: 1, Name: "Waffle"}}})

	p, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Waffle", p.Name)

	_, err = svc.Get(context.Background(), 2)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product 2 not found", nf.Error())
}

func TestInsufficientStockError_Message(t *testing.T) {
	err := &InsufficientStockError{ProductID: 3, Name: "Macaron", Requested: 3, Available: 2}
	assert.Equal(t, `insufficient stock for product "Macaron" (id 3): requested 3, available 2`, err.Error())

	err.Available = -1
	assert.Equal(t, `insufficient stock for product "Macaron" (id 3): requested 3`, err.Error())
}

package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-commerce/db"
	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/seed"
	"github.com/xenking/kart-commerce/internal/storage/memory"
)

func stores(st *memory.Store) seed.Stores {
	return seed.Stores{
		Products: st.Products(),
		Users:    st.Users(),
		APIKeys:  st.APIKeys(),
		Coupons:  st.Coupons(),
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := memory.New(func() time.Time { return now })
	pepper := []byte("pepper")

	opts := seed.Options{Catalog: db.Products, APIKey: "demo-key", Pepper: pepper, Now: now}
	res, err := seed.Run(ctx, stores(st), opts)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Products)
	assert.Equal(t, 2, res.Coupons)
	assert.Positive(t, res.UserID)

	products, err := st.Products().List(ctx, product.Filter{})
	require.NoError(t, err)
	assert.Len(t, products, 8)

	p, err := auth.NewAuthenticator(st.APIKeys(), pepper).Authenticate(ctx, "demo-key")
	require.NoError(t, err)
	assert.Equal(t, res.UserID, p.UserID)

	grants, err := st.Coupons().ListGrants(ctx, res.UserID)
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	t.Run("Idempotent", func(t *testing.T) {
		again, err := seed.Run(ctx, stores(st), opts)
		require.NoError(t, err)
		assert.Equal(t, res.UserID, again.UserID)

		products, err := st.Products().List(ctx, product.Filter{})
		require.NoError(t, err)
		assert.Len(t, products, 8)

		grants, err := st.Coupons().ListGrants(ctx, res.UserID)
		require.NoError(t, err)
		assert.Len(t, grants, 2)
	})
}

func TestRunBadCatalog(t *testing.T) {
	st := memory.New(nil)
	_, err := seed.Run(context.Background(), stores(st), seed.Options{Catalog: []byte(`{`)})
	require.ErrorContains(t, err, "parse catalog")
}

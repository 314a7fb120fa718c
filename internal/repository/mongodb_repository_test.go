package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/stock"
)

func setupTestDB(t *testing.T) (*ProductRepository, *CartRepository) {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	products := NewProductRepository(db)
	carts := NewCartRepository(db)
	require.NoError(t, EnsureIndexes(ctx, products, carts))

	return products, carts
}

func TestMongoProductRepository(t *testing.T) {
	products, _ := setupTestDB(t)
	ctx := context.Background()

	a := newProduct("A", "Electronics", 30, 5)
	b := newProduct("B", "electronics", 10, 5)
	c := newProduct("C", "Books", 20, 5)
	for _, p := range []*domain.Product{a, b, c} {
		require.NoError(t, products.Insert(ctx, p))
	}

	t.Run("duplicate code rejected by unique index", func(t *testing.T) {
		err := products.Insert(ctx, newProduct("A", "toys", 1, 1))
		assert.ErrorIs(t, err, domain.ErrDuplicateCode)
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := products.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Code)

		_, err = products.FindByID(ctx, "000000000000000000000000")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	t.Run("find by ids skips unknown", func(t *testing.T) {
		got, err := products.FindByIDs(ctx, []string{a.ID, "unknown", c.ID})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("code exists excluding self", func(t *testing.T) {
		exists, err := products.CodeExists(ctx, "A", "")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = products.CodeExists(ctx, "A", a.ID)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("paginate filters and sorts", func(t *testing.T) {
		page, err := products.Paginate(ctx, domain.ProductQuery{
			Filter: domain.ProductFilter{Category: "electronics"},
			Sort:   domain.SortPriceAsc,
			Page:   1,
			Limit:  10,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, page.Total)
		assert.Equal(t, []string{"B", "A"}, codes(page.Items))

		page, err = products.Paginate(ctx, domain.ProductQuery{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 3, page.Total)
		assert.Equal(t, []string{"C"}, codes(page.Items))
	})

	t.Run("update sets only provided fields", func(t *testing.T) {
		title := "Renamed"
		got, err := products.Update(ctx, b.ID, domain.ProductPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 10.0, got.Price)

		code := "A"
		_, err = products.Update(ctx, b.ID, domain.ProductPatch{Code: &code})
		assert.ErrorIs(t, err, domain.ErrDuplicateCode)
	})

	t.Run("decrement stock is conditional", func(t *testing.T) {
		got, err := products.DecrementStock(ctx, c.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Stock)

		_, err = products.DecrementStock(ctx, c.ID, 1)
		assert.ErrorIs(t, err, stock.ErrNoMatch)
	})

	t.Run("concurrent reductions never oversell", func(t *testing.T) {
		p := newProduct("RACE", "tools", 1, 100)
		require.NoError(t, products.Insert(ctx, p))

		var wg sync.WaitGroup
		var succeeded atomic.Int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := products.DecrementStock(ctx, p.ID, 20); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 5, succeeded.Load())
		final, err := products.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, final.Stock)
	})

	t.Run("delete returns removed product", func(t *testing.T) {
		removed, err := products.Delete(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", removed.Code)

		_, err = products.Delete(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})
}

func TestMongoCartRepository(t *testing.T) {
	_, carts := setupTestDB(t)
	ctx := context.Background()

	cart, err := carts.Create(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	t.Run("save bumps version", func(t *testing.T) {
		cart.Items = []domain.CartItem{{ProductID: "p1", Quantity: 3}}
		require.NoError(t, carts.Save(ctx, cart))
		assert.EqualValues(t, 2, cart.Version)

		got, err := carts.Get(ctx, cart.ID)
		require.NoError(t, err)
		assert.Equal(t, cart.Items, got.Items)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale := &domain.Cart{ID: cart.ID, Version: 1}
		assert.ErrorIs(t, carts.Save(ctx, stale), domain.ErrConflict)
	})

	t.Run("unknown cart", func(t *testing.T) {
		_, err := carts.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)

		assert.ErrorIs(t, carts.Save(ctx, &domain.Cart{ID: "missing", Version: 1}), domain.ErrCartNotFound)
	})

	t.Run("list and delete", func(t *testing.T) {
		all, err := carts.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		removed, err := carts.Delete(ctx, cart.ID)
		require.NoError(t, err)
		assert.Equal(t, cart.ID, removed.ID)

		_, err = carts.Delete(ctx, cart.ID)
		assert.ErrorIs(t, err, domain.ErrCartNotFound)
	})
}

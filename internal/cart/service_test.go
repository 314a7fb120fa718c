package cart

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/repository"
)

type fixture struct {
	svc     *Service
	catalog *catalog.Service
	carts   *repository.MemoryCartStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	products := catalog.NewService(repository.NewMemoryProductStore(), nil, logger.Nop(), catalog.Settings{})
	carts := repository.NewMemoryCartStore()
	return &fixture{
		svc:     NewService(carts, products, nil, logger.Nop()),
		catalog: products,
		carts:   carts,
	}
}

func (f *fixture) product(t *testing.T, code string, price float64, stockQty int, status bool) *domain.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), domain.ProductInput{
		Title:       "Product " + code,
		Description: "About " + code,
		Code:        code,
		Price:       &price,
		Status:      &status,
		Stock:       &stockQty,
		Category:    "Audio",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) cart(t *testing.T) string {
	t.Helper()
	c, err := f.svc.Create(context.Background())
	require.NoError(t, err)
	return c.ID
}

func qty(v float64) *float64 { return &v }

func TestCreate_EmptyCart(t *testing.T) {
	f := setup(t)

	c, err := f.svc.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Empty(t, c.Items)
	assert.NotNil(t, c.Items)
	assert.Equal(t, 0, c.TotalProducts)
}

func TestAddItem_MergesQuantity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 10, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, p.ID, 2)
	require.NoError(t, err)
	c, err := f.svc.AddItem(ctx, cartID, p.ID, 3)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, p.ID, c.Items[0].Product.ID)
	assert.Equal(t, 5, c.TotalProducts)
	assert.Equal(t, 1, c.UniqueProducts)
}

func TestAddItem_SecondAddExceedsStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	cartID := f.cart(t)

	c, err := f.svc.AddItem(ctx, cartID, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Items[0].Quantity)

	_, err = f.svc.AddItem(ctx, cartID, p.ID, 3)
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)

	c, err = f.svc.Get(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestAddItem_Failures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inactive := f.product(t, "OFF", 10, 5, false)
	soldOut := f.product(t, "ZERO", 10, 0, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.svc.AddItem(ctx, cartID, inactive.ID, 1)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	_, err = f.svc.AddItem(ctx, cartID, soldOut.ID, 1)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	_, err = f.svc.AddItem(ctx, cartID, inactive.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.AddItem(ctx, "no-cart", inactive.ID, 1)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestAddItem_ExtremeQuantities(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	big := f.product(t, "BIG", 1, math.MaxInt, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, p.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, cartID, big.ID, math.MaxInt32)
	require.NoError(t, err)

	tests := []struct {
		name      string
		productID string
		quantity  int
		want      error
	}{
		{"max int on top of an existing row", p.ID, math.MaxInt, domain.ErrValidation},
		{"just above the request cap", p.ID, math.MaxInt32 + 1, domain.ErrValidation},
		{"request cap above stock", p.ID, math.MaxInt32, domain.ErrInsufficientStock},
		{"min int", p.ID, math.MinInt, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItem(ctx, cartID, tt.productID, tt.quantity)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("merged quantity on huge stock stays positive", func(t *testing.T) {
		c, err := f.svc.AddItem(ctx, cartID, big.ID, math.MaxInt32)
		require.NoError(t, err)
		for _, item := range c.Items {
			assert.Positive(t, item.Quantity)
		}
		assert.Equal(t, 2*math.MaxInt32, c.Items[1].Quantity)
	})

	c, err := f.svc.Get(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[0].Quantity)

	total, err := f.svc.Total(ctx, cartID)
	require.NoError(t, err)
	assert.Positive(t, total.Total)
	assert.Equal(t, 1+2*math.MaxInt32, total.TotalItemCount)
}

func TestCheckMerged_NoOverflow(t *testing.T) {
	p := domain.Product{ID: "p", Title: "P", Status: true, Stock: 5}

	err := checkMerged(p, math.MaxInt, 1)
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, math.MaxInt, stockErr.Requested)

	assert.NoError(t, checkMerged(p, 4, 1))
	assert.ErrorIs(t, checkMerged(p, 4, 2), domain.ErrInsufficientStock)
}

func TestRemoveItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, "A", 1, 5, true)
	b := f.product(t, "B", 1, 5, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, a.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, cartID, b.ID, 1)
	require.NoError(t, err)

	c, err := f.svc.RemoveItem(ctx, cartID, a.ID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, b.ID, c.Items[0].ProductID)

	// Absent product is a no-op.
	c, err = f.svc.RemoveItem(ctx, cartID, a.ID)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
}

func TestUpdateItemQuantity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	other := f.product(t, "P2", 10, 5, true)
	inactive := f.product(t, "OFF", 10, 5, false)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, p.ID, 2)
	require.NoError(t, err)

	t.Run("absolute value replaces", func(t *testing.T) {
		c, err := f.svc.UpdateItemQuantity(ctx, cartID, p.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, c.Items[0].Quantity)
	})

	t.Run("above stock fails", func(t *testing.T) {
		_, err := f.svc.UpdateItemQuantity(ctx, cartID, p.ID, 6)
		var stockErr *domain.StockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 6, stockErr.Requested)
	})

	t.Run("product not in cart", func(t *testing.T) {
		_, err := f.svc.UpdateItemQuantity(ctx, cartID, other.ID, 1)
		assert.ErrorIs(t, err, domain.ErrItemNotInCart)
	})

	t.Run("membership is checked before availability", func(t *testing.T) {
		_, err := f.svc.UpdateItemQuantity(ctx, cartID, inactive.ID, 1)
		assert.ErrorIs(t, err, domain.ErrItemNotInCart)
		assert.NotErrorIs(t, err, domain.ErrUnavailable)
	})

	t.Run("quantity above the request cap", func(t *testing.T) {
		_, err := f.svc.UpdateItemQuantity(ctx, cartID, p.ID, math.MaxInt)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("zero equals remove", func(t *testing.T) {
		updated, err := f.svc.UpdateItemQuantity(ctx, cartID, p.ID, 0)
		require.NoError(t, err)

		removed, err := f.svc.RemoveItem(ctx, cartID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, removed.Items, updated.Items)
		assert.Empty(t, updated.Items)
	})
}

func TestReplaceItems(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, "A", 2, 5, true)
	b := f.product(t, "B", 3, 5, true)
	off := f.product(t, "OFF", 3, 5, false)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, b.ID, 1)
	require.NoError(t, err)

	t.Run("duplicates are merged in first-seen order", func(t *testing.T) {
		c, err := f.svc.ReplaceItems(ctx, cartID, []domain.CartItemInput{
			{ProductID: a.ID, Quantity: qty(1)},
			{ProductID: b.ID, Quantity: qty(2)},
			{ProductID: a.ID, Quantity: qty(2)},
		})
		require.NoError(t, err)
		require.Len(t, c.Items, 2)
		assert.Equal(t, a.ID, c.Items[0].ProductID)
		assert.Equal(t, 3, c.Items[0].Quantity)
		assert.Equal(t, b.ID, c.Items[1].ProductID)
		assert.Equal(t, 2, c.Items[1].Quantity)
	})

	before, err := f.svc.Get(ctx, cartID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		items []domain.CartItemInput
		want  error
	}{
		{"missing product ref", []domain.CartItemInput{{Quantity: qty(1)}}, domain.ErrValidation},
		{"missing quantity", []domain.CartItemInput{{ProductID: a.ID}}, domain.ErrValidation},
		{"fractional quantity", []domain.CartItemInput{{ProductID: a.ID, Quantity: qty(1.5)}}, domain.ErrValidation},
		{"zero quantity", []domain.CartItemInput{{ProductID: a.ID, Quantity: qty(0)}}, domain.ErrValidation},
		{"quantity above the request cap", []domain.CartItemInput{{ProductID: a.ID, Quantity: qty(math.MaxInt32 + 1)}}, domain.ErrValidation},
		{"quantity at the request cap above stock", []domain.CartItemInput{{ProductID: a.ID, Quantity: qty(math.MaxInt32)}}, domain.ErrInsufficientStock},
		{"unknown product", []domain.CartItemInput{{ProductID: a.ID, Quantity: qty(1)}, {ProductID: "missing", Quantity: qty(1)}}, domain.ErrProductNotFound},
		{"inactive product", []domain.CartItemInput{{ProductID: off.ID, Quantity: qty(1)}}, domain.ErrUnavailable},
		{"merged quantity above stock", []domain.CartItemInput{{ProductID: a.ID, Quantity: qty(3)}, {ProductID: a.ID, Quantity: qty(3)}}, domain.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ReplaceItems(ctx, cartID, tt.items)
			assert.ErrorIs(t, err, tt.want)

			after, err := f.svc.Get(ctx, cartID)
			require.NoError(t, err)
			assert.Equal(t, before.Items, after.Items, "cart must be untouched")
		})
	}

	t.Run("stock error names the offending product", func(t *testing.T) {
		_, err := f.svc.ReplaceItems(ctx, cartID, []domain.CartItemInput{{ProductID: b.ID, Quantity: qty(9)}})
		var stockErr *domain.StockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, b.Title, stockErr.ProductTitle)
		assert.Equal(t, 5, stockErr.Available)
		assert.Equal(t, 9, stockErr.Requested)
	})

	t.Run("empty list empties the cart", func(t *testing.T) {
		c, err := f.svc.ReplaceItems(ctx, cartID, nil)
		require.NoError(t, err)
		assert.Empty(t, c.Items)
	})
}

func TestClear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, p.ID, 2)
	require.NoError(t, err)

	c, err := f.svc.Clear(ctx, cartID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, cartID, c.ID)
}

func TestTotal_Linear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, "A", 0.1, 50, true)
	b := f.product(t, "B", 19.99, 50, true)
	cartID := f.cart(t)

	prev, err := f.svc.Total(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, prev.Total)

	steps := []struct {
		p *domain.Product
		q int
	}{{a, 3}, {b, 2}, {a, 7}}
	for _, step := range steps {
		_, err := f.svc.AddItem(ctx, cartID, step.p.ID, step.q)
		require.NoError(t, err)

		got, err := f.svc.Total(ctx, cartID)
		require.NoError(t, err)
		assert.InDelta(t, prev.Total+float64(step.q)*step.p.Price, got.Total, 1e-9)
		prev = got
	}
	assert.Equal(t, 40.98, prev.Total)
	assert.Equal(t, 12, prev.TotalItemCount)
	assert.Equal(t, 2, prev.UniqueItemCount)
	assert.Equal(t, cartID, prev.CartID)
}

func TestDeletedProduct_DanglingReference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	keep := f.product(t, "KEEP", 10, 5, true)
	gone := f.product(t, "GONE", 7, 5, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, keep.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, cartID, gone.ID, 1)
	require.NoError(t, err)

	_, err = f.catalog.Delete(ctx, gone.ID)
	require.NoError(t, err)

	c, err := f.svc.Get(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, gone.ID, c.Items[1].ProductID)
	assert.Nil(t, c.Items[1].Product)

	total, err := f.svc.Total(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, total.Total)
	assert.Equal(t, 2, total.UniqueItemCount)
	assert.Equal(t, 3, total.TotalItemCount)

	report, err := f.svc.ValidateAvailability(ctx, cartID)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.UnavailableItems, 1)
	assert.Equal(t, gone.ID, report.UnavailableItems[0].ProductID)
	assert.Equal(t, 0, report.UnavailableItems[0].Available)
}

func TestValidateAvailability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	cartID := f.cart(t)

	_, err := f.svc.AddItem(ctx, cartID, p.ID, 4)
	require.NoError(t, err)

	report, err := f.svc.ValidateAvailability(ctx, cartID)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Empty(t, report.UnavailableItems)

	_, err = f.catalog.ReduceStock(ctx, p.ID, 3)
	require.NoError(t, err)

	report, err = f.svc.ValidateAvailability(ctx, cartID)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.UnavailableItems, 1)
	item := report.UnavailableItems[0]
	assert.Equal(t, p.Title, item.ProductTitle)
	assert.Equal(t, 4, item.Requested)
	assert.Equal(t, 2, item.Available)
	assert.True(t, item.Status)
}

func TestDeleteAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	first := f.cart(t)
	second := f.cart(t)

	_, err := f.svc.AddItem(ctx, first, p.ID, 1)
	require.NoError(t, err)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p.ID, all[0].Items[0].Product.ID)

	removed, err := f.svc.Delete(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "cart deleted", removed.Message)
	assert.Equal(t, second, removed.DeletedCart.ID)

	_, err = f.svc.Get(ctx, second)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = f.svc.Delete(ctx, second)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestMergeItems(t *testing.T) {
	got := MergeItems([]domain.CartItem{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 4},
		{ProductID: "c", Quantity: 1},
		{ProductID: "a", Quantity: 1},
	})
	assert.Equal(t, []domain.CartItem{
		{ProductID: "b", Quantity: 5},
		{ProductID: "a", Quantity: 3},
		{ProductID: "c", Quantity: 1},
	}, got)
}

// conflictingRepo loses the version race a fixed number of times.
type conflictingRepo struct {
	Repository
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (r *conflictingRepo) Save(ctx context.Context, c *domain.Cart) error {
	r.mu.Lock()
	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrConflict
	}
	r.mu.Unlock()
	return r.Repository.Save(ctx, c)
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	cartID := f.cart(t)

	repo := &conflictingRepo{Repository: f.carts, conflicts: 2}
	svc := NewService(repo, f.catalog, nil, logger.Nop())

	c, err := svc.AddItem(ctx, cartID, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, 3, repo.saves)

	repo.conflicts = maxSaveAttempts
	_, err = svc.AddItem(ctx, cartID, p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestConcurrentAdds_NeverExceedStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)
	cartID := f.cart(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.AddItem(ctx, cartID, p.ID, 1)
		}()
	}
	wg.Wait()

	c, err := f.svc.Get(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.LessOrEqual(t, c.Items[0].Quantity, 5)
}

func TestGet_ReadsThroughRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := setup(t)
	svc := NewService(f.carts, f.catalog, cache.NewRedisCache(client, cache.DefaultTTL), logger.Nop())
	ctx := context.Background()
	p := f.product(t, "P1", 10, 5, true)

	created, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, created.ID, p.ID, 2)
	require.NoError(t, err)
	assert.True(t, mr.Exists("cart:"+created.ID))

	c, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Items[0].Quantity)

	// Writes refresh the cached copy, so reads never lag behind.
	_, err = svc.UpdateItemQuantity(ctx, created.ID, p.ID, 4)
	require.NoError(t, err)
	c, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)

	_, err = svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

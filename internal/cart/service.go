// Package cart owns cart contents: every mutation checks stock against the
// catalog, collapses duplicate product rows and returns the populated cart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/stock"
)

// maxSaveAttempts bounds the read-check-write loop when another request
// saved the same cart in between.
const maxSaveAttempts = 3

const cacheTimeout = time.Second

// maxItemQuantity caps a single request quantity.
const maxItemQuantity = math.MaxInt32

type Repository interface {
	Create(ctx context.Context) (*domain.Cart, error)
	Get(ctx context.Context, id string) (*domain.Cart, error)
	List(ctx context.Context) ([]domain.Cart, error)
	// Save writes cart if its version is still current, see domain.ErrConflict.
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, id string) (*domain.Cart, error)
}

// ProductReader is the catalog read path used to check stock and populate
// carts. catalog.Service satisfies it.
type ProductReader interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Product, error)
}

type Service struct {
	repo     Repository
	products ProductReader
	cache    cache.CartCache
	log      *logger.Logger
	sfg      singleflight.Group // Prevents cache stampede
}

// NewService wires the aggregator. cartCache may be nil.
func NewService(repo Repository, products ProductReader, cartCache cache.CartCache, log *logger.Logger) *Service {
	if cartCache == nil {
		cartCache = noCache{}
	}
	return &Service{
		repo:     repo,
		products: products,
		cache:    cartCache,
		log:      log.With("component", "CartAggregator"),
	}
}

func (s *Service) Create(ctx context.Context) (*domain.PopulatedCart, error) {
	cart, err := s.repo.Create(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("cart created", "cartID", cart.ID)
	return domain.Populate(cart, nil), nil
}

func (s *Service) List(ctx context.Context) ([]*domain.PopulatedCart, error) {
	carts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, c := range carts {
		for _, item := range c.Items {
			if _, ok := seen[item.ProductID]; !ok {
				seen[item.ProductID] = struct{}{}
				ids = append(ids, item.ProductID)
			}
		}
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.PopulatedCart, 0, len(carts))
	for i := range carts {
		out = append(out, domain.Populate(&carts[i], products))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, cartID string) (*domain.PopulatedCart, error) {
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, cart)
}

// AddItem adds quantity units of productID, merging into an existing row.
// The stock check covers the merged quantity.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.PopulatedCart, error) {
	if quantity < 1 || quantity > maxItemQuantity {
		return nil, domain.NewValidationError("quantity", "must be a positive integer")
	}

	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		product, err := s.products.Get(ctx, productID)
		if err != nil {
			return err
		}

		existing := 0
		idx := cart.Find(productID)
		if idx >= 0 {
			existing = cart.Items[idx].Quantity
		}
		if err := checkMerged(*product, existing, quantity); err != nil {
			return err
		}

		if idx >= 0 {
			cart.Items[idx].Quantity += quantity
		} else {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: quantity})
		}
		return nil
	})
}

// RemoveItem drops the row for productID. Removing an absent product is not
// an error.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (*domain.PopulatedCart, error) {
	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		if idx := cart.Find(productID); idx >= 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		}
		return nil
	})
}

// UpdateItemQuantity sets an absolute quantity. Zero or less removes the row.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.PopulatedCart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, cartID, productID)
	}
	if quantity > maxItemQuantity {
		return nil, domain.NewValidationError("quantity", "must be a positive integer")
	}

	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		product, err := s.products.Get(ctx, productID)
		if err != nil {
			return err
		}
		idx := cart.Find(productID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", domain.ErrItemNotInCart, productID)
		}
		if err := stock.Check(*product, quantity); err != nil {
			return err
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
}

// ReplaceItems swaps the whole item sequence in a single write. Duplicates in
// items are merged first and the merged quantities are checked; the first
// failing item aborts the call with the cart untouched.
func (s *Service) ReplaceItems(ctx context.Context, cartID string, items []domain.CartItemInput) (*domain.PopulatedCart, error) {
	next, err := toCartItems(items)
	if err != nil {
		return nil, err
	}
	next = MergeItems(next)

	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		ids := make([]string, 0, len(next))
		for _, item := range next {
			ids = append(ids, item.ProductID)
		}
		products, err := s.products.GetMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, item := range next {
			product, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
			}
			if err := stock.Check(*product, item.Quantity); err != nil {
				return err
			}
		}
		cart.Items = append([]domain.CartItem{}, next...)
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, cartID string) (*domain.PopulatedCart, error) {
	return s.mutate(ctx, cartID, func(cart *domain.Cart) error {
		cart.Items = []domain.CartItem{}
		return nil
	})
}

// Delete destroys the cart and returns what it held.
func (s *Service) Delete(ctx context.Context, cartID string) (*domain.DeletedCart, error) {
	removed, err := s.repo.Delete(ctx, cartID)
	if err != nil {
		return nil, err
	}
	s.log.Info("cart deleted", "cartID", cartID)
	s.invalidate(ctx, cartID)
	return &domain.DeletedCart{Message: "cart deleted", DeletedCart: removed}, nil
}

// Total prices every row whose product still exists. Counts include rows
// pointing at deleted products.
func (s *Service) Total(ctx context.Context, cartID string) (*domain.CartTotal, error) {
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	products, err := s.products.GetMany(ctx, productIDs(cart))
	if err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		line := decimal.NewFromFloat(product.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}

	return &domain.CartTotal{
		CartID:          cart.ID,
		Total:           sum.InexactFloat64(),
		TotalItemCount:  cart.TotalProducts(),
		UniqueItemCount: len(cart.Items),
		Items:           len(cart.Items),
	}, nil
}

// ValidateAvailability reports every row the catalog can no longer satisfy.
// Rows pointing at deleted products are reported with nothing available.
func (s *Service) ValidateAvailability(ctx context.Context, cartID string) (*domain.AvailabilityReport, error) {
	cart, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	products, err := s.products.GetMany(ctx, productIDs(cart))
	if err != nil {
		return nil, err
	}

	report := &domain.AvailabilityReport{UnavailableItems: []domain.UnavailableItem{}}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			report.UnavailableItems = append(report.UnavailableItems, domain.UnavailableItem{
				ProductID: item.ProductID,
				Requested: item.Quantity,
			})
			continue
		}
		if stock.CanReserve(*product, item.Quantity) {
			continue
		}
		report.UnavailableItems = append(report.UnavailableItems, domain.UnavailableItem{
			ProductID:    product.ID,
			ProductTitle: product.Title,
			Requested:    item.Quantity,
			Available:    product.Stock,
			Status:       product.Status,
		})
	}
	report.IsValid = len(report.UnavailableItems) == 0
	return report, nil
}

// MergeItems collapses rows sharing a product into the first such row,
// summing quantities. Order of first appearance is kept.
func MergeItems(items []domain.CartItem) []domain.CartItem {
	merged := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// mutate runs fn against the latest stored cart and saves the result,
// retrying from a fresh read when the save lost a version race. fn must
// leave the cart alone when it returns an error.
func (s *Service) mutate(ctx context.Context, cartID string, fn func(*domain.Cart) error) (*domain.PopulatedCart, error) {
	var cart *domain.Cart
	for attempt := 1; ; attempt++ {
		current, err := s.repo.Get(ctx, cartID)
		if err != nil {
			return nil, err
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		current.Items = MergeItems(current.Items)

		err = s.repo.Save(ctx, current)
		if err == nil {
			cart = current
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxSaveAttempts {
			s.log.Warn("save cart failed", "cartID", cartID, "attempt", attempt, "error", err)
			return nil, err
		}
		s.log.Debug("cart changed concurrently, retrying", "cartID", cartID, "attempt", attempt)
	}

	s.store(ctx, cart)
	return s.populate(ctx, cart)
}

// load reads a cart through the cache.
func (s *Service) load(ctx context.Context, cartID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(cartID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", "cartID", cartID, "error", err)
		}

		cart, err = s.repo.Get(ctx, cartID)
		if err != nil {
			return nil, err
		}
		s.store(ctx, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers may modify the cart; singleflight shares one value.
	shared := v.(*domain.Cart)
	cart := *shared
	cart.Items = append([]domain.CartItem{}, shared.Items...)
	return &cart, nil
}

func (s *Service) store(ctx context.Context, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cart); err != nil {
		s.log.Warn("cache set error", "cartID", cart.ID, "error", err)
		s.invalidate(ctx, cart.ID)
	}
}

func (s *Service) invalidate(ctx context.Context, cartID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		s.log.Warn("cache invalidate error", "cartID", cartID, "error", err)
	}
}

func (s *Service) populate(ctx context.Context, cart *domain.Cart) (*domain.PopulatedCart, error) {
	products, err := s.products.GetMany(ctx, productIDs(cart))
	if err != nil {
		return nil, err
	}
	return domain.Populate(cart, products), nil
}

func productIDs(cart *domain.Cart) []string {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// checkMerged checks that existing units already in the cart plus quantity
// more fit the product's stock, without computing a sum that can overflow.
func checkMerged(p domain.Product, existing, quantity int) error {
	if err := stock.Check(p, quantity); err != nil {
		return err
	}
	if existing > p.Stock-quantity {
		requested := math.MaxInt
		if existing <= math.MaxInt-quantity {
			requested = existing + quantity
		}
		return &domain.StockError{
			ProductID:    p.ID,
			ProductTitle: p.Title,
			Available:    p.Stock,
			Requested:    requested,
		}
	}
	return nil
}

// toCartItems checks the shape of a replace request before anything is read.
func toCartItems(items []domain.CartItemInput) ([]domain.CartItem, error) {
	out := make([]domain.CartItem, 0, len(items))
	for i, in := range items {
		field := fmt.Sprintf("products[%d]", i)
		productID := strings.TrimSpace(in.ProductID)
		if productID == "" {
			return nil, domain.NewValidationError(field+".product", "is required")
		}
		if in.Quantity == nil {
			return nil, domain.NewValidationError(field+".quantity", "is required")
		}
		q := *in.Quantity
		if q != math.Trunc(q) || q < 1 || q > maxItemQuantity {
			return nil, domain.NewValidationError(field+".quantity", "must be a positive integer")
		}
		out = append(out, domain.CartItem{ProductID: productID, Quantity: int(q)})
	}
	return out, nil
}

type noCache struct{}

func (noCache) Get(context.Context, string) (*domain.Cart, error) { return nil, cache.ErrCacheMiss }
func (noCache) Set(context.Context, *domain.Cart) error           { return nil }
func (noCache) Delete(context.Context, string) error              { return nil }

package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/stock"
)

// MemoryProductStore keeps products in process. It backs STORE_DRIVER=memory
// and the service tests.
type MemoryProductStore struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	order    []string // insertion order
}

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		products: make(map[string]*domain.Product),
	}
}

func (s *MemoryProductStore) Insert(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.Code == p.Code {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, p.Code)
		}
	}

	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}

	stored := cloneProduct(*p)
	s.products[p.ID] = &stored
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryProductStore) FindByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	out := cloneProduct(*p)
	return &out, nil
}

func (s *MemoryProductStore) FindByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, exists := s.products[id]; exists {
			result = append(result, cloneProduct(*p))
		}
	}
	return result, nil
}

func (s *MemoryProductStore) CodeExists(_ context.Context, code, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, p := range s.products {
		if p.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryProductStore) Paginate(_ context.Context, q domain.ProductQuery) (*domain.ProductPage, error) {
	s.mu.RLock()
	matched := make([]domain.Product, 0, len(s.order))
	for _, id := range s.order {
		p := s.products[id]
		if matchesFilter(p, q.Filter) {
			matched = append(matched, cloneProduct(*p))
		}
	}
	s.mu.RUnlock()

	switch q.Sort {
	case domain.SortPriceAsc:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price < matched[j].Price })
	case domain.SortPriceDesc:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price > matched[j].Price })
	}

	page := &domain.ProductPage{Items: []domain.Product{}, Total: int64(len(matched))}
	start := q.Skip()
	if start >= int64(len(matched)) {
		return page, nil
	}
	end := start + int64(q.Limit)
	if q.Limit <= 0 || end > int64(len(matched)) {
		end = int64(len(matched))
	}
	page.Items = matched[start:end]
	return page, nil
}

func (s *MemoryProductStore) Update(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	if patch.Code != nil {
		for otherID, other := range s.products {
			if otherID != id && other.Code == *patch.Code {
				return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateCode, *patch.Code)
			}
		}
	}

	patch.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	out := cloneProduct(*p)
	return &out, nil
}

func (s *MemoryProductStore) Delete(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	delete(s.products, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return p, nil
}

// DecrementStock checks and reduces under the write lock, so it is as atomic
// as the Mongo conditional update.
func (s *MemoryProductStore) DecrementStock(_ context.Context, id string, quantity int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return nil, stock.ErrNoMatch
	}
	reduced, err := stock.Reduce(*p, quantity)
	if err != nil {
		return nil, stock.ErrNoMatch
	}
	reduced.UpdatedAt = time.Now().UTC()
	*p = reduced
	out := cloneProduct(reduced)
	return &out, nil
}

func matchesFilter(p *domain.Product, f domain.ProductFilter) bool {
	if f.Text != "" {
		text := strings.ToLower(f.Text)
		if !containsFold(p.Title, text) && !containsFold(p.Description, text) && !containsFold(p.Category, text) {
			return false
		}
	}
	if f.Category != "" && !containsFold(p.Category, strings.ToLower(f.Category)) {
		return false
	}
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	return true
}

func containsFold(s, lowerSubstr string) bool {
	return strings.Contains(strings.ToLower(s), lowerSubstr)
}

func cloneProduct(p domain.Product) domain.Product {
	p.Thumbnails = append([]string{}, p.Thumbnails...)
	return p
}

// MemoryCartStore keeps carts in process with the same version check as the
// Mongo repository.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
	order []string
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{
		carts: make(map[string]*domain.Cart),
	}
}

func (s *MemoryCartStore) Create(_ context.Context) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cart := &domain.Cart{
		ID:        uuid.New().String(),
		Items:     []domain.CartItem{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored := cloneCart(*cart)
	s.carts[cart.ID] = &stored
	s.order = append(s.order, cart.ID)
	return cart, nil
}

func (s *MemoryCartStore) Get(_ context.Context, id string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.carts[id]
	if !exists {
		return nil, domain.ErrCartNotFound
	}
	out := cloneCart(*cart)
	return &out, nil
}

func (s *MemoryCartStore) List(_ context.Context) ([]domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Cart, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, cloneCart(*s.carts[id]))
	}
	return result, nil
}

func (s *MemoryCartStore) Save(_ context.Context, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.carts[cart.ID]
	if !exists {
		return domain.ErrCartNotFound
	}
	if stored.Version != cart.Version {
		return domain.ErrConflict
	}

	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()

	updated := cloneCart(*cart)
	updated.CreatedAt = stored.CreatedAt
	s.carts[cart.ID] = &updated
	return nil
}

func (s *MemoryCartStore) Delete(_ context.Context, id string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, exists := s.carts[id]
	if !exists {
		return nil, domain.ErrCartNotFound
	}
	delete(s.carts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return cart, nil
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = append([]domain.CartItem{}, c.Items...)
	return c
}

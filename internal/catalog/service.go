package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/stock"
)

const (
	DefaultBasePath       = "/api/products"
	DefaultBroadcastLimit = 50

	notifyTimeout = 5 * time.Second
)

// ProductRepository is the persistence the catalog needs. Consumers define
// this interface, not the MongoDB implementation.
type ProductRepository interface {
	stock.Store

	Insert(ctx context.Context, p *domain.Product) error
	FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	CodeExists(ctx context.Context, code, excludeID string) (bool, error)
	Paginate(ctx context.Context, q domain.ProductQuery) (*domain.ProductPage, error)
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) (*domain.Product, error)
}

type Settings struct {
	BasePath       string
	BroadcastLimit int
}

type Service struct {
	repo      ProductRepository
	ledger    *stock.Ledger
	publisher notify.Publisher
	log       *logger.Logger
	settings  Settings
}

// NewService wires the catalog. publisher may be nil, in which case no
// change events are emitted.
func NewService(repo ProductRepository, publisher notify.Publisher, log *logger.Logger, settings Settings) *Service {
	if settings.BasePath == "" {
		settings.BasePath = DefaultBasePath
	}
	if settings.BroadcastLimit < 1 {
		settings.BroadcastLimit = DefaultBroadcastLimit
	}
	return &Service{
		repo:      repo,
		ledger:    stock.NewLedger(repo),
		publisher: publisher,
		log:       log.With("component", "CatalogService"),
		settings:  settings,
	}
}

// List runs a listing query. Store failures are recovered into an error
// listing instead of being returned.
func (s *Service) List(ctx context.Context, opts QueryOptions) Listing {
	page, err := s.repo.Paginate(ctx, opts.ToQuery())
	if err != nil {
		s.log.Error("list products failed", "error", err)
		return ErrorListing(err)
	}
	return NewListing(s.settings.BasePath, opts, page)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.FindByID(ctx, id)
}

// GetMany resolves ids to products keyed by id. Unknown ids are absent from
// the result.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	in = normalizeInput(in)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	exists, err := s.repo.CodeExists(ctx, in.Code, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateCode, in.Code)
	}

	p := &domain.Product{
		Title:       in.Title,
		Description: in.Description,
		Code:        in.Code,
		Price:       *in.Price,
		Status:      true,
		Stock:       *in.Stock,
		Category:    in.Category,
		Thumbnails:  []string{},
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.Thumbnails != nil {
		p.Thumbnails = append(p.Thumbnails, in.Thumbnails...)
	}

	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("product created", "productID", p.ID, "code", p.Code)

	s.broadcast(ctx, notify.EventProductAdded, p)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	patch = normalizePatch(patch)
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	if patch.Code != nil && *patch.Code != current.Code {
		exists, err := s.repo.CodeExists(ctx, *patch.Code, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateCode, *patch.Code)
		}
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.log.Info("product updated", "productID", id)

	s.broadcast(ctx, notify.EventProductUpdated, updated)
	return updated, nil
}

// Delete removes the product. Carts still referencing it are left alone and
// surface the reference as dangling.
func (s *Service) Delete(ctx context.Context, id string) (*domain.DeletedProduct, error) {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("product deleted", "productID", id)

	result := &domain.DeletedProduct{
		Message:        "product deleted",
		DeletedProduct: removed,
	}
	s.broadcast(ctx, notify.EventProductDeleted, result)
	return result, nil
}

// ReduceStock takes quantity units off the persisted stock atomically.
func (s *Service) ReduceStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	p, err := s.ledger.Reduce(ctx, id, quantity)
	if err != nil {
		return nil, err
	}
	s.log.Info("stock reduced", "productID", id, "quantity", quantity, "stock", p.Stock)

	s.broadcast(ctx, notify.EventProductUpdated, p)
	return p, nil
}

// CheckAvailability reports whether id can absorb quantity units. Unknown
// products are simply unavailable.
func (s *Service) CheckAvailability(ctx context.Context, id string, quantity int) (bool, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return false, nil
		}
		return false, err
	}
	return stock.CanReserve(*p, quantity), nil
}

// broadcast emits the refreshed first page and the operation event. It runs
// after the write committed and never fails the caller.
func (s *Service) broadcast(ctx context.Context, t notify.EventType, data any) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	page, err := s.repo.Paginate(ctx, QueryOptions{Limit: s.settings.BroadcastLimit}.ToQuery())
	if err != nil {
		s.log.Warn("refresh listing for broadcast failed", "error", err)
	} else if err := s.publisher.Publish(ctx, notify.NewEvent(notify.EventUpdateProducts, nonNil(page.Items))); err != nil {
		s.log.Warn("publish event failed", "event", notify.EventUpdateProducts, "error", err)
	}

	if err := s.publisher.Publish(ctx, notify.NewEvent(t, data)); err != nil {
		s.log.Warn("publish event failed", "event", t, "error", err)
	}
}

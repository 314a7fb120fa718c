// Package stock holds the availability rules for a single product and the
// atomic stock decrement built on top of them.
package stock

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// ErrNoMatch is returned by a Store when the conditional decrement matched no
// product, either because the id is unknown or stock was too low.
var ErrNoMatch = errors.New("no product matched stock condition")

// Store is the persistence side of the ledger.
type Store interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)

	// DecrementStock subtracts quantity from the product's stock in one
	// conditional write keyed on stock >= quantity and returns the updated
	// product. It returns ErrNoMatch when the condition does not hold.
	DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

// IsAvailable reports whether the product is active and has stock left.
func IsAvailable(p domain.Product) bool {
	return p.Status && p.Stock > 0
}

// CanReserve reports whether the product can absorb quantity units.
func CanReserve(p domain.Product, quantity int) bool {
	return IsAvailable(p) && p.Stock >= quantity
}

// Check returns nil when product can absorb quantity, an UnavailableError
// when it is inactive or sold out, and a StockError otherwise.
func Check(p domain.Product, quantity int) error {
	if !IsAvailable(p) {
		return &domain.UnavailableError{ProductID: p.ID, ProductTitle: p.Title}
	}
	if p.Stock < quantity {
		return &domain.StockError{
			ProductID:    p.ID,
			ProductTitle: p.Title,
			Available:    p.Stock,
			Requested:    quantity,
		}
	}
	return nil
}

// Reduce returns a copy of p with quantity units taken off. p is never
// modified; on failure the returned product equals p.
func Reduce(p domain.Product, quantity int) (domain.Product, error) {
	if p.Stock < quantity {
		return p, &domain.StockError{
			ProductID:    p.ID,
			ProductTitle: p.Title,
			Available:    p.Stock,
			Requested:    quantity,
		}
	}
	p.Stock -= quantity
	return p, nil
}

type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reduce decrements the persisted stock of product id by quantity.
func (l *Ledger) Reduce(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be a positive integer")
	}

	product, err := l.store.DecrementStock(ctx, id, quantity)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, ErrNoMatch) {
		return nil, err
	}

	// Tell an unknown id apart from a stock shortfall.
	current, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &domain.StockError{
		ProductID:    current.ID,
		ProductTitle: current.Title,
		Available:    current.Stock,
		Requested:    quantity,
	}
}

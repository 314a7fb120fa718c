package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCartNotFound      = errors.New("cart not found")
	ErrItemNotInCart     = errors.New("product not found in cart")
	ErrDuplicateCode     = errors.New("product code already exists")
	ErrUnavailable       = errors.New("product not available")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")
	ErrPersistence       = errors.New("persistence failure")
)

// IsNotFound reports whether err is one of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrCartNotFound) || errors.Is(err, ErrItemNotInCart)
}

// StockError carries the figures of a failed stock check.
type StockError struct {
	ProductID    string
	ProductTitle string
	Available    int
	Requested    int
}

func (e *StockError) Error() string {
	if e.ProductTitle != "" {
		return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductTitle, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type UnavailableError struct {
	ProductID    string
	ProductTitle string
}

func (e *UnavailableError) Error() string {
	if e.ProductTitle != "" {
		return fmt.Sprintf("product %s not available", e.ProductTitle)
	}
	return ErrUnavailable.Error()
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError is a shorthand for a single field failure.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for i := range v {
		parts = append(parts, v[i].Error())
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
)

type CartService interface {
	Create(ctx context.Context) (*domain.PopulatedCart, error)
	List(ctx context.Context) ([]*domain.PopulatedCart, error)
	Get(ctx context.Context, cartID string) (*domain.PopulatedCart, error)
	AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.PopulatedCart, error)
	RemoveItem(ctx context.Context, cartID, productID string) (*domain.PopulatedCart, error)
	UpdateItemQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.PopulatedCart, error)
	ReplaceItems(ctx context.Context, cartID string, items []domain.CartItemInput) (*domain.PopulatedCart, error)
	Clear(ctx context.Context, cartID string) (*domain.PopulatedCart, error)
	Delete(ctx context.Context, cartID string) (*domain.DeletedCart, error)
	Total(ctx context.Context, cartID string) (*domain.CartTotal, error)
	ValidateAvailability(ctx context.Context, cartID string) (*domain.AvailabilityReport, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	log     *logger.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log *logger.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log.With("component", "CartHandler"),
	}
}

type AddItemRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type ReplaceItemsRequestDTO struct {
	Products []domain.CartItemInput `json:"products"`
}

func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Create(ctx)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, cart)
}

func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	carts, err := h.carts.List(ctx)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, carts)
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Get(ctx, chi.URLParam(r, "cid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

// AddItem accepts an optional {"quantity": n}; without it one unit is added.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req, true) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(ctx, chi.URLParam(r, "cid"), chi.URLParam(r, "pid"), quantity)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Quantity == nil {
		handleError(w, h.log, domain.NewValidationError("quantity", "is required"))
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, chi.URLParam(r, "cid"), chi.URLParam(r, "pid"), *req.Quantity)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, chi.URLParam(r, "cid"), chi.URLParam(r, "pid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *CartHandler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ReplaceItemsRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Products == nil {
		handleError(w, h.log, domain.NewValidationError("products", "is required"))
		return
	}

	cart, err := h.carts.ReplaceItems(ctx, chi.URLParam(r, "cid"), req.Products)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Clear(ctx, chi.URLParam(r, "cid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, cart)
}

func (h *CartHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.carts.Delete(ctx, chi.URLParam(r, "cid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, res)
}

func (h *CartHandler) Total(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	total, err := h.carts.Total(ctx, chi.URLParam(r, "cid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, total)
}

func (h *CartHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.carts.ValidateAvailability(ctx, chi.URLParam(r, "cid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, report)
}

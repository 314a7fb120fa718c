package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
)

type CatalogService interface {
	List(ctx context.Context, opts catalog.QueryOptions) catalog.Listing
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) (*domain.DeletedProduct, error)
	ReduceStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
	CheckAvailability(ctx context.Context, id string, quantity int) (bool, error)
}

type ProductHandler struct {
	catalog CatalogService
	timeout time.Duration
	log     *logger.Logger
}

func NewProductHandler(svc CatalogService, timeout time.Duration, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: svc,
		timeout: timeout,
		log:     log.With("component", "ProductHandler"),
	}
}

type ReduceStockRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type AvailabilityResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Available bool   `json:"available"`
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	listing := h.catalog.List(ctx, catalog.ParseQueryOptions(r.URL.Query()))
	if listing.Status == catalog.StatusError {
		respondJSON(w, http.StatusInternalServerError, listing)
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.catalog.Get(ctx, chi.URLParam(r, "pid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, product)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req domain.ProductInput
	if !decodeJSON(w, r, &req, false) {
		return
	}

	product, err := h.catalog.Create(ctx, req)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusCreated, product)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// An "id" in the body has no field to land in and is dropped.
	var req domain.ProductPatch
	if !decodeJSON(w, r, &req, false) {
		return
	}

	product, err := h.catalog.Update(ctx, chi.URLParam(r, "pid"), req)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.catalog.Delete(ctx, chi.URLParam(r, "pid"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, res)
}

func (h *ProductHandler) ReduceStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ReduceStockRequestDTO
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Quantity == nil {
		handleError(w, h.log, domain.NewValidationError("quantity", "is required"))
		return
	}

	product, err := h.catalog.ReduceStock(ctx, chi.URLParam(r, "pid"), *req.Quantity)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, product)
}

func (h *ProductHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil || q < 1 {
			handleError(w, h.log, domain.NewValidationError("quantity", "must be a positive integer"))
			return
		}
		quantity = q
	}

	pid := chi.URLParam(r, "pid")
	ok, err := h.catalog.CheckAvailability(ctx, pid, quantity)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, AvailabilityResponse{ProductID: pid, Quantity: quantity, Available: ok})
}

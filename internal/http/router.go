package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/storefront/internal/logger"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// NewRouter mounts the product, cart and event routes. The event stream is
// long-lived, so the request timeout and compression only wrap the
// request/response routes.
func NewRouter(products *ProductHandler, carts *CartHandler, events *EventsHandler, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(log))
	r.Use(middleware.Recoverer)

	api := chi.Middlewares{
		middleware.Timeout(cfg.RequestTimeout),
		middleware.Compress(5),
		LimitBody(cfg.MaxRequestBodySize),
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/events", events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(api...)
			r.Get("/", products.List)
			r.Post("/", products.Create)
			r.Get("/{pid}", products.Get)
			r.Put("/{pid}", products.Update)
			r.Delete("/{pid}", products.Delete)
			r.Get("/{pid}/availability", products.Availability)
			r.Post("/{pid}/stock/reduce", products.ReduceStock)
		})
	})

	r.Route("/api/carts", func(r chi.Router) {
		r.Use(api...)
		r.Get("/", carts.List)
		r.Post("/", carts.Create)
		r.Get("/{cid}", carts.Get)
		r.Put("/{cid}", carts.ReplaceItems)
		r.Delete("/{cid}", carts.Clear)
		r.Delete("/{cid}/purge", carts.Delete)
		r.Get("/{cid}/total", carts.Total)
		r.Get("/{cid}/validate", carts.Validate)
		r.Post("/{cid}/product/{pid}", carts.AddItem)
		r.Put("/{cid}/products/{pid}", carts.UpdateQuantity)
		r.Delete("/{cid}/products/{pid}", carts.RemoveItem)
	})

	return otelhttp.NewHandler(r, "storefront")
}

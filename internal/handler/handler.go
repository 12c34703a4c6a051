// Package handler exposes the product cache and login over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/crm-dashboard/internal/catalog"
	"github.com/xenking/crm-dashboard/internal/domain/auth"
	"github.com/xenking/crm-dashboard/internal/domain/product"
)

// Catalog is the optimistic product cache.
type Catalog interface {
	List(ctx context.Context, page product.Page) (product.Collection, error)
	GetByID(ctx context.Context, id int64) (product.Product, error)
	Create(ctx context.Context, in product.Input) (product.Product, error)
	Update(ctx context.Context, id int64, patch product.Patch) (product.Product, error)
	Remove(ctx context.Context, id int64) error
	Subscribe(buffer int) (<-chan catalog.Event, func())
}

// Sessions is the in-memory login state.
type Sessions interface {
	Login(ctx context.Context, creds auth.Credentials) (auth.Session, error)
	Authenticate(token string) (auth.Session, error)
	Refresh(ctx context.Context, token string) (auth.User, error)
	Logout(token string)
}

var (
	_ Catalog  = (*catalog.Cache)(nil)
	_ Sessions = (*auth.Sessions)(nil)
)

// Config holds non-dependency settings.
type Config struct {
	// PageSize is used when a list request has no limit.
	PageSize int
	// MaxPageSize caps the limit query parameter.
	MaxPageSize int
	// EventBuffer is the per-stream event channel size.
	EventBuffer int
	// KeepAlive is the comment interval on idle event streams.
	KeepAlive time.Duration
}

// Handler serves the dashboard API.
type Handler struct {
	catalog  Catalog
	sessions Sessions
	validate *product.Validator
	cfg      Config
}

// New creates a Handler.
func New(cfg Config, c Catalog, s Sessions, v *product.Validator) *Handler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = product.DefaultLimit
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	return &Handler{catalog: c, sessions: s, validate: v, cfg: cfg}
}

// Routes mounts the API under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/auth/logout", h.logout)
			r.Get("/auth/me", h.me)

			r.Get("/categories", h.listCategories)
			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.listProducts)
				r.Post("/", h.createProduct)
				r.Get("/{id}", h.getProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
			})
			r.Get("/dashboard", h.dashboard)
			r.Get("/events", h.events)
		})
	})
	return r
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/MarketForge/internal/middleware"
)

// Guards are the access-control middlewares applied per route group.
type Guards struct {
	Session     func(http.Handler) http.Handler
	Admin       func(http.Handler) http.Handler
	RateLimit   func(http.Handler) http.Handler
	Idempotency func(http.Handler) http.Handler
}

// MountRoutes registers all API routes on the given chi router. Every route
// except /health sees the request host resolved to a tenant first.
func MountRoutes(r chi.Router, h *Handlers, g Guards) {
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveTenant(h.Resolver))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
			})

			// Storefront of the resolved tenant
			r.With(middleware.RequireTenant).Get("/storefront", h.GetStorefront)

			// Markets
			r.With(g.RateLimit).Get("/markets/check-subdomain", h.CheckSubdomain)
			r.Group(func(r chi.Router) {
				r.Use(g.Session)
				r.With(g.RateLimit, g.Idempotency).Post("/markets/setup", h.SetupMarket)
				r.Post("/markets/{id}/link", h.LinkMarket)
				r.Get("/markets/{id}", h.GetMarket)
			})

			// Platform administration
			r.Route("/admin", func(r chi.Router) {
				r.Use(g.Admin)

				r.Get("/markets", h.ListMarkets)
				r.Put("/markets/{id}", handleUpdate("id", h.Tenants.Update, "market not found"))
				r.Delete("/markets/{id}", handleDelete("id", h.Tenants.Delete, "market not found"))
				r.Post("/markets/{id}/platform-domain", h.EnsurePlatformDomain)
				r.Get("/markets/{id}/domains", handleListByParam("id", h.Domains.List, "market not found"))

				r.Post("/domains", handleCreate(h.Domains.Create, "market not found"))
				r.Post("/domains/{domain}/activate", h.ActivateDomain)
				r.Delete("/domains/{domain}", handleDelete("domain", h.Domains.Delete, "domain not found"))

				r.Get("/resolve", h.ResolveHost)
			})
		})
	})
}

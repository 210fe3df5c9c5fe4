package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/middleware"
	"github.com/Strob0t/MarketForge/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Names        *service.NameRegistry
	Provisioning *service.ProvisioningService
	Tenants      *service.TenantService
	Domains      *service.CustomDomainService
	Resolver     *service.DomainResolver
	Storefront   *service.StorefrontService
	// Ready reports backing store health for /health. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Health reports liveness and, when configured, store readiness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type subdomainAvailability struct {
	Subdomain string `json:"subdomain"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckSubdomain handles GET /api/v1/markets/check-subdomain?subdomain=.
// Malformed and taken names both answer 200 with available=false.
func (h *Handlers) CheckSubdomain(w http.ResponseWriter, r *http.Request) {
	sub := tenant.NormalizeSubdomain(r.URL.Query().Get("subdomain"))
	if !requireField(w, sub, "subdomain") {
		return
	}
	res := subdomainAvailability{Subdomain: sub}
	if err := tenant.ValidateSubdomain(sub); err != nil {
		res.Reason = reason(err, domain.ErrValidation, "invalid subdomain")
		writeJSON(w, http.StatusOK, res)
		return
	}

	err := h.Names.CheckSubdomainAvailable(r.Context(), sub, "")
	switch {
	case err == nil:
		res.Available = true
	case errors.Is(err, domain.ErrConflict):
		res.Reason = reason(err, domain.ErrConflict, "subdomain already taken")
	default:
		writeDomainError(w, r, err, "subdomain not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetupMarket handles POST /api/v1/markets/setup.
func (h *Handlers) SetupMarket(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.SetupRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Provisioning.Setup(r.Context(), middleware.SessionFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "market not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// LinkMarket handles POST /api/v1/markets/{id}/link.
func (h *Handlers) LinkMarket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Provisioning.Link(r.Context(), middleware.SessionFromContext(r.Context()), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetMarket handles GET /api/v1/markets/{id} for a merchant of that market.
func (h *Handlers) GetMarket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tenants.GetForCaller(r.Context(), middleware.SessionFromContext(r.Context()), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetStorefront handles GET /api/v1/storefront for the tenant the request
// host resolved to.
func (h *Handlers) GetStorefront(w http.ResponseWriter, r *http.Request) {
	sf, err := h.Storefront.Get(r.Context(), middleware.TenantIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, "no tenant")
		return
	}
	writeJSON(w, http.StatusOK, sf)
}

// ListMarkets handles GET /api/v1/admin/markets?status=&limit=&offset=.
func (h *Handlers) ListMarkets(w http.ResponseWriter, r *http.Request) {
	filter := tenant.ListFilter{Status: tenant.Status(r.URL.Query().Get("status"))}
	if filter.Status != "" && !tenant.ValidStatuses[filter.Status] {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", defaultListLimit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.Tenants.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if items == nil {
		items = []tenant.Tenant{}
	}
	writeJSON(w, http.StatusOK, items)
}

// EnsurePlatformDomain handles POST /api/v1/admin/markets/{id}/platform-domain.
func (h *Handlers) EnsurePlatformDomain(w http.ResponseWriter, r *http.Request) {
	d, err := h.Domains.EnsurePlatformDomain(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ActivateDomain handles POST /api/v1/admin/domains/{domain}/activate. The
// body is optional.
func (h *Handlers) ActivateDomain(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[customdomain.ActivateRequest](w, r)
	if !ok {
		return
	}
	d, err := h.Domains.Activate(r.Context(), urlParam(r, "domain"), req)
	if err != nil {
		writeDomainError(w, r, err, "domain not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ResolveHost handles GET /api/v1/admin/resolve?host= and explains which
// rule matched.
func (h *Handlers) ResolveHost(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if !requireField(w, host, "host") {
		return
	}
	res, err := h.Resolver.Explain(r.Context(), host)
	if err != nil {
		writeDomainError(w, r, err, "host not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

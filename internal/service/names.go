package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/port/database"
)

// NameRegistry answers whether a subdomain or custom domain may be claimed.
//
// The checks are plain reads with no lock. Two concurrent callers can both
// pass; the store's unique constraints decide the winner at write time.
type NameRegistry struct {
	store       database.Store
	baseDomains []string
	mainHosts   map[string]bool
}

// NewNameRegistry creates a NameRegistry for the recognized base domains.
func NewNameRegistry(store database.Store, baseDomains []string) *NameRegistry {
	return &NameRegistry{store: store, baseDomains: baseDomains}
}

// SetMainDomains registers the platform landing hosts. Each one and its
// www./app. variants can never be bound as a custom domain.
func (r *NameRegistry) SetMainDomains(mains []string) {
	hosts := make(map[string]bool, 3*len(mains))
	for _, m := range mains {
		m = customdomain.NormalizeHost(m)
		if m == "" {
			continue
		}
		hosts[m] = true
		hosts["www."+m] = true
		hosts["app."+m] = true
	}
	r.mainHosts = hosts
}

// CheckSubdomainAvailable returns nil when subdomain is free for the tenant
// excludeTenantID (empty for a new tenant), or a domain.ErrConflict naming
// what holds it. The subdomain must already be normalized.
func (r *NameRegistry) CheckSubdomainAvailable(ctx context.Context, subdomain, excludeTenantID string) error {
	t, err := r.store.GetTenantBySubdomain(ctx, subdomain)
	switch {
	case err == nil:
		if t.ID != excludeTenantID {
			return fmt.Errorf("%w: subdomain already taken", domain.ErrConflict)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("check subdomain %q: %w", subdomain, err)
	}

	for _, base := range r.baseDomains {
		name := customdomain.PlatformDomain(subdomain, base)
		d, err := r.store.GetCustomDomain(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("check domain %q: %w", name, err)
		}
		if d.Blocking() && d.TenantID != excludeTenantID {
			return fmt.Errorf("%w: subdomain conflicts with domain %s", domain.ErrConflict, name)
		}
	}
	return nil
}

// IsSubdomainAvailable is CheckSubdomainAvailable reduced to a boolean.
// Only conflicts count as unavailable; store failures are returned.
func (r *NameRegistry) IsSubdomainAvailable(ctx context.Context, subdomain, excludeTenantID string) (bool, error) {
	err := r.CheckSubdomainAvailable(ctx, subdomain, excludeTenantID)
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}

// CheckDomainAvailable returns a domain.ErrConflict when the normalized
// custom domain name is bound to a tenant other than tenantID.
func (r *NameRegistry) CheckDomainAvailable(ctx context.Context, name, tenantID string) error {
	d, err := r.store.GetCustomDomain(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check domain %q: %w", name, err)
	}
	if d.TenantID != tenantID {
		return fmt.Errorf("%w: domain %s already in use", domain.ErrConflict, name)
	}
	return nil
}

// CheckPlatformName rejects a normalized custom domain that collides with a
// platform host. Main hosts and reserved labels on a base domain are
// domain.ErrValidation. Any other label on a base domain must equal
// subdomain, the claiming tenant's own, or it is a domain.ErrConflict.
func (r *NameRegistry) CheckPlatformName(name, subdomain string) error {
	if r.mainHosts[name] {
		return fmt.Errorf("%w: %s is a platform main host", domain.ErrValidation, name)
	}
	label, ok := r.platformLabel(name)
	if !ok {
		return nil
	}
	if tenant.IsReserved(label) {
		return fmt.Errorf("%w: %s is a reserved platform host", domain.ErrValidation, name)
	}
	if label != subdomain {
		return fmt.Errorf("%w: %s belongs to the platform namespace of subdomain %q", domain.ErrConflict, name, label)
	}
	return nil
}

// BaseDomains returns the recognized base domains, primary first.
func (r *NameRegistry) BaseDomains() []string { return r.baseDomains }

// PrimaryBase is the base domain used for synthesized platform domains.
func (r *NameRegistry) PrimaryBase() string {
	if len(r.baseDomains) == 0 {
		return ""
	}
	return r.baseDomains[0]
}

// platformLabel returns the first label of name when name sits directly on a
// recognized base domain.
func (r *NameRegistry) platformLabel(name string) (string, bool) {
	for _, base := range r.baseDomains {
		if label, ok := strings.CutSuffix(name, "."+base); ok && label != "" && !strings.Contains(label, ".") {
			return label, true
		}
	}
	return "", false
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/site"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/port/database"
)

// Storefront is the public view of a tenant's site.
type Storefront struct {
	Tenant *tenant.Tenant `json:"tenant"`
	Config *site.Config   `json:"config,omitempty"`
	Pages  []site.Page    `json:"pages"`
}

// StorefrontService reads a resolved tenant's site.
type StorefrontService struct {
	store database.Store
}

// NewStorefrontService creates a new StorefrontService.
func NewStorefrontService(store database.Store) *StorefrontService {
	return &StorefrontService{store: store}
}

// Get returns the storefront of tenantID. Schemas without site config
// return the tenant alone; only published pages are included.
func (s *StorefrontService) Get(ctx context.Context, tenantID string) (*Storefront, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sf := &Storefront{Tenant: t, Pages: []site.Page{}}
	if !s.store.Capabilities().SiteConfig {
		return sf, nil
	}

	cfg, err := s.store.GetSiteConfig(ctx, tenantID)
	switch {
	case err == nil:
		sf.Config = cfg
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("site config %s: %w", tenantID, err)
	}

	pages, err := s.store.ListPages(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("pages %s: %w", tenantID, err)
	}
	for i := range pages {
		if pages[i].Published {
			sf.Pages = append(sf.Pages, pages[i])
		}
	}
	return sf, nil
}

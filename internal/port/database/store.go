// Package database defines the catalog store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/merchant"
	"github.com/Strob0t/MarketForge/internal/domain/site"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
)

// Store is the port interface for the local catalog store.
//
// Uniqueness of tenant subdomains and custom domain names is enforced by the
// store; a violated constraint is reported as domain.ErrConflict. Lookups of
// missing rows return domain.ErrNotFound.
type Store interface {
	// Capabilities describes optional schema features, resolved once at startup.
	Capabilities() Capabilities

	// Tenants
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context, filter tenant.ListFilter) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error
	// DeleteTenant removes the row if it exists. Deleting a missing id is not an error.
	DeleteTenant(ctx context.Context, id string) error
	CountTenants(ctx context.Context) (int, error)

	// Custom domains
	CreateCustomDomain(ctx context.Context, d *customdomain.CustomDomain) error
	// UpsertCustomDomain inserts or refreshes a domain owned by d.TenantID. A
	// domain owned by another tenant is never reassigned (domain.ErrConflict).
	UpsertCustomDomain(ctx context.Context, d *customdomain.CustomDomain) error
	GetCustomDomain(ctx context.Context, domainName string) (*customdomain.CustomDomain, error)
	ListCustomDomains(ctx context.Context, tenantID string) ([]customdomain.CustomDomain, error)
	UpdateCustomDomainStatus(ctx context.Context, d *customdomain.CustomDomain) error
	DeleteCustomDomain(ctx context.Context, domainName string) error

	// Users and merchants
	UpsertUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	CreateMerchant(ctx context.Context, m *merchant.Merchant) error
	GetMerchant(ctx context.Context, tenantID, userID string) (*merchant.Merchant, error)

	// Storefront
	CreateSiteConfig(ctx context.Context, c *site.Config) error
	GetSiteConfig(ctx context.Context, tenantID string) (*site.Config, error)
	CreatePage(ctx context.Context, p *site.Page) error
	ListPages(ctx context.Context, tenantID string) ([]site.Page, error)
	GetTemplate(ctx context.Context, id string) (*site.Template, error)
}

// Capabilities is a static descriptor of optional schema features, derived
// from the applied migration version.
type Capabilities struct {
	SchemaVersion int64 `json:"schema_version"`
	SiteConfig    bool  `json:"site_config"`
	PageTemplates bool  `json:"page_templates"`
}

// Schema versions that introduce optional features.
const (
	MinSchemaVersion           int64 = 2
	SiteConfigSchemaVersion    int64 = 3
	PageTemplatesSchemaVersion int64 = 4
)

// CapabilitiesFor maps a migration version to its feature set.
func CapabilitiesFor(version int64) Capabilities {
	return Capabilities{
		SchemaVersion: version,
		SiteConfig:    version >= SiteConfigSchemaVersion,
		PageTemplates: version >= PageTemplatesSchemaVersion,
	}
}

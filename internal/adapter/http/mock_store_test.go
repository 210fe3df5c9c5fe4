package http_test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/merchant"
	"github.com/Strob0t/MarketForge/internal/domain/site"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/port/database"
	"github.com/Strob0t/MarketForge/internal/port/identity"
)

var _ database.Store = (*mockStore)(nil)

// mockStore implements database.Store for handler tests.
type mockStore struct {
	mu        sync.Mutex
	tenants   map[string]tenant.Tenant
	domains   map[string]customdomain.CustomDomain
	merchants map[string]merchant.Merchant
	configs   map[string]site.Config
	pages     []site.Page

	domainErr error // returned by GetCustomDomain
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:   map[string]tenant.Tenant{},
		domains:   map[string]customdomain.CustomDomain{},
		merchants: map[string]merchant.Merchant{},
		configs:   map[string]site.Config{},
	}
}

func (m *mockStore) Capabilities() database.Capabilities {
	return database.CapabilitiesFor(database.PageTemplatesSchemaVersion)
}

func (m *mockStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.tenants {
		if other.ID == t.ID || other.Subdomain == t.Subdomain {
			return fmt.Errorf("create tenant: %w: subdomain already taken", domain.ErrConflict)
		}
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (m *mockStore) GetTenantBySubdomain(_ context.Context, sub string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Subdomain == sub {
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTenants(_ context.Context, f tenant.ListFilter) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Tenant
	for _, t := range m.tenants {
		if f.Status == "" || t.Status == f.Status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return domain.ErrNotFound
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *mockStore) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

func (m *mockStore) CountTenants(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants), nil
}

func (m *mockStore) CreateCustomDomain(_ context.Context, d *customdomain.CustomDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[d.Domain]; ok {
		return fmt.Errorf("create custom domain: %w: domain already in use", domain.ErrConflict)
	}
	m.domains[d.Domain] = *d
	return nil
}

func (m *mockStore) UpsertCustomDomain(_ context.Context, d *customdomain.CustomDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.domains[d.Domain]; ok && existing.TenantID != d.TenantID {
		return fmt.Errorf("upsert custom domain: %w", domain.ErrConflict)
	}
	m.domains[d.Domain] = *d
	return nil
}

func (m *mockStore) GetCustomDomain(_ context.Context, name string) (*customdomain.CustomDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.domainErr != nil {
		return nil, m.domainErr
	}
	d, ok := m.domains[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *mockStore) ListCustomDomains(_ context.Context, tenantID string) ([]customdomain.CustomDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []customdomain.CustomDomain
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateCustomDomainStatus(_ context.Context, d *customdomain.CustomDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[d.Domain] = *d
	return nil
}

func (m *mockStore) DeleteCustomDomain(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.domains, name)
	return nil
}

func (m *mockStore) UpsertUser(_ context.Context, _ *user.User) error { return nil }

func (m *mockStore) GetUser(_ context.Context, _ string) (*user.User, error) {
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateMerchant(_ context.Context, mc *merchant.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[mc.TenantID+"/"+mc.UserID] = *mc
	return nil
}

func (m *mockStore) GetMerchant(_ context.Context, tenantID, userID string) (*merchant.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.merchants[tenantID+"/"+userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &mc, nil
}

func (m *mockStore) CreateSiteConfig(_ context.Context, c *site.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[c.TenantID] = *c
	return nil
}

func (m *mockStore) GetSiteConfig(_ context.Context, tenantID string) (*site.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *mockStore) CreatePage(_ context.Context, p *site.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, *p)
	return nil
}

func (m *mockStore) ListPages(_ context.Context, tenantID string) ([]site.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []site.Page
	for _, p := range m.pages {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) GetTemplate(_ context.Context, _ string) (*site.Template, error) {
	return nil, domain.ErrNotFound
}

// mockIdentity is an identity.Client with a fixed quota.
type mockIdentity struct {
	quota identity.Quota
	err   error
}

func (m *mockIdentity) CheckCanCreate(context.Context, *user.Session) (*identity.Quota, error) {
	if m.err != nil {
		return nil, m.err
	}
	q := m.quota
	return &q, nil
}

func (m *mockIdentity) CreateAndLink(context.Context, *user.Session, identity.Market) error {
	return m.err
}

func (m *mockIdentity) LinkExisting(context.Context, *user.Session, string) error {
	return m.err
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/merchant"
	"github.com/Strob0t/MarketForge/internal/domain/site"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/port/database"
)

// Ensure memStore implements database.Store at compile time.
var _ database.Store = (*memStore)(nil)

// memStore is an in-memory database.Store that enforces the same unique
// constraints as the Postgres schema.
type memStore struct {
	mu        sync.Mutex
	caps      database.Capabilities
	tenants   map[string]tenant.Tenant
	domains   map[string]customdomain.CustomDomain
	users     map[string]user.User
	merchants map[string]merchant.Merchant // key tenantID/userID
	configs   map[string]site.Config
	pages     []site.Page
	templates map[string]site.Template

	// invisibleReads hides a written tenant from GetTenant for this many
	// reads; -1 hides it forever.
	invisibleReads int
	// dropWrites makes CreateTenant report success without storing the row.
	dropWrites bool

	getTenantCalls   int
	subdomainLookups int
	deleteCalls      []string

	// Error hooks, set to inject failures.
	createTenantErr   error
	createMerchantErr error
	upsertUserErr     error
	siteConfigErr     error
	createPageErr     error
	getDomainErr      error
	getTenantErr      error
}

func newMemStore() *memStore {
	return &memStore{
		caps:      database.CapabilitiesFor(database.PageTemplatesSchemaVersion),
		tenants:   map[string]tenant.Tenant{},
		domains:   map[string]customdomain.CustomDomain{},
		users:     map[string]user.User{},
		merchants: map[string]merchant.Merchant{},
		configs:   map[string]site.Config{},
		templates: map[string]site.Template{},
	}
}

func (m *memStore) Capabilities() database.Capabilities { return m.caps }

func (m *memStore) addTenant(t tenant.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
}

func (m *memStore) addDomain(d customdomain.CustomDomain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[d.Domain] = d
}

func (m *memStore) hasTenant(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tenants[id]
	return ok
}

func (m *memStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTenantErr != nil {
		return m.createTenantErr
	}
	if m.dropWrites {
		return nil
	}
	if _, ok := m.tenants[t.ID]; ok {
		return fmt.Errorf("create tenant: %w: tenant id already exists", domain.ErrConflict)
	}
	for _, other := range m.tenants {
		if other.Subdomain == t.Subdomain {
			return fmt.Errorf("create tenant: %w: subdomain already taken", domain.ErrConflict)
		}
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.tenants[t.ID] = *t
	return nil
}

func (m *memStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getTenantCalls++
	if m.getTenantErr != nil {
		return nil, m.getTenantErr
	}
	if m.invisibleReads != 0 {
		if m.invisibleReads > 0 {
			m.invisibleReads--
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (m *memStore) GetTenantBySubdomain(_ context.Context, subdomain string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subdomainLookups++
	for _, t := range m.tenants {
		if t.Subdomain == subdomain {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("get tenant by subdomain %s: %w", subdomain, domain.ErrNotFound)
}

func (m *memStore) ListTenants(_ context.Context, f tenant.ListFilter) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		if f.Status == "" || t.Status == f.Status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return fmt.Errorf("update tenant %s: %w", t.ID, domain.ErrNotFound)
	}
	for _, other := range m.tenants {
		if other.ID != t.ID && other.Subdomain == t.Subdomain {
			return fmt.Errorf("update tenant: %w: subdomain already taken", domain.ErrConflict)
		}
	}
	t.UpdatedAt = time.Now()
	m.tenants[t.ID] = *t
	return nil
}

func (m *memStore) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, id)
	delete(m.tenants, id)
	for k, d := range m.domains {
		if d.TenantID == id {
			delete(m.domains, k)
		}
	}
	return nil
}

func (m *memStore) CountTenants(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants), nil
}

func (m *memStore) CreateCustomDomain(_ context.Context, d *customdomain.CustomDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[d.Domain]; ok {
		return fmt.Errorf("create custom domain: %w: domain already in use", domain.ErrConflict)
	}
	if _, ok := m.tenants[d.TenantID]; !ok {
		return fmt.Errorf("create custom domain: %w", domain.ErrNotFound)
	}
	m.domains[d.Domain] = *d
	return nil
}

func (m *memStore) UpsertCustomDomain(_ context.Context, d *customdomain.CustomDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.domains[d.Domain]; ok && existing.TenantID != d.TenantID {
		return fmt.Errorf("upsert custom domain: %w: domain owned by another tenant", domain.ErrConflict)
	}
	m.domains[d.Domain] = *d
	return nil
}

func (m *memStore) GetCustomDomain(_ context.Context, name string) (*customdomain.CustomDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getDomainErr != nil {
		return nil, m.getDomainErr
	}
	d, ok := m.domains[name]
	if !ok {
		return nil, fmt.Errorf("get custom domain %s: %w", name, domain.ErrNotFound)
	}
	return &d, nil
}

func (m *memStore) ListCustomDomains(_ context.Context, tenantID string) ([]customdomain.CustomDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []customdomain.CustomDomain
	for _, d := range m.domains {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (m *memStore) UpdateCustomDomainStatus(_ context.Context, d *customdomain.CustomDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[d.Domain]; !ok {
		return fmt.Errorf("update custom domain: %w", domain.ErrNotFound)
	}
	m.domains[d.Domain] = *d
	return nil
}

func (m *memStore) DeleteCustomDomain(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.domains, name)
	return nil
}

func (m *memStore) UpsertUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertUserErr != nil {
		return m.upsertUserErr
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) CreateMerchant(_ context.Context, mc *merchant.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createMerchantErr != nil {
		return m.createMerchantErr
	}
	key := mc.TenantID + "/" + mc.UserID
	if _, ok := m.merchants[key]; ok {
		return fmt.Errorf("create merchant: %w: merchant already exists", domain.ErrConflict)
	}
	m.merchants[key] = *mc
	return nil
}

func (m *memStore) GetMerchant(_ context.Context, tenantID, userID string) (*merchant.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.merchants[tenantID+"/"+userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &mc, nil
}

func (m *memStore) CreateSiteConfig(_ context.Context, c *site.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.caps.SiteConfig {
		return errors.ErrUnsupported
	}
	if m.siteConfigErr != nil {
		return m.siteConfigErr
	}
	m.configs[c.TenantID] = *c
	return nil
}

func (m *memStore) GetSiteConfig(_ context.Context, tenantID string) (*site.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) CreatePage(_ context.Context, p *site.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createPageErr != nil {
		return m.createPageErr
	}
	m.pages = append(m.pages, *p)
	return nil
}

func (m *memStore) ListPages(_ context.Context, tenantID string) ([]site.Page, error) {
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

func (m *memStore) GetTemplate(_ context.Context, id string) (*site.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tpl, nil
}

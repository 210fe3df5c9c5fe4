package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/port/database"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
)

// CustomDomainService administers domains bound to tenants.
type CustomDomainService struct {
	store database.Store
	names *NameRegistry
	queue messagequeue.Queue
	now   func() time.Time
}

// NewCustomDomainService creates a new CustomDomainService.
func NewCustomDomainService(store database.Store, names *NameRegistry) *CustomDomainService {
	return &CustomDomainService{store: store, names: names, now: time.Now}
}

// SetQueue enables lifecycle events.
func (s *CustomDomainService) SetQueue(q messagequeue.Queue) { s.queue = q }

// Create binds a domain to a tenant as PENDING. Main hosts are refused, and a
// domain directly on a platform base must carry the tenant's own subdomain,
// otherwise it would shadow another tenant's host.
func (s *CustomDomainService) Create(ctx context.Context, req customdomain.CreateRequest) (*customdomain.CustomDomain, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.names.CheckPlatformName(req.Domain, t.Subdomain); err != nil {
		return nil, err
	}

	d := &customdomain.CustomDomain{
		Domain:    req.Domain,
		TenantID:  t.ID,
		Status:    customdomain.StatusPending,
		SSLStatus: customdomain.SSLPending,
	}
	if err := s.store.CreateCustomDomain(ctx, d); err != nil {
		return nil, err
	}
	s.changed(ctx, d, "created")
	return d, nil
}

// Activate marks a domain verified and routable.
func (s *CustomDomainService) Activate(ctx context.Context, name string, req customdomain.ActivateRequest) (*customdomain.CustomDomain, error) {
	name, err := customdomain.Normalize(name)
	if err != nil {
		return nil, err
	}
	d, err := s.store.GetCustomDomain(ctx, name)
	if err != nil {
		return nil, err
	}
	ssl := req.SSLStatus
	switch ssl {
	case "":
		ssl = customdomain.SSLActive
	case customdomain.SSLPending, customdomain.SSLActive, customdomain.SSLFailed:
	default:
		return nil, fmt.Errorf("%w: invalid ssl status %q", domain.ErrValidation, ssl)
	}

	now := s.now().UTC()
	d.Status = customdomain.StatusActive
	d.SSLStatus = ssl
	d.VerifiedAt = &now
	if err := s.store.UpdateCustomDomainStatus(ctx, d); err != nil {
		return nil, err
	}
	s.changed(ctx, d, "activated")
	return d, nil
}

// List returns the domains of a tenant.
func (s *CustomDomainService) List(ctx context.Context, tenantID string) ([]customdomain.CustomDomain, error) {
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListCustomDomains(ctx, tenantID)
}

// Delete unbinds a domain.
func (s *CustomDomainService) Delete(ctx context.Context, name string) error {
	name, err := customdomain.Normalize(name)
	if err != nil {
		return err
	}
	d, err := s.store.GetCustomDomain(ctx, name)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCustomDomain(ctx, name); err != nil {
		return err
	}
	s.changed(ctx, d, "deleted")
	return nil
}

// EnsurePlatformDomain upserts <subdomain>.<primary base> as an ACTIVE
// domain of the tenant. It is idempotent and never takes the name from
// another tenant.
func (s *CustomDomainService) EnsurePlatformDomain(ctx context.Context, tenantID string) (*customdomain.CustomDomain, error) {
	base := s.names.PrimaryBase()
	if base == "" {
		return nil, fmt.Errorf("%w: no base domain configured", domain.ErrValidation)
	}
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d := &customdomain.CustomDomain{
		Domain:     customdomain.PlatformDomain(t.Subdomain, base),
		TenantID:   t.ID,
		Status:     customdomain.StatusActive,
		SSLStatus:  customdomain.SSLActive,
		VerifiedAt: &now,
	}
	if err := s.store.UpsertCustomDomain(ctx, d); err != nil {
		return nil, err
	}
	s.changed(ctx, d, "activated")
	return d, nil
}

func (s *CustomDomainService) changed(ctx context.Context, d *customdomain.CustomDomain, action string) {
	publish(ctx, s.queue, messagequeue.SubjectDomainChanged, messagequeue.DomainChangedPayload{
		Domain:   d.Domain,
		TenantID: d.TenantID,
		Action:   action,
		Status:   string(d.Status),
	})
}

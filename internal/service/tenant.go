package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/port/database"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
)

// TenantService administers existing tenants.
type TenantService struct {
	store database.Store
	names *NameRegistry
	queue messagequeue.Queue
}

// NewTenantService creates a new TenantService.
func NewTenantService(store database.Store, names *NameRegistry) *TenantService {
	return &TenantService{store: store, names: names}
}

// SetQueue enables lifecycle events.
func (s *TenantService) SetQueue(q messagequeue.Queue) { s.queue = q }

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// GetForCaller returns the tenant only when caller operates it. Tenants the
// caller has no merchant link to are reported as not found.
func (s *TenantService) GetForCaller(ctx context.Context, caller *user.Session, id string) (*tenant.Tenant, error) {
	if err := caller.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetMerchant(ctx, id, caller.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("merchant %s/%s: %w", id, caller.UserID, err)
	}
	return t, nil
}

// List returns tenants matching filter.
func (s *TenantService) List(ctx context.Context, filter tenant.ListFilter) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx, filter)
}

// Update applies an administrative change. A subdomain change is checked
// against both namespaces with the tenant itself excluded, and the store's
// unique constraint has the final word.
func (s *TenantService) Update(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	oldSubdomain := t.Subdomain
	renamed := req.Subdomain != nil && *req.Subdomain != oldSubdomain
	if renamed {
		if err := s.names.CheckSubdomainAvailable(ctx, *req.Subdomain, t.ID); err != nil {
			return nil, err
		}
	}

	req.Apply(t)
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	if renamed {
		s.releasePlatformDomain(ctx, t.ID, oldSubdomain)
	}

	publish(ctx, s.queue, messagequeue.SubjectTenantUpdated, messagequeue.TenantUpdatedPayload{
		TenantID:  t.ID,
		Subdomain: t.Subdomain,
		Status:    string(t.Status),
		Plan:      string(t.Plan),
	})
	return t, nil
}

// Delete soft-deletes a tenant by marking it INACTIVE.
func (s *TenantService) Delete(ctx context.Context, id string) error {
	status := tenant.StatusInactive
	if _, err := s.Update(ctx, id, tenant.UpdateRequest{Status: &status}); err != nil {
		return fmt.Errorf("deactivate tenant %s: %w", id, err)
	}
	return nil
}

// releasePlatformDomain drops the synthesized domains of a previous
// subdomain on every base so the old name can be claimed again. Best-effort.
func (s *TenantService) releasePlatformDomain(ctx context.Context, tenantID, oldSubdomain string) {
	for _, base := range s.names.BaseDomains() {
		name := customdomain.PlatformDomain(oldSubdomain, base)
		d, err := s.store.GetCustomDomain(ctx, name)
		if err != nil || d.TenantID != tenantID {
			continue
		}
		if err := s.store.DeleteCustomDomain(ctx, name); err != nil {
			slog.WarnContext(ctx, "failed to release old platform domain", "domain", name, "tenant_id", tenantID, "error", err)
			continue
		}
		publish(ctx, s.queue, messagequeue.SubjectDomainChanged, messagequeue.DomainChangedPayload{
			Domain:   name,
			TenantID: tenantID,
			Action:   "deleted",
		})
	}
}

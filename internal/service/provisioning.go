package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/MarketForge/internal/adapter/otel"
	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/logger"
	"github.com/Strob0t/MarketForge/internal/port/database"
	"github.com/Strob0t/MarketForge/internal/port/identity"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
	"github.com/Strob0t/MarketForge/internal/resilience"
)

// cleanupTimeout bounds compensation, which runs even after the saga
// deadline has expired.
const cleanupTimeout = 5 * time.Second

// ProvisioningService runs the tenant provisioning saga across the identity
// store and the local catalog store. There is no shared transaction: failures
// after the first write are detected, reported and cleaned up best-effort.
type ProvisioningService struct {
	store    database.Store
	names    *NameRegistry
	identity identity.Client
	verifier *resilience.Verifier
	cfg      config.Provisioning
	queue    messagequeue.Queue
	metrics  *otel.Metrics
	newID    func() string
}

// NewProvisioningService creates a ProvisioningService.
func NewProvisioningService(
	store database.Store,
	names *NameRegistry,
	idc identity.Client,
	verifier *resilience.Verifier,
	cfg config.Provisioning,
) *ProvisioningService {
	if cfg.WriteOrder == "" {
		cfg.WriteOrder = config.WriteOrderExternalFirst
	}
	if cfg.DefaultPlan == "" {
		cfg.DefaultPlan = string(tenant.PlanBasic)
	}
	return &ProvisioningService{
		store:    store,
		names:    names,
		identity: idc,
		verifier: verifier,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
}

// SetQueue enables lifecycle events.
func (s *ProvisioningService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetMetrics enables saga metrics.
func (s *ProvisioningService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Setup provisions a new tenant owned by caller.
func (s *ProvisioningService) Setup(ctx context.Context, caller *user.Session, req tenant.SetupRequest) (t *tenant.Tenant, err error) {
	if verr := caller.Validate(); verr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, verr)
	}
	if s.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Deadline)
		defer cancel()
	}

	start := time.Now()
	s.metrics.SetupStarted(ctx)
	ctx, span := otel.StartSetupSpan(ctx, caller.UserID, req.Subdomain)
	defer func() {
		s.metrics.SetupFinished(ctx, time.Since(start).Seconds(), failureReason(err))
		otel.EndSpan(span, err)
	}()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CustomDomain != "" {
		name, err := customdomain.Normalize(req.CustomDomain)
		if err != nil {
			return nil, err
		}
		req.CustomDomain = name
		if err := s.names.CheckPlatformName(name, req.Subdomain); err != nil {
			return nil, err
		}
		if err := s.names.CheckDomainAvailable(ctx, name, ""); err != nil {
			return nil, err
		}
	}

	if err := s.names.CheckSubdomainAvailable(ctx, req.Subdomain, ""); err != nil {
		return nil, err
	}

	quota, err := s.identity.CheckCanCreate(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		return nil, fmt.Errorf("%w: market limit reached: %d of %d", domain.ErrForbidden, quota.CurrentCount, quota.Limit)
	}

	draft := &tenant.Tenant{
		ID:        s.newID(),
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Plan:      tenant.Plan(s.cfg.DefaultPlan),
		Status:    tenant.StatusActive,
		Settings:  map[string]any{},
	}
	if req.Description != "" {
		draft.Settings["description"] = req.Description
	}
	ctx = logger.WithTenantID(ctx, draft.ID)
	log := slog.With("tenant_id", draft.ID, "subdomain", draft.Subdomain, "user_id", caller.UserID)

	if err := s.writeTenant(ctx, caller, draft, log); err != nil {
		return nil, err
	}

	t, err = s.awaitTenant(ctx, draft, log)
	if err != nil {
		return nil, err
	}

	if err := s.ensureOwner(ctx, caller, t); err != nil {
		log.ErrorContext(ctx, "owner bootstrap failed, removing tenant", "error", err)
		s.cleanup(ctx, t.ID, log)
		return nil, err
	}

	s.bootstrapStorefront(ctx, t, req, log)
	if req.CustomDomain != "" {
		s.attachCustomDomain(ctx, t, req.CustomDomain, log)
	}

	publish(ctx, s.queue, messagequeue.SubjectTenantProvisioned, messagequeue.TenantProvisionedPayload{
		TenantID:  t.ID,
		Subdomain: t.Subdomain,
		OwnerID:   caller.UserID,
		Plan:      string(t.Plan),
	})
	log.InfoContext(ctx, "tenant provisioned", "plan", t.Plan)
	return t, nil
}

// Link attaches caller to an existing tenant in the identity store and
// mirrors the ownership locally.
func (s *ProvisioningService) Link(ctx context.Context, caller *user.Session, tenantID string) (*tenant.Tenant, error) {
	if err := caller.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.identity.LinkExisting(ctx, caller, t.ID); err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, caller, t); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "market linked", "tenant_id", t.ID, "user_id", caller.UserID)
	return t, nil
}

// writeTenant performs the two writes in the configured order.
//
// external_first: the identity store enforces the quota before anything is
// written locally. If the local insert then fails the identity store keeps an
// orphaned market; it is logged, never hidden.
//
// local_first: the local row is written first and removed again if the
// identity store refuses, so an orphan can only be a local row whose cleanup
// also failed.
func (s *ProvisioningService) writeTenant(ctx context.Context, caller *user.Session, t *tenant.Tenant, log *slog.Logger) error {
	market := identity.Market{
		ID:        t.ID,
		Name:      t.Name,
		Subdomain: t.Subdomain,
		Plan:      string(t.Plan),
		Status:    string(t.Status),
	}

	switch s.cfg.WriteOrder {
	case config.WriteOrderLocalFirst:
		if err := s.insertTenant(ctx, t, log); err != nil {
			return err
		}
		if err := s.createExternal(ctx, caller, market); err != nil {
			log.ErrorContext(ctx, "identity store rejected market, removing local tenant", "error", err)
			s.cleanup(ctx, t.ID, log)
			return err
		}
		return nil
	default:
		if err := s.createExternal(ctx, caller, market); err != nil {
			log.ErrorContext(ctx, "identity store rejected market", "error", err)
			return err
		}
		if err := s.insertTenant(ctx, t, log); err != nil {
			log.ErrorContext(ctx, "local tenant write failed after identity store accepted it; identity market is orphaned",
				"error", err)
			return err
		}
		return nil
	}
}

func (s *ProvisioningService) createExternal(ctx context.Context, caller *user.Session, m identity.Market) error {
	ctx, span := otel.StartStepSpan(ctx, "create_and_link", m.ID)
	err := s.identity.CreateAndLink(ctx, caller, m)
	otel.EndSpan(span, err)
	return err
}

// insertTenant writes the local row. A unique violation here is the
// authoritative conflict; any other failure removes a possibly half-written
// row.
func (s *ProvisioningService) insertTenant(ctx context.Context, t *tenant.Tenant, log *slog.Logger) error {
	ctx, span := otel.StartStepSpan(ctx, "insert_tenant", t.ID)
	err := s.store.CreateTenant(ctx, t)
	otel.EndSpan(span, err)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConflict) {
		return err
	}
	s.cleanup(ctx, t.ID, log)
	return fmt.Errorf("create tenant: %w", err)
}

// awaitTenant blocks until the written row is readable. On timeout the
// diagnostics decide between a lost race for the subdomain (conflict) and
// plain replication lag (transient).
func (s *ProvisioningService) awaitTenant(ctx context.Context, draft *tenant.Tenant, log *slog.Logger) (*tenant.Tenant, error) {
	ctx, span := otel.StartStepSpan(ctx, "await_visible", draft.ID)

	attempts := 0
	read := func(ctx context.Context) (*tenant.Tenant, bool, error) {
		attempts++
		t, err := s.store.GetTenant(ctx, draft.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return t, true, nil
	}
	diagnose := func(ctx context.Context) resilience.Diagnostics {
		var d resilience.Diagnostics
		n, err := s.store.CountTenants(ctx)
		if err != nil {
			d.Err = err
			return d
		}
		d.VisibleCount = n
		other, err := s.store.GetTenantBySubdomain(ctx, draft.Subdomain)
		switch {
		case err == nil && other.ID != draft.ID:
			d.Conflict = true
			d.ConflictID = other.ID
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			d.Err = err
		}
		return d
	}

	t, err := resilience.AwaitVisible(ctx, s.verifier, read, diagnose)
	s.metrics.VerifyFinished(ctx, attempts, err == nil)
	otel.EndSpan(span, err)
	if err == nil {
		return t, nil
	}

	var terr *resilience.VisibilityTimeoutError
	if !errors.As(err, &terr) {
		s.cleanup(ctx, draft.ID, log)
		return nil, fmt.Errorf("await tenant: %w", err)
	}
	log.ErrorContext(ctx, "tenant not visible after write",
		"attempts", terr.Attempts,
		"waited", terr.Waited,
		"visible_tenants", terr.Diagnostics.VisibleCount,
		"conflict_id", terr.Diagnostics.ConflictID,
		"last_error", terr.LastErr,
		"diagnose_error", terr.Diagnostics.Err,
	)
	s.cleanup(ctx, draft.ID, log)
	if terr.Diagnostics.Conflict {
		return nil, fmt.Errorf("%w: subdomain already taken", domain.ErrConflict)
	}
	return nil, fmt.Errorf("%w: tenant %s not visible after %d attempts: %w",
		domain.ErrTransientConsistency, draft.ID, terr.Attempts, err)
}

// cleanup deletes the tenant row if it exists. It ignores the caller's
// cancellation so an expired saga deadline still compensates.
func (s *ProvisioningService) cleanup(ctx context.Context, tenantID string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.store.DeleteTenant(ctx, tenantID); err != nil {
		log.ErrorContext(ctx, "tenant cleanup failed", "error", err)
		return
	}
	log.WarnContext(ctx, "tenant cleaned up after failed provisioning")
}

// failureReason labels a saga outcome for metrics. Empty means success.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrExternalService):
		return "external"
	case errors.Is(err, domain.ErrTransientConsistency):
		return "consistency"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	default:
		return "internal"
	}
}

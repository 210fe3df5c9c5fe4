package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Strob0t/MarketForge/internal/adapter/otel"
	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/merchant"
	"github.com/Strob0t/MarketForge/internal/domain/site"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
)

// ensureOwner mirrors the caller locally and makes them the tenant's owner.
// Both rows are mandatory; an existing merchant row counts as success.
func (s *ProvisioningService) ensureOwner(ctx context.Context, caller *user.Session, t *tenant.Tenant) error {
	ctx, span := otel.StartStepSpan(ctx, "ensure_owner", t.ID)
	var err error
	defer func() { otel.EndSpan(span, err) }()

	u := caller.User()
	if err = s.store.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("ensure owner user %s: %w", caller.UserID, err)
	}

	displayName := caller.Name
	if displayName == "" {
		displayName = t.Name
	}
	m := &merchant.Merchant{
		ID:          uuid.NewString(),
		TenantID:    t.ID,
		UserID:      caller.UserID,
		DisplayName: displayName,
		Role:        merchant.RoleOwner,
	}
	if err = s.store.CreateMerchant(ctx, m); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			err = nil
			return nil
		}
		return fmt.Errorf("create merchant for %s: %w", caller.UserID, err)
	}
	return nil
}

// bootstrapStorefront creates the site configuration and the default pages.
// Every failure is logged and skipped; a storefront missing a page is
// repaired by the merchant.
func (s *ProvisioningService) bootstrapStorefront(ctx context.Context, t *tenant.Tenant, req tenant.SetupRequest, log *slog.Logger) {
	caps := s.store.Capabilities()
	if !caps.SiteConfig {
		log.DebugContext(ctx, "storefront bootstrap skipped, schema has no site config", "schema_version", caps.SchemaVersion)
		return
	}
	ctx, span := otel.StartStepSpan(ctx, "bootstrap_storefront", t.ID)
	defer span.End()

	tpl := s.loadTemplate(ctx, req.TemplateID, log)

	theme := site.DefaultTheme
	if tpl != nil && tpl.Theme != "" {
		theme = tpl.Theme
	}
	cfg := &site.Config{
		TenantID:    t.ID,
		Title:       t.Name,
		Description: req.Description,
		Theme:       theme,
		Settings:    map[string]any{},
	}
	if err := s.store.CreateSiteConfig(ctx, cfg); err != nil {
		log.WarnContext(ctx, "site config bootstrap failed", "error", err)
	}

	for i, seed := range site.SeedPages(tpl, t.Name) {
		p := &site.Page{
			ID:        uuid.NewString(),
			TenantID:  t.ID,
			Slug:      seed.Slug,
			Title:     seed.Title,
			Content:   seed.Content,
			Position:  i,
			Published: true,
		}
		if err := s.store.CreatePage(ctx, p); err != nil {
			log.WarnContext(ctx, "page bootstrap failed", "slug", seed.Slug, "error", err)
		}
	}
}

// loadTemplate returns the requested template, or nil for the defaults.
func (s *ProvisioningService) loadTemplate(ctx context.Context, id string, log *slog.Logger) *site.Template {
	if id == "" {
		return nil
	}
	if !s.store.Capabilities().PageTemplates {
		log.WarnContext(ctx, "page templates unsupported by schema, using defaults", "template_id", id)
		return nil
	}
	tpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		log.WarnContext(ctx, "template lookup failed, using defaults", "template_id", id, "error", err)
		return nil
	}
	return tpl
}

// attachCustomDomain binds the requested domain as PENDING. Best-effort.
func (s *ProvisioningService) attachCustomDomain(ctx context.Context, t *tenant.Tenant, name string, log *slog.Logger) {
	d := &customdomain.CustomDomain{
		Domain:    name,
		TenantID:  t.ID,
		Status:    customdomain.StatusPending,
		SSLStatus: customdomain.SSLPending,
	}
	if err := s.store.CreateCustomDomain(ctx, d); err != nil {
		log.WarnContext(ctx, "custom domain bootstrap failed", "domain", name, "error", err)
		return
	}
	publish(ctx, s.queue, messagequeue.SubjectDomainChanged, messagequeue.DomainChangedPayload{
		Domain:   d.Domain,
		TenantID: d.TenantID,
		Action:   "created",
		Status:   string(d.Status),
	})
}

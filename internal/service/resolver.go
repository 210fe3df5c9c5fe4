package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/Strob0t/MarketForge/internal/adapter/otel"
	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/port/database"
)

// Resolution rules, in precedence order.
const (
	RuleCustomDomain = "custom_domain"
	RuleMainDomain   = "main_domain"
	RuleLocalhost    = "localhost_subdomain"
	RuleBaseDomain   = "base_domain_subdomain"
	RuleReserved     = "reserved"
	RulePlatformRoot = "platform_root"
	RuleNone         = "none"
)

const localhostSuffix = ".localhost"

// Resolution is the outcome of mapping a host to a tenant. TenantID is
// empty when no tenant serves the host.
type Resolution struct {
	Host      string `json:"host"`
	TenantID  string `json:"tenant_id,omitempty"`
	Rule      string `json:"rule"`
	Subdomain string `json:"subdomain,omitempty"`
}

// DomainResolver maps inbound hostnames to tenant ids. It only reads: the
// result is a function of the host and current store state.
type DomainResolver struct {
	store           database.Store
	baseDomains     []string
	mainDomains     map[string]bool
	defaultTenantID string
	metrics         *otel.Metrics
}

// NewDomainResolver creates a DomainResolver from the domain config. Each
// main domain and its www./app. variants route to the default tenant.
func NewDomainResolver(store database.Store, cfg config.Domains) *DomainResolver {
	bases := make([]string, 0, len(cfg.BaseDomains))
	for _, b := range cfg.BaseDomains {
		if b = customdomain.NormalizeHost(b); b != "" {
			bases = append(bases, b)
		}
	}
	main := make(map[string]bool, 3*len(cfg.MainDomains))
	for _, m := range cfg.MainDomains {
		m = customdomain.NormalizeHost(m)
		if m == "" {
			continue
		}
		main[m] = true
		main["www."+m] = true
		main["app."+m] = true
	}
	// Longest base first so a nested base wins over its parent.
	sort.SliceStable(bases, func(i, j int) bool { return len(bases[i]) > len(bases[j]) })

	return &DomainResolver{
		store:           store,
		baseDomains:     bases,
		mainDomains:     main,
		defaultTenantID: cfg.DefaultTenantID,
	}
}

// SetMetrics enables resolution metrics.
func (r *DomainResolver) SetMetrics(m *otel.Metrics) { r.metrics = m }

// Resolve returns the tenant id serving rawHost, or "" for none. Errors are
// store failures only; an unknown host is not an error.
func (r *DomainResolver) Resolve(ctx context.Context, rawHost string) (string, error) {
	res, err := r.Explain(ctx, rawHost)
	return res.TenantID, err
}

// Explain resolves rawHost and reports which rule decided.
func (r *DomainResolver) Explain(ctx context.Context, rawHost string) (res Resolution, err error) {
	host := customdomain.NormalizeHost(rawHost)
	res = Resolution{Host: host, Rule: RuleNone}
	if host == "" {
		return res, nil
	}

	ctx, span := otel.StartResolveSpan(ctx, host)
	defer func() {
		r.metrics.Resolved(ctx, res.Rule, res.TenantID != "")
		otel.EndSpan(span, err)
	}()

	d, err := r.store.GetCustomDomain(ctx, host)
	switch {
	case err == nil:
		if d.Status == customdomain.StatusActive {
			res.Rule, res.TenantID = RuleCustomDomain, d.TenantID
			return res, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return res, fmt.Errorf("resolve %s: %w", host, err)
	}
	err = nil

	if r.mainDomains[host] {
		res.Rule = RuleMainDomain
		if r.defaultTenantID == "" {
			return res, nil
		}
		t, err := r.store.GetTenant(ctx, r.defaultTenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return res, nil
			}
			return res, fmt.Errorf("resolve %s: %w", host, err)
		}
		if routable(t) {
			res.TenantID = t.ID
		}
		return res, nil
	}

	sub, rule := r.subdomainOf(host)
	switch rule {
	case RuleNone, RuleReserved, RulePlatformRoot:
		res.Rule = rule
		return res, nil
	}
	res.Rule, res.Subdomain = rule, sub

	// Anything that could never be a subdomain costs no lookup.
	if tenant.ValidateSubdomain(sub) != nil {
		return res, nil
	}
	t, err := r.store.GetTenantBySubdomain(ctx, sub)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res, nil
		}
		return res, fmt.Errorf("resolve %s: %w", host, err)
	}
	if routable(t) {
		res.TenantID = t.ID
	}
	return res, nil
}

// subdomainOf extracts the subdomain candidate and names the rule applied.
func (r *DomainResolver) subdomainOf(host string) (string, string) {
	if sub, ok := strings.CutSuffix(host, localhostSuffix); ok && sub != "" {
		return sub, RuleLocalhost
	}
	for _, base := range r.baseDomains {
		sub, ok := strings.CutSuffix(host, "."+base)
		if !ok || sub == "" {
			continue
		}
		if tenant.IsReserved(sub) {
			return "", RuleReserved
		}
		return sub, RuleBaseDomain
	}
	if host == "localhost" {
		return "", RulePlatformRoot
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return "", RulePlatformRoot
	}
	return "", RuleNone
}

// routable reports whether a tenant still serves traffic. Soft-deleted
// tenants do not; suspended ones do so their storefront can explain itself.
func routable(t *tenant.Tenant) bool {
	return t.Status != tenant.StatusInactive
}

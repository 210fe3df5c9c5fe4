package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
)

const customDomainColumns = `domain, tenant_id, status, ssl_status, verified_at, created_at, updated_at`

func scanCustomDomain(row scannable) (customdomain.CustomDomain, error) {
	var d customdomain.CustomDomain
	err := row.Scan(&d.Domain, &d.TenantID, &d.Status, &d.SSLStatus, &d.VerifiedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) CreateCustomDomain(ctx context.Context, d *customdomain.CustomDomain) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO custom_domains (domain, tenant_id, status, ssl_status, verified_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		d.Domain, d.TenantID, d.Status, d.SSLStatus, d.VerifiedAt,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return writeErr(err, "create custom domain %s", d.Domain)
	}
	return nil
}

// UpsertCustomDomain refreshes the row only when it already belongs to the
// same tenant; the conditional DO UPDATE returns no row otherwise.
func (s *Store) UpsertCustomDomain(ctx context.Context, d *customdomain.CustomDomain) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO custom_domains (domain, tenant_id, status, ssl_status, verified_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (domain) DO UPDATE
		   SET status = EXCLUDED.status,
		       ssl_status = EXCLUDED.ssl_status,
		       verified_at = COALESCE(EXCLUDED.verified_at, custom_domains.verified_at),
		       updated_at = now()
		   WHERE custom_domains.tenant_id = EXCLUDED.tenant_id
		 RETURNING created_at, updated_at`,
		d.Domain, d.TenantID, d.Status, d.SSLStatus, d.VerifiedAt,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("upsert custom domain %s: %w: domain owned by another tenant", d.Domain, domain.ErrConflict)
		}
		return writeErr(err, "upsert custom domain %s", d.Domain)
	}
	return nil
}

func (s *Store) GetCustomDomain(ctx context.Context, name string) (*customdomain.CustomDomain, error) {
	d, err := scanCustomDomain(s.pool.QueryRow(ctx,
		`SELECT `+customDomainColumns+` FROM custom_domains WHERE domain = $1`, name))
	if err != nil {
		return nil, notFoundWrap(err, "get custom domain %s", name)
	}
	return &d, nil
}

func (s *Store) ListCustomDomains(ctx context.Context, tenantID string) ([]customdomain.CustomDomain, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+customDomainColumns+` FROM custom_domains
		 WHERE tenant_id = $1 ORDER BY created_at ASC, domain ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list custom domains %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []customdomain.CustomDomain
	for rows.Next() {
		d, err := scanCustomDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custom domain: %w", err)
		}
		out = append(out, d)
	}
	return orEmpty(out), rows.Err()
}

// UpdateCustomDomainStatus writes status, SSL status and verification time.
// The owning tenant is never changed.
func (s *Store) UpdateCustomDomainStatus(ctx context.Context, d *customdomain.CustomDomain) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE custom_domains SET status = $2, ssl_status = $3, verified_at = $4, updated_at = now()
		 WHERE domain = $1`,
		d.Domain, d.Status, d.SSLStatus, d.VerifiedAt)
	return execExpectOne(tag, err, "update custom domain %s", d.Domain)
}

func (s *Store) DeleteCustomDomain(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM custom_domains WHERE domain = $1`, name)
	return execExpectOne(tag, err, "delete custom domain %s", name)
}

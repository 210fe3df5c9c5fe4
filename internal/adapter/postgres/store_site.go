package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Strob0t/MarketForge/internal/domain/site"
)

func (s *Store) requireSiteConfig(op string) error {
	if !s.caps.SiteConfig {
		return fmt.Errorf("%s: schema v%d: %w", op, s.caps.SchemaVersion, errors.ErrUnsupported)
	}
	return nil
}

func (s *Store) CreateSiteConfig(ctx context.Context, c *site.Config) error {
	if err := s.requireSiteConfig("create site config"); err != nil {
		return err
	}
	settings, err := jsonObject(c.Settings)
	if err != nil {
		return fmt.Errorf("create site config %s: encode settings: %w", c.TenantID, err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO site_configs (tenant_id, title, description, theme, settings)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		c.TenantID, c.Title, c.Description, c.Theme, settings,
	).Scan(&c.CreatedAt)
	if err != nil {
		return writeErr(err, "create site config %s", c.TenantID)
	}
	return nil
}

func (s *Store) GetSiteConfig(ctx context.Context, tenantID string) (*site.Config, error) {
	if err := s.requireSiteConfig("get site config"); err != nil {
		return nil, err
	}
	var c site.Config
	var settings []byte
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, title, description, theme, settings, created_at
		 FROM site_configs WHERE tenant_id = $1`, tenantID,
	).Scan(&c.TenantID, &c.Title, &c.Description, &c.Theme, &settings, &c.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get site config %s", tenantID)
	}
	c.Settings = jsonMap(settings)
	return &c, nil
}

func (s *Store) CreatePage(ctx context.Context, p *site.Page) error {
	if err := s.requireSiteConfig("create page"); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pages (id, tenant_id, slug, title, content, position, published)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		p.ID, p.TenantID, p.Slug, p.Title, p.Content, p.Position, p.Published,
	).Scan(&p.CreatedAt)
	if err != nil {
		return writeErr(err, "create page %s/%s", p.TenantID, p.Slug)
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context, tenantID string) ([]site.Page, error) {
	if err := s.requireSiteConfig("list pages"); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, slug, title, content, position, published, created_at
		 FROM pages WHERE tenant_id = $1 ORDER BY position ASC, slug ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list pages %s: %w", tenantID, err)
	}
	defer rows.Close()

	var pages []site.Page
	for rows.Next() {
		var p site.Page
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Slug, &p.Title, &p.Content, &p.Position, &p.Published, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return orEmpty(pages), rows.Err()
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*site.Template, error) {
	if !s.caps.PageTemplates {
		return nil, fmt.Errorf("get template %s: schema v%d: %w", id, s.caps.SchemaVersion, errors.ErrUnsupported)
	}
	var t site.Template
	var pages []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, theme, pages FROM page_templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Theme, &pages)
	if err != nil {
		return nil, notFoundWrap(err, "get template %s", id)
	}
	if len(pages) > 0 {
		if err := json.Unmarshal(pages, &t.Pages); err != nil {
			return nil, fmt.Errorf("get template %s: decode pages: %w", id, err)
		}
	}
	return &t, nil
}

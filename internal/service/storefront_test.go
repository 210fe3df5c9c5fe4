package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/site"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/port/database"
)

func TestStorefrontService_Get(t *testing.T) {
	store := newMemStore()
	store.addTenant(tenant.Tenant{ID: "t1", Name: "Shop", Subdomain: "shop", Status: tenant.StatusActive})
	store.configs["t1"] = site.Config{TenantID: "t1", Title: "Shop", Theme: site.DefaultTheme}
	store.pages = []site.Page{
		{ID: "p1", TenantID: "t1", Slug: "home", Published: true},
		{ID: "p2", TenantID: "t1", Slug: "draft", Published: false},
		{ID: "p3", TenantID: "t2", Slug: "home", Published: true},
	}

	sf, err := NewStorefrontService(store).Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sf.Tenant.ID != "t1" || sf.Config == nil || sf.Config.Theme != site.DefaultTheme {
		t.Fatalf("storefront = %+v", sf)
	}
	if len(sf.Pages) != 1 || sf.Pages[0].ID != "p1" {
		t.Fatalf("pages = %+v, want only the published page of t1", sf.Pages)
	}
}

func TestStorefrontService_NoConfigYet(t *testing.T) {
	store := newMemStore()
	store.addTenant(tenant.Tenant{ID: "t1", Subdomain: "shop"})

	sf, err := NewStorefrontService(store).Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sf.Config != nil || sf.Pages == nil || len(sf.Pages) != 0 {
		t.Fatalf("storefront = %+v", sf)
	}
}

func TestStorefrontService_SchemaWithoutSiteConfig(t *testing.T) {
	store := newMemStore()
	store.caps = database.CapabilitiesFor(database.MinSchemaVersion)
	store.addTenant(tenant.Tenant{ID: "t1", Subdomain: "shop"})
	store.configs["t1"] = site.Config{TenantID: "t1"}

	sf, err := NewStorefrontService(store).Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sf.Config != nil {
		t.Fatal("site config must not be read on an old schema")
	}
}

func TestStorefrontService_UnknownTenant(t *testing.T) {
	_, err := NewStorefrontService(newMemStore()).Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

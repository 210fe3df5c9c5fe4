//go:build integration

package integration_test

import (
	"context"
	"testing"

	"github.com/Strob0t/MarketForge/internal/adapter/postgres"
	"github.com/Strob0t/MarketForge/internal/port/database"
)

// TestMigrationCapabilities walks the schema down and back up, checking the
// capability descriptor at every optional feature boundary.
func TestMigrationCapabilities(t *testing.T) {
	ctx := context.Background()
	latest := database.PageTemplatesSchemaVersion

	if err := postgres.RunMigrations(ctx, testDSN); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	t.Cleanup(func() {
		if err := postgres.RunMigrations(ctx, testDSN); err != nil {
			t.Errorf("re-apply migrations: %v", err)
		}
	})

	steps := []struct {
		version       int64
		siteConfig    bool
		pageTemplates bool
	}{
		{latest, true, true},
		{database.SiteConfigSchemaVersion, true, false},
		{database.MinSchemaVersion, false, false},
	}

	for i, step := range steps {
		if i > 0 {
			if err := postgres.RollbackMigrations(ctx, testDSN, 1); err != nil {
				t.Fatalf("rollback to %d: %v", step.version, err)
			}
		}
		v, err := postgres.MigrationVersion(ctx, testDSN)
		if err != nil {
			t.Fatalf("MigrationVersion: %v", err)
		}
		if v != step.version {
			t.Fatalf("version = %d, want %d", v, step.version)
		}
		caps, err := postgres.LoadCapabilities(ctx, testDSN)
		if err != nil {
			t.Fatalf("LoadCapabilities at %d: %v", v, err)
		}
		if caps.SiteConfig != step.siteConfig || caps.PageTemplates != step.pageTemplates {
			t.Fatalf("caps at %d = %+v", v, caps)
		}
	}
}

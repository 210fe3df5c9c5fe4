package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	idclient "github.com/Strob0t/MarketForge/internal/adapter/identity"
	"github.com/Strob0t/MarketForge/internal/adapter/postgres"
	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/domain/customdomain"
	"github.com/Strob0t/MarketForge/internal/domain/tenant"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/resilience"
	"github.com/Strob0t/MarketForge/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list-markets":
		return runAdminListMarkets(args[1:])
	case "resolve":
		return runAdminResolve(args[1:])
	case "add-domain":
		return runAdminAddDomain(args[1:])
	case "provision":
		return runAdminProvision(args[1:])
	case "migrate-version":
		return runAdminMigrateVersion()
	case "rollback":
		return runAdminRollback(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: marketforge admin <command> [options]

Commands:
  list-markets     List markets, optionally filtered by status
  resolve          Show which market a host routes to and why
  add-domain       Bind a custom domain to a market
  provision        Run the market setup flow on behalf of a user
  migrate-version  Print the applied schema version and its features
  rollback         Roll back the last N migrations
  help             Show this help message

Examples:
  marketforge admin list-markets --status ACTIVE
  marketforge admin resolve shop.saeaa.com
  marketforge admin add-domain --market 0b6f... --domain shop.example.com --activate
  marketforge admin provision --user u-123 --name "Acme" --subdomain acme
  marketforge admin rollback --steps 1
`)
}

type adminDeps struct {
	cfg   *config.Config
	store *postgres.Store
	names *service.NameRegistry
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	caps, err := postgres.LoadCapabilities(ctx, cfg.Postgres.DSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("capabilities: %w", err)
	}

	store := postgres.NewStore(pool, caps)
	names := service.NewNameRegistry(store, cfg.Domains.BaseDomains)
	names.SetMainDomains(cfg.Domains.MainDomains)
	deps := &adminDeps{cfg: cfg, store: store, names: names}
	return deps, pool.Close, nil
}

func runAdminListMarkets(args []string) error {
	fs := flag.NewFlagSet("list-markets", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status (ACTIVE, SUSPENDED, INACTIVE)")
	limit := fs.Int("limit", 100, "maximum number of markets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *status != "" && !tenant.ValidStatuses[tenant.Status(*status)] {
		return fmt.Errorf("invalid status %q", *status)
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	markets, err := service.NewTenantService(deps.store, deps.names).List(ctx, tenant.ListFilter{
		Status: tenant.Status(*status),
		Limit:  *limit,
	})
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	if len(markets) == 0 {
		fmt.Println("No markets found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUBDOMAIN\tNAME\tPLAN\tSTATUS\tCREATED")
	for i := range markets {
		m := &markets[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.Subdomain, m.Name, m.Plan, m.Status, m.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runAdminResolve(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: marketforge admin resolve <host>")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := service.NewDomainResolver(deps.store, deps.cfg.Domains).Explain(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "host\t%s\n", res.Host)
	_, _ = fmt.Fprintf(w, "rule\t%s\n", res.Rule)
	if res.Subdomain != "" {
		_, _ = fmt.Fprintf(w, "subdomain\t%s\n", res.Subdomain)
	}
	tid := res.TenantID
	if tid == "" {
		tid = "(none)"
	}
	_, _ = fmt.Fprintf(w, "market\t%s\n", tid)
	return w.Flush()
}

func runAdminAddDomain(args []string) error {
	fs := flag.NewFlagSet("add-domain", flag.ContinueOnError)
	marketID := fs.String("market", "", "market id (required)")
	domainName := fs.String("domain", "", "domain name (required)")
	activate := fs.Bool("activate", false, "mark the domain verified immediately")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *marketID == "" {
		return errors.New("--market is required")
	}
	if *domainName == "" {
		return errors.New("--domain is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewCustomDomainService(deps.store, deps.names)
	d, err := svc.Create(ctx, customdomain.CreateRequest{Domain: *domainName, TenantID: *marketID})
	if err != nil {
		return fmt.Errorf("add domain: %w", err)
	}
	if *activate {
		if d, err = svc.Activate(ctx, d.Domain, customdomain.ActivateRequest{}); err != nil {
			return fmt.Errorf("activate domain: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "Domain %s bound to %s (status=%s)\n", d.Domain, d.TenantID, d.Status)
	return nil
}

func runAdminProvision(args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	userID := fs.String("user", "", "identity store user id of the owner (required)")
	email := fs.String("email", "", "owner email")
	name := fs.String("name", "", "market name (required)")
	subdomain := fs.String("subdomain", "", "market subdomain (required)")
	customDomain := fs.String("custom-domain", "", "optional custom domain")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *name == "" || *subdomain == "" {
		return errors.New("--user, --name and --subdomain are required")
	}

	token, err := promptSecret("Owner session token: ")
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token == "" {
		return errors.New("a session token is required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	verify := deps.cfg.Provisioning.Verify
	verifier := resilience.NewVerifier(resilience.VisibilityPolicy{
		MaxAttempts: verify.MaxAttempts,
		BaseDelay:   verify.BaseDelay,
		CapDelay:    verify.CapDelay,
	})
	svc := service.NewProvisioningService(deps.store, deps.names, idclient.NewClient(deps.cfg.Identity), verifier, deps.cfg.Provisioning)

	caller := &user.Session{UserID: *userID, Email: *email, Token: token}
	t, err := svc.Setup(ctx, caller, tenant.SetupRequest{
		Name:         *name,
		Subdomain:    *subdomain,
		CustomDomain: *customDomain,
	})
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Market provisioned: %s (id=%s, subdomain=%s)\n", t.Name, t.ID, t.Subdomain)
	return nil
}

func runAdminMigrateVersion() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	caps, err := postgres.LoadCapabilities(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (site_config=%t, page_templates=%t)\n",
		caps.SchemaVersion, caps.SiteConfig, caps.PageTemplates)
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return errors.New("--steps must be >= 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s), now at version %d\n", *steps, v)
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after secret input
	if err != nil {
		return "", err
	}
	return string(b), nil
}

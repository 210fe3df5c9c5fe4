package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"

	mfhttp "github.com/Strob0t/MarketForge/internal/adapter/http"
	idclient "github.com/Strob0t/MarketForge/internal/adapter/identity"
	mfnats "github.com/Strob0t/MarketForge/internal/adapter/nats"
	"github.com/Strob0t/MarketForge/internal/adapter/natskv"
	mfotel "github.com/Strob0t/MarketForge/internal/adapter/otel"
	"github.com/Strob0t/MarketForge/internal/adapter/postgres"
	"github.com/Strob0t/MarketForge/internal/adapter/ristretto"
	"github.com/Strob0t/MarketForge/internal/adapter/tiered"
	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/logger"
	"github.com/Strob0t/MarketForge/internal/middleware"
	"github.com/Strob0t/MarketForge/internal/port/cache"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
	"github.com/Strob0t/MarketForge/internal/resilience"
	"github.com/Strob0t/MarketForge/internal/secrets"
	"github.com/Strob0t/MarketForge/internal/service"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"base_domains", cfg.Domains.BaseDomains,
		"write_order", cfg.Provisioning.WriteOrder,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownTelemetry, err := mfotel.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := mfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	caps, err := postgres.LoadCapabilities(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}
	slog.Info("migrations applied",
		"schema_version", caps.SchemaVersion,
		"site_config", caps.SiteConfig,
		"page_templates", caps.PageTemplates,
	)
	store := postgres.NewStore(pool, caps)

	// Credential cache: ristretto L1, NATS KV L2 when NATS is configured.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	var credStore cache.Cache = l1

	// NATS (optional): lifecycle events, L2 cache, idempotency replay.
	var (
		queue  *mfnats.Queue
		idemKV jetstream.KeyValue
	)
	if cfg.NATS.URL != "" {
		queue, err = mfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()

		l2, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		credStore = tiered.New(l1, l2, cfg.Cache.CredentialTTL)

		idemKV, err = queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
		if err != nil {
			return fmt.Errorf("idempotency kv: %w", err)
		}
	} else {
		slog.Warn("nats disabled: no events, no idempotency replay")
	}

	vault, err := secrets.NewVault(secrets.EnvLoader(cfg.Auth.AdminKeyEnv, cfg.Auth.ServiceTokenEnv))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	creds := secrets.NewCredentialCache(vault, credStore, cfg.Cache.CredentialTTL)

	// Identity store
	identity := idclient.NewClient(cfg.Identity)
	identity.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithTripClassifier(idclient.Trips)))
	identity.SetTokenSource(creds.Source(cfg.Auth.ServiceTokenEnv))

	// --- Services ---
	names := service.NewNameRegistry(store, cfg.Domains.BaseDomains)
	names.SetMainDomains(cfg.Domains.MainDomains)
	verifier := resilience.NewVerifier(resilience.VisibilityPolicy{
		MaxAttempts: cfg.Provisioning.Verify.MaxAttempts,
		BaseDelay:   cfg.Provisioning.Verify.BaseDelay,
		CapDelay:    cfg.Provisioning.Verify.CapDelay,
	})
	provisioningSvc := service.NewProvisioningService(store, names, identity, verifier, cfg.Provisioning)
	tenantSvc := service.NewTenantService(store, names)
	domainSvc := service.NewCustomDomainService(store, names)
	resolver := service.NewDomainResolver(store, cfg.Domains)

	provisioningSvc.SetMetrics(metrics)
	resolver.SetMetrics(metrics)
	if queue != nil {
		var q messagequeue.Queue = queue
		provisioningSvc.SetQueue(q)
		tenantSvc.SetQueue(q)
		domainSvc.SetQueue(q)

		cancelRotation, err := q.Subscribe(ctx, messagequeue.SubjectCredentialsRotated, creds.HandleRotation)
		if err != nil {
			return fmt.Errorf("rotation subscriber: %w", err)
		}
		defer cancelRotation()
	}

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(time.Minute, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &mfhttp.Handlers{
		Names:        names,
		Provisioning: provisioningSvc,
		Tenants:      tenantSvc,
		Domains:      domainSvc,
		Resolver:     resolver,
		Storefront:   service.NewStorefrontService(store),
		Ready:        pool.Ping,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Provisioning.Deadline + 5*time.Second))
	r.Use(mfotel.HTTPMiddleware(cfg.Telemetry.ServiceName))
	r.Use(mfhttp.SecurityHeaders)
	r.Use(mfhttp.CORS(cfg.Server.CORSOrigin))

	mfhttp.MountRoutes(r, handlers, mfhttp.Guards{
		Session:     middleware.Auth(middleware.NewSessionVerifier(cfg.Auth)),
		Admin:       middleware.AdminKey(creds.Source(cfg.Auth.AdminKeyEnv)),
		RateLimit:   limiter.Handler,
		Idempotency: middleware.Idempotency(idemKV),
	})

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Provisioning.Deadline + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if queue != nil {
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}
	return nil
}

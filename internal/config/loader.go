package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "marketforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MARKETFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "MARKETFORGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "MARKETFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "MARKETFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "MARKETFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "MARKETFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "MARKETFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")

	// Identity store
	setString(&cfg.Identity.URL, "MARKETFORGE_IDENTITY_URL")
	setDuration(&cfg.Identity.Timeout, "MARKETFORGE_IDENTITY_TIMEOUT")
	setUint64(&cfg.Identity.MaxRetries, "MARKETFORGE_IDENTITY_MAX_RETRIES")
	setDuration(&cfg.Identity.RetryBaseDelay, "MARKETFORGE_IDENTITY_RETRY_BASE_DELAY")

	// Auth
	setString(&cfg.Auth.JWTSecret, "MARKETFORGE_JWT_SECRET")
	setString(&cfg.Auth.JWTIssuer, "MARKETFORGE_JWT_ISSUER")
	setString(&cfg.Auth.AdminKeyEnv, "MARKETFORGE_ADMIN_KEY_ENV")
	setString(&cfg.Auth.ServiceTokenEnv, "MARKETFORGE_SERVICE_TOKEN_ENV")

	setString(&cfg.Logging.Level, "MARKETFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MARKETFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "MARKETFORGE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "MARKETFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MARKETFORGE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "MARKETFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "MARKETFORGE_RATE_BURST")
	setDuration(&cfg.Rate.MaxIdleTime, "MARKETFORGE_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "MARKETFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "MARKETFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "MARKETFORGE_CACHE_L2_TTL")
	setDuration(&cfg.Cache.CredentialTTL, "MARKETFORGE_CREDENTIAL_TTL")

	// Domains
	setStrings(&cfg.Domains.BaseDomains, "MARKETFORGE_BASE_DOMAINS")
	setStrings(&cfg.Domains.MainDomains, "MARKETFORGE_MAIN_DOMAINS")
	setString(&cfg.Domains.DefaultTenantID, "MARKETFORGE_DEFAULT_TENANT_ID")

	// Provisioning
	setDuration(&cfg.Provisioning.Deadline, "MARKETFORGE_PROVISION_DEADLINE")
	setString(&cfg.Provisioning.WriteOrder, "MARKETFORGE_PROVISION_WRITE_ORDER")
	setString(&cfg.Provisioning.DefaultPlan, "MARKETFORGE_PROVISION_DEFAULT_PLAN")
	setInt(&cfg.Provisioning.Verify.MaxAttempts, "MARKETFORGE_VERIFY_MAX_ATTEMPTS")
	setDuration(&cfg.Provisioning.Verify.BaseDelay, "MARKETFORGE_VERIFY_BASE_DELAY")
	setDuration(&cfg.Provisioning.Verify.CapDelay, "MARKETFORGE_VERIFY_CAP_DELAY")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "MARKETFORGE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "MARKETFORGE_IDEMPOTENCY_TTL")

	// Telemetry
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
}

// normalize lowercases domain lists and drops empty entries.
func normalize(cfg *Config) {
	cfg.Domains.BaseDomains = cleanDomains(cfg.Domains.BaseDomains)
	cfg.Domains.MainDomains = cleanDomains(cfg.Domains.MainDomains)
	cfg.Provisioning.WriteOrder = strings.ToLower(strings.TrimSpace(cfg.Provisioning.WriteOrder))
}

func cleanDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Identity.URL == "" {
		return errors.New("identity.url is required")
	}
	if cfg.Identity.Timeout <= 0 {
		return errors.New("identity.timeout must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if len(cfg.Domains.BaseDomains) == 0 {
		return errors.New("domains.base_domains must not be empty")
	}
	if cfg.Provisioning.Deadline <= 0 {
		return errors.New("provisioning.deadline must be > 0")
	}
	switch cfg.Provisioning.WriteOrder {
	case WriteOrderExternalFirst, WriteOrderLocalFirst:
	default:
		return fmt.Errorf("provisioning.write_order must be %q or %q, got %q",
			WriteOrderExternalFirst, WriteOrderLocalFirst, cfg.Provisioning.WriteOrder)
	}
	v := cfg.Provisioning.Verify
	if v.MaxAttempts < 1 {
		return errors.New("provisioning.verify.max_attempts must be >= 1")
	}
	if v.BaseDelay <= 0 || v.CapDelay < v.BaseDelay {
		return errors.New("provisioning.verify requires 0 < base_delay <= cap_delay")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings parses a comma-separated list.
func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.Split(v, ",")
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

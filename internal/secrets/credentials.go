package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/MarketForge/internal/port/cache"
	"github.com/Strob0t/MarketForge/internal/port/messagequeue"
)

// ErrCredentialMissing is returned when the source has no value for a credential.
var ErrCredentialMissing = errors.New("credential not configured")

const cacheKeyPrefix = "cred:"

// CredentialCache serves platform credentials (the admin key, the identity
// store service token) from a TTL cache and reloads the vault on a miss.
// Concurrent misses for the same name share one load. Owners call
// Invalidate when a credential is rejected or rotated.
type CredentialCache struct {
	vault *Vault
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCredentialCache creates a CredentialCache over the given vault and cache.
func NewCredentialCache(v *Vault, c cache.Cache, ttl time.Duration) *CredentialCache {
	return &CredentialCache{vault: v, cache: c, ttl: ttl}
}

// Get returns the current value of the named credential.
func (c *CredentialCache) Get(ctx context.Context, name string) (string, error) {
	key := cacheKeyPrefix + name
	if val, ok, err := c.cache.Get(ctx, key); err == nil && ok && len(val) > 0 {
		return string(val), nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if err := c.vault.Reload(); err != nil {
			return "", err
		}
		val := c.vault.Get(name)
		if val == "" {
			return "", fmt.Errorf("%w: %s", ErrCredentialMissing, name)
		}
		// A cache write failure only costs a reload on the next call.
		_ = c.cache.Set(ctx, key, []byte(val), c.ttl)
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached value so the next Get reloads it. An empty
// name invalidates every credential known to the vault.
func (c *CredentialCache) Invalidate(ctx context.Context, name string) error {
	names := []string{name}
	if name == "" {
		names = c.vault.Keys()
	}
	var errs []error
	for _, n := range names {
		if err := c.cache.Delete(ctx, cacheKeyPrefix+n); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// TokenSource binds a CredentialCache to one credential name.
type TokenSource struct {
	cache *CredentialCache
	name  string
}

// Source returns a TokenSource for name.
func (c *CredentialCache) Source(name string) *TokenSource {
	return &TokenSource{cache: c, name: name}
}

// Token returns the current credential value.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	return s.cache.Get(ctx, s.name)
}

// Invalidate drops the cached credential.
func (s *TokenSource) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, s.name)
}

// HandleRotation is a messagequeue.Handler for platform.credentials.rotated.
func (c *CredentialCache) HandleRotation(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.CredentialsRotatedPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode rotation event: %w", err)
		}
	}
	return c.Invalidate(ctx, p.Key)
}

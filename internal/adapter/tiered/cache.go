// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/MarketForge/internal/port/cache"
)

// Cache combines an L1 (in-process) and an optional L2 (remote) cache.
// Get checks L1 first, then L2, backfilling L1 on an L2 hit. An L2 read
// failure is reported as a miss so callers fall back to the source.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. l2 may be nil. l1Expire bounds how long L2
// backfill entries live in L1, which is also how long another instance's
// invalidation can take to reach this one.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}
	if c.l2 == nil {
		return nil, false, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil || !found {
		return nil, false, nil //nolint:nilerr // L2 outage degrades to a miss
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes L1 then L2; an L2 failure is returned after L1 is populated.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1ttl := ttl
	if c.l1Expire > 0 && (l1ttl <= 0 || c.l1Expire < l1ttl) {
		l1ttl = c.l1Expire
	}
	if err := c.l1.Set(ctx, key, value, l1ttl); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes from L2 first so a concurrent L1 miss cannot backfill the
// stale value, then from L1. Both are attempted.
func (c *Cache) Delete(ctx context.Context, key string) error {
	var errs []error
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.l1.Delete(ctx, key); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

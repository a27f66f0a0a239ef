// Package gateway provides anti-corruption layer implementations.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"agent-relay/domain"
	"agent-relay/metrics"
	"agent-relay/port"
)

const (
	// defaultSafetyMargin is subtracted from the token expiry when deciding
	// freshness, so a token is never used in its final seconds.
	defaultSafetyMargin = time.Minute
	// defaultStoreMargin extends the store TTL past the token expiry to
	// tolerate clock skew between processes sharing the store.
	defaultStoreMargin = 5 * time.Minute
)

// CredentialCacheConfig configures one credential cache instance.
type CredentialCacheConfig struct {
	// Key is the store key for the credential record. Each credential kind
	// owns exactly one key.
	Key string
	// SafetyMargin is subtracted from the expiry when checking freshness.
	SafetyMargin time.Duration
	// StoreMargin extends the store record TTL past the token expiry.
	StoreMargin time.Duration
	// FixedLifetime is assigned to credentials whose refresh flow returns no
	// expiry. Zero means the refresher's expiry is trusted.
	FixedLifetime time.Duration
}

// CredentialCache manages a single bearer-token lifecycle on top of the
// shared cache store: read-through lookup, freshness check, single-flight
// refresh, and invalidation on auth errors.
//
// The store is the source of truth; the in-process copy only serves lookups
// while the store is unreachable. Cross-process refresh races are tolerated:
// a redundant refresh is wasteful but safe, last write wins in the store.
// Implements port.TokenSource.
type CredentialCache struct {
	store     port.KVStore
	refresher port.TokenRefresher
	cfg       CredentialCacheConfig
	logger    *slog.Logger

	flight singleflight.Group

	mu   sync.RWMutex
	memo *domain.Credential
}

// NewCredentialCache creates a credential cache for one credential key.
func NewCredentialCache(store port.KVStore, refresher port.TokenRefresher, cfg CredentialCacheConfig, logger *slog.Logger) *CredentialCache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = defaultSafetyMargin
	}
	if cfg.StoreMargin == 0 {
		cfg.StoreMargin = defaultStoreMargin
	}

	return &CredentialCache{
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Token returns a valid credential, refreshing it when the cached record is
// absent or inside the safety margin. At most one network refresh is in
// flight per credential key within the process; concurrent callers share
// its result.
func (c *CredentialCache) Token(ctx context.Context) (*domain.Credential, error) {
	if cred := c.lookup(ctx); cred.Fresh(c.cfg.SafetyMargin) {
		return cred, nil
	}

	v, err, _ := c.flight.Do(c.cfg.Key, func() (any, error) {
		// Another caller may have refreshed while this one waited for the
		// flight; re-check the store before going to the network.
		if cred := c.lookup(ctx); cred.Fresh(c.cfg.SafetyMargin) {
			return cred, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Credential), nil
}

// Invalidate deletes the cached record. The next Token call refreshes.
func (c *CredentialCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.memo = nil
	c.mu.Unlock()

	if err := c.store.Delete(ctx, c.cfg.Key); err != nil {
		c.logger.Warn("failed to delete credential from store", "key", c.cfg.Key, "error", err)
		return err
	}
	c.logger.Info("credential invalidated", "key", c.cfg.Key)
	return nil
}

// lookup reads the credential record from the store, falling back to the
// in-process copy when the store is unreachable. Returns nil when nothing
// usable is cached.
func (c *CredentialCache) lookup(ctx context.Context) *domain.Credential {
	raw, err := c.store.Get(ctx, c.cfg.Key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheUnavailable) {
			c.logger.Warn("cache store unreachable, using in-process credential", "key", c.cfg.Key)
			c.mu.RLock()
			defer c.mu.RUnlock()
			return c.memo
		}
		return nil
	}

	var cred domain.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		c.logger.Warn("discarding undecodable credential record", "key", c.cfg.Key, "error", err)
		return nil
	}
	return &cred
}

// refresh performs the network refresh and persists the result. On failure
// the cached record is cleared and the error is reported; retrying is the
// caller's decision.
func (c *CredentialCache) refresh(ctx context.Context) (*domain.Credential, error) {
	cred, err := c.refresher.Refresh(ctx)
	if err != nil {
		metrics.RecordTokenRefresh(c.cfg.Key, "error")
		c.clear(ctx)
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenUnavailable, err)
	}
	metrics.RecordTokenRefresh(c.cfg.Key, "ok")

	if c.cfg.FixedLifetime > 0 {
		cred.ExpiresAt = cred.ObtainedAt.Add(c.cfg.FixedLifetime)
	}
	if cred.ExpiresAt.IsZero() {
		c.clear(ctx)
		return nil, fmt.Errorf("%w: refresher produced credential without expiry", domain.ErrTokenUnavailable)
	}

	c.persist(ctx, cred)
	return cred, nil
}

func (c *CredentialCache) persist(ctx context.Context, cred *domain.Credential) {
	c.mu.Lock()
	c.memo = cred
	c.mu.Unlock()

	encoded, err := json.Marshal(cred)
	if err != nil {
		c.logger.Warn("failed to encode credential record", "key", c.cfg.Key, "error", err)
		return
	}

	ttl := time.Until(cred.ExpiresAt) + c.cfg.StoreMargin
	if err := c.store.Set(ctx, c.cfg.Key, string(encoded), ttl); err != nil {
		// Store trouble only costs cross-process reuse, not this request.
		c.logger.Warn("failed to persist credential to store", "key", c.cfg.Key, "error", err)
	}
}

func (c *CredentialCache) clear(ctx context.Context) {
	c.mu.Lock()
	c.memo = nil
	c.mu.Unlock()

	if err := c.store.Delete(ctx, c.cfg.Key); err != nil {
		c.logger.Warn("failed to clear credential from store", "key", c.cfg.Key, "error", err)
	}
}

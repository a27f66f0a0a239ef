package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/domain"
)

// countingRefresher counts network refresh invocations and hands out tokens
// with a configurable lifetime.
type countingRefresher struct {
	calls    atomic.Int64
	lifetime time.Duration
	delay    time.Duration
	err      error
}

func (r *countingRefresher) Refresh(_ context.Context) (*domain.Credential, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}

	now := time.Now()
	cred := &domain.Credential{
		Token:      "token-1",
		ObtainedAt: now,
	}
	if r.lifetime > 0 {
		cred.ExpiresAt = now.Add(r.lifetime)
	}
	return cred, nil
}

func TestCredentialCache_Token_RefreshesOnce(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{lifetime: time.Hour}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	cred, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", cred.Token)

	cred, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", cred.Token)

	assert.Equal(t, int64(1), refresher.calls.Load(), "cached token should be reused without a refresh")
}

func TestCredentialCache_Token_ConcurrentCallersShareOneRefresh(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{lifetime: time.Hour, delay: 50 * time.Millisecond}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), refresher.calls.Load(), "concurrent callers should share one refresh")
}

func TestCredentialCache_Invalidate_ForcesRefresh(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{lifetime: time.Hour}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(context.Background()))

	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), refresher.calls.Load())
}

func TestCredentialCache_Token_ExpiredRecordRefreshes(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{lifetime: 30 * time.Second}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{
		Key:          "test:token",
		SafetyMargin: time.Minute,
	}, testLogger())

	// 30s lifetime is inside the 1m safety margin, so every call refreshes.
	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), refresher.calls.Load())
}

func TestCredentialCache_FixedLifetime(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{} // no expiry from the flow
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{
		Key:           "test:token",
		FixedLifetime: 5 * time.Minute,
	}, testLogger())

	cred, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cred.Lifetime())
}

func TestCredentialCache_NoExpiryWithoutFixedLifetime(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{} // no expiry, no fixed lifetime configured
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	_, err := cache.Token(context.Background())
	require.ErrorIs(t, err, domain.ErrTokenUnavailable)
}

func TestCredentialCache_RefresherFailure(t *testing.T) {
	_, store := newTestStore(t)
	refresher := &countingRefresher{err: errors.New("auth server down")}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	_, err := cache.Token(context.Background())
	require.ErrorIs(t, err, domain.ErrTokenUnavailable)
}

func TestCredentialCache_StoreDown_ServesInProcessCopy(t *testing.T) {
	mr, store := newTestStore(t)
	refresher := &countingRefresher{lifetime: time.Hour}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	mr.Close()

	// First call refreshes; persisting to the store fails but the request
	// still succeeds.
	cred, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", cred.Token)

	// Second call is served from the in-process copy.
	cred, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", cred.Token)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestCredentialCache_DiscardsUndecodableRecord(t *testing.T) {
	mr, store := newTestStore(t)
	refresher := &countingRefresher{lifetime: time.Hour}
	cache := NewCredentialCache(store, refresher, CredentialCacheConfig{Key: "test:token"}, testLogger())

	require.NoError(t, mr.Set("test:token", "{not json"))

	cred, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", cred.Token)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

package domain

import "errors"

// Credential errors.
var (
	// ErrTokenUnavailable is returned when no valid token could be obtained
	// and the refresh attempt failed.
	ErrTokenUnavailable = errors.New("token unavailable")
	// ErrAuthRejected is returned when an upstream rejected the bearer token
	// with 401 or 403. The holder should invalidate and retry once.
	ErrAuthRejected = errors.New("authorization rejected by upstream")
	// ErrPrivateKey is returned when the signing key cannot be read or parsed.
	ErrPrivateKey = errors.New("private key unreadable")
)

// Upstream errors.
var (
	// ErrRateLimited is returned on an explicit 429 from an upstream.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrMalformedResponse is returned when an upstream payload does not have
	// the expected shape. Not retryable.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrAgentUnavailable is returned when the agent backend cannot produce
	// a reply.
	ErrAgentUnavailable = errors.New("agent backend unavailable")
	// ErrAssistantUnavailable is returned when the generative assistant is
	// not configured or cannot be reached.
	ErrAssistantUnavailable = errors.New("assistant unavailable")
)

// Cache store errors.
var (
	// ErrCacheMiss is returned when a key does not exist in the cache store.
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheUnavailable is returned when the cache store cannot be reached.
	// Managers degrade to uncached operation, never fail the request on it.
	ErrCacheUnavailable = errors.New("cache store unavailable")
)

// Session errors.
var (
	// ErrSessionNotFound is returned when no session exists for a user.
	ErrSessionNotFound = errors.New("session not found")
)

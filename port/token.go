package port

import (
	"context"

	"agent-relay/domain"
)

// TokenRefresher performs one network refresh of a credential. Implementations
// are the flow-specific OAuth drivers; they carry no caching or locking.
type TokenRefresher interface {
	Refresh(ctx context.Context) (*domain.Credential, error)
}

// TokenSource yields valid credentials for outbound calls.
//
// Token returns a cached credential when fresh and refreshes it otherwise,
// guaranteeing at most one in-flight refresh per credential key within the
// process. Invalidate drops the cached record so the next Token call
// refreshes; callers invoke it after an upstream 401/403.
type TokenSource interface {
	Token(ctx context.Context) (*domain.Credential, error)
	Invalidate(ctx context.Context) error
}

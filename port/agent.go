package port

import (
	"context"

	"agent-relay/domain"
)

// AgentAPI is the raw transport to the conversational-agent backend. Calls
// take explicit authentication material; auth lifecycle is the caller's
// concern. A 401/403 from the backend surfaces as domain.ErrAuthRejected.
type AgentAPI interface {
	// StartSession opens a new conversation session and returns the
	// server-assigned session ID.
	StartSession(ctx context.Context, auth domain.AgentAuth, agentID, sessionKey string) (string, error)

	// SendMessage sends one sequenced text message into a session.
	SendMessage(ctx context.Context, auth domain.AgentAuth, sessionID string, sequenceID int, text string) (*domain.AgentResponse, error)

	// EndSession terminates a session.
	EndSession(ctx context.Context, auth domain.AgentAuth, sessionID string) error
}

// AgentClient is the authenticated agent surface. Implementations own the
// backend token lifecycle, including the single invalidate-and-retry on an
// auth rejection.
type AgentClient interface {
	StartSession(ctx context.Context, agentID, sessionKey string) (string, error)
	Send(ctx context.Context, sessionID string, sequenceID int, text string) (*domain.AgentResponse, error)
	End(ctx context.Context, sessionID string) error
}

// SessionManager manages per-(agent, user) conversation sessions and their
// message sequence counters.
type SessionManager interface {
	// GetOrCreate returns the cached session for the pair, or starts a new
	// backend session when none is cached. The bool reports whether the
	// session was freshly created.
	GetOrCreate(ctx context.Context, agentID, userID string) (*domain.Session, bool, error)

	// NextSequence returns the sequence ID to use for the next message in
	// the session, starting at 1 for a fresh session.
	NextSequence(ctx context.Context, sessionID string) (int, error)

	// End terminates the session on the backend and removes the cached
	// session records. Backend failure does not block local cleanup.
	End(ctx context.Context, agentID, userID, sessionID string) error
}

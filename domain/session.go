package domain

// Session identifies one conversation between a user and an agent.
//
// SessionKey is chosen by this service for correlation; SessionID is assigned
// by the agent backend. The message sequence counter lives in the cache store
// keyed by SessionID and is not part of this value.
type Session struct {
	// AgentID is the backend agent identifier.
	AgentID string
	// UserID is the messaging-platform user identifier.
	UserID string
	// SessionKey is the client-chosen correlation key (UUID).
	SessionKey string
	// SessionID is the server-assigned conversation identifier.
	SessionID string
}

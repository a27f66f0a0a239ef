package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agent-relay/domain"
	"agent-relay/port"
)

// sessionKeyPrefix namespaces all session records in the shared store.
const sessionKeyPrefix = "sf_agent:"

// defaultSessionTTL bounds how long an idle conversation keeps its session.
const defaultSessionTTL = time.Hour

// SessionGateway manages per-(agent, user) conversation sessions and their
// message sequence counters on top of the shared cache store, with
// read-through creation against the agent backend.
// Implements port.SessionManager.
type SessionGateway struct {
	store  port.KVStore
	agent  port.AgentClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionGateway creates a new session gateway.
func NewSessionGateway(store port.KVStore, agent port.AgentClient, ttl time.Duration, logger *slog.Logger) *SessionGateway {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionGateway{store: store, agent: agent, ttl: ttl, logger: logger}
}

// GetOrCreate returns the cached session for the pair without contacting the
// backend, or starts a new backend session when none is cached. A store
// outage degrades to an uncached session rather than failing the request.
func (g *SessionGateway) GetOrCreate(ctx context.Context, agentID, userID string) (*domain.Session, bool, error) {
	cached, err := g.cachedSession(ctx, agentID, userID)
	if err != nil {
		g.logger.Warn("session cache lookup failed, creating uncached session", "error", err)
	} else if cached != nil {
		g.logger.Debug("using cached session",
			"agent_id", agentID, "user_id", userID, "session_id", cached.SessionID)
		return cached, false, nil
	}

	sessionKey := uuid.NewString()
	sessionID, err := g.agent.StartSession(ctx, agentID, sessionKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start agent session: %w", err)
	}

	session := &domain.Session{
		AgentID:    agentID,
		UserID:     userID,
		SessionKey: sessionKey,
		SessionID:  sessionID,
	}
	g.cacheSession(ctx, session)

	g.logger.Info("agent session created",
		"agent_id", agentID, "user_id", userID, "session_id", sessionID)
	return session, true, nil
}

// NextSequence returns the sequence ID for the message about to be sent and
// advances the persisted counter. The counter key stores the last used
// value; the store's atomic increment makes concurrent senders for one
// session collision-free. With the store unreachable the sequence degrades
// to 1, trading ordering for availability.
func (g *SessionGateway) NextSequence(ctx context.Context, sessionID string) (int, error) {
	key := seqKey(sessionID)

	n, err := g.store.Incr(ctx, key)
	if err != nil {
		g.logger.Warn("sequence counter unavailable, defaulting to 1", "session_id", sessionID, "error", err)
		return 1, nil
	}

	if err := g.store.Expire(ctx, key, g.ttl); err != nil {
		g.logger.Warn("failed to refresh sequence TTL", "session_id", sessionID, "error", err)
	}
	return int(n), nil
}

// End terminates the session on the backend and removes the cached records.
// Backend failure is logged but never blocks local cleanup.
func (g *SessionGateway) End(ctx context.Context, agentID, userID, sessionID string) error {
	if err := g.agent.End(ctx, sessionID); err != nil {
		g.logger.Warn("failed to end agent session on backend", "session_id", sessionID, "error", err)
	}

	err := g.store.Delete(ctx,
		sessionKeyKey(agentID, userID),
		sessionIDKey(agentID, userID),
		seqKey(sessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to delete cached session: %w", err)
	}

	g.logger.Info("session ended", "agent_id", agentID, "user_id", userID, "session_id", sessionID)
	return nil
}

// cachedSession reads the (session_key, session_id) pair, nil when either
// half is missing.
func (g *SessionGateway) cachedSession(ctx context.Context, agentID, userID string) (*domain.Session, error) {
	sessionKey, err := g.store.Get(ctx, sessionKeyKey(agentID, userID))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}

	sessionID, err := g.store.Get(ctx, sessionIDKey(agentID, userID))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.Session{
		AgentID:    agentID,
		UserID:     userID,
		SessionKey: sessionKey,
		SessionID:  sessionID,
	}, nil
}

// cacheSession persists the pair and seeds the sequence counter at zero so
// the first increment yields 1. Store trouble costs only reuse.
func (g *SessionGateway) cacheSession(ctx context.Context, s *domain.Session) {
	if err := g.store.Set(ctx, sessionKeyKey(s.AgentID, s.UserID), s.SessionKey, g.ttl); err != nil {
		g.logger.Warn("failed to cache session key", "error", err)
		return
	}
	if err := g.store.Set(ctx, sessionIDKey(s.AgentID, s.UserID), s.SessionID, g.ttl); err != nil {
		g.logger.Warn("failed to cache session id", "error", err)
		return
	}
	if err := g.store.Set(ctx, seqKey(s.SessionID), "0", g.ttl); err != nil {
		g.logger.Warn("failed to seed sequence counter", "error", err)
	}
}

func sessionKeyKey(agentID, userID string) string {
	return fmt.Sprintf("%ssession_key:%s:%s", sessionKeyPrefix, agentID, userID)
}

func sessionIDKey(agentID, userID string) string {
	return fmt.Sprintf("%ssession_id:%s:%s", sessionKeyPrefix, agentID, userID)
}

func seqKey(sessionID string) string {
	return fmt.Sprintf("%sseq:%s", sessionKeyPrefix, sessionID)
}

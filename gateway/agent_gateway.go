package gateway

import (
	"context"
	"errors"
	"log/slog"

	"agent-relay/domain"
	"agent-relay/port"
)

// AgentGateway is the authenticated surface over the agent backend API. It
// owns the backend token lifecycle for conversation calls: every call uses
// the cached credential, and a 401/403 invalidates it and retries exactly
// once with a freshly refreshed token. Implements port.AgentClient.
type AgentGateway struct {
	api    port.AgentAPI
	tokens port.TokenSource
	logger *slog.Logger
}

// NewAgentGateway creates a new agent gateway.
func NewAgentGateway(api port.AgentAPI, tokens port.TokenSource, logger *slog.Logger) *AgentGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentGateway{api: api, tokens: tokens, logger: logger}
}

// StartSession opens a new backend session for the agent.
func (g *AgentGateway) StartSession(ctx context.Context, agentID, sessionKey string) (string, error) {
	var sessionID string
	err := g.withAuthRetry(ctx, func(auth domain.AgentAuth) error {
		var err error
		sessionID, err = g.api.StartSession(ctx, auth, agentID, sessionKey)
		return err
	})
	return sessionID, err
}

// Send sends one sequenced message into the session.
func (g *AgentGateway) Send(ctx context.Context, sessionID string, sequenceID int, text string) (*domain.AgentResponse, error) {
	var resp *domain.AgentResponse
	err := g.withAuthRetry(ctx, func(auth domain.AgentAuth) error {
		var err error
		resp, err = g.api.SendMessage(ctx, auth, sessionID, sequenceID, text)
		return err
	})
	return resp, err
}

// End terminates the backend session.
func (g *AgentGateway) End(ctx context.Context, sessionID string) error {
	return g.withAuthRetry(ctx, func(auth domain.AgentAuth) error {
		return g.api.EndSession(ctx, auth, sessionID)
	})
}

// withAuthRetry runs the call with a valid credential and retries exactly
// once after an auth rejection, with the token invalidated in between.
func (g *AgentGateway) withAuthRetry(ctx context.Context, call func(domain.AgentAuth) error) error {
	cred, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = call(cred.Auth())
	if !errors.Is(err, domain.ErrAuthRejected) {
		return err
	}

	g.logger.Info("backend rejected token, refreshing and retrying once")
	if invErr := g.tokens.Invalidate(ctx); invErr != nil {
		g.logger.Warn("backend token invalidation failed", "error", invErr)
	}

	cred, tokenErr := g.tokens.Token(ctx)
	if tokenErr != nil {
		return tokenErr
	}
	return call(cred.Auth())
}

// Package usecase contains business logic for agent-relay.
package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"agent-relay/domain"
	"agent-relay/metrics"
	"agent-relay/port"
)

// defaultRelayTimeout bounds the end-to-end handling of one user message.
const defaultRelayTimeout = 60 * time.Second

// RelayUsecase relays one user text message through the summarize, agent
// and compose stages and delivers the reply. Every stage degrades rather
// than fails: the user always gets some reply, worst case the static
// fallback text.
type RelayUsecase struct {
	assistant port.Assistant
	sessions  port.SessionManager
	agent     port.AgentClient
	bot       port.BotAPI

	agentID            string
	terminationPhrases []string
	timeout            time.Duration
	logger             *slog.Logger
}

// NewRelayUsecase creates a new relay usecase.
func NewRelayUsecase(
	assistant port.Assistant,
	sessions port.SessionManager,
	agent port.AgentClient,
	bot port.BotAPI,
	agentID string,
	terminationPhrases []string,
	timeout time.Duration,
	logger *slog.Logger,
) *RelayUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRelayTimeout
	}
	if len(terminationPhrases) == 0 {
		terminationPhrases = domain.DefaultTerminationPhrases
	}

	return &RelayUsecase{
		assistant:          assistant,
		sessions:           sessions,
		agent:              agent,
		bot:                bot,
		agentID:            agentID,
		terminationPhrases: terminationPhrases,
		timeout:            timeout,
		logger:             logger,
	}
}

// HandleTextMessage processes one inbound user text message end to end.
// It never reports an error to the caller: the webhook must acknowledge
// regardless, so every failure is absorbed into a degraded reply here.
func (u *RelayUsecase) HandleTextMessage(ctx context.Context, userID, text string) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	start := time.Now()
	outcome, session := u.relay(ctx, userID, text)
	metrics.RecordRelay(outcome, time.Since(start).Seconds())

	// A termination phrase ends the session whatever happened to the
	// reply delivery.
	if session != nil && u.isTermination(text) {
		u.endSession(ctx, session)
	}
}

// relay runs the message through the pipeline and returns the outcome label
// together with the session it used, nil when no session could be obtained.
func (u *RelayUsecase) relay(ctx context.Context, userID, text string) (string, *domain.Session) {
	summary, err := u.assistant.Summarize(ctx, text)
	if err != nil {
		u.logger.Warn("summarize failed, forwarding raw text", "user_id", userID, "error", err)
		summary = text
	}

	session, fresh, err := u.sessions.GetOrCreate(ctx, u.agentID, userID)
	if err != nil {
		u.logger.Error("failed to obtain agent session", "user_id", userID, "error", err)
		return u.fallback(ctx, userID, text), nil
	}
	if fresh {
		u.logger.Info("started new conversation", "user_id", userID, "session_id", session.SessionID)
	}

	seq, err := u.sessions.NextSequence(ctx, session.SessionID)
	if err != nil {
		u.logger.Warn("sequence allocation failed", "session_id", session.SessionID, "error", err)
		seq = 1
	}

	resp, err := u.agent.Send(ctx, session.SessionID, seq, summary)
	if err != nil {
		u.logger.Error("agent message failed", "session_id", session.SessionID, "error", err)
		return u.fallback(ctx, userID, text), session
	}

	agentText := resp.ReplyText()
	if agentText == "" {
		u.logger.Warn("agent returned empty reply", "session_id", session.SessionID)
		return u.fallback(ctx, userID, text), session
	}

	reply, err := u.assistant.Compose(ctx, agentText, text)
	if err != nil {
		u.logger.Warn("compose failed, sending agent reply as-is", "session_id", session.SessionID, "error", err)
		reply = agentText
	}

	u.deliver(ctx, userID, reply)
	return metrics.OutcomeAgent, session
}

// fallback answers directly from the generative assistant when the agent
// backend is out of reach, degrading further to the static text.
func (u *RelayUsecase) fallback(ctx context.Context, userID, text string) string {
	reply, err := u.assistant.Reply(ctx, text)
	if err != nil || reply == "" {
		u.logger.Warn("assistant fallback failed, sending static reply", "user_id", userID, "error", err)
		u.deliver(ctx, userID, domain.FallbackReplyText)
		return metrics.OutcomeStatic
	}
	u.deliver(ctx, userID, reply)
	return metrics.OutcomeFallback
}

func (u *RelayUsecase) deliver(ctx context.Context, userID, text string) {
	if err := u.bot.SendText(ctx, userID, text); err != nil {
		metrics.RecordDelivery("error")
		u.logger.Error("failed to deliver reply", "user_id", userID, "error", err)
		return
	}
	metrics.RecordDelivery("ok")
}

func (u *RelayUsecase) isTermination(text string) bool {
	for _, phrase := range u.terminationPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func (u *RelayUsecase) endSession(ctx context.Context, session *domain.Session) {
	if err := u.sessions.End(ctx, session.AgentID, session.UserID, session.SessionID); err != nil {
		u.logger.Warn("failed to end session", "session_id", session.SessionID, "error", err)
		return
	}
	u.logger.Info("conversation ended by user", "user_id", session.UserID, "session_id", session.SessionID)
}

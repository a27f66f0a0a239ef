package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agent-relay/domain"
)

// DefaultAgentAPIBaseURL is the agent backend conversation API base.
const DefaultAgentAPIBaseURL = "https://api.salesforce.com/einstein/ai-agent/v1"

// agentTokenResponse is the client-credentials token response. The flow does
// not return a usable expiry; the credential cache assigns a fixed window.
type agentTokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type"`
}

type startSessionRequest struct {
	ExternalSessionKey string         `json:"externalSessionKey"`
	InstanceConfig     instanceConfig `json:"instanceConfig"`
	FeatureSupport     string         `json:"featureSupport"`
	BypassUser         bool           `json:"bypassUser"`
}

type instanceConfig struct {
	Endpoint string `json:"endpoint"`
}

type startSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type sendMessageRequest struct {
	Message sequencedMessage `json:"message"`
}

type sequencedMessage struct {
	SequenceID int    `json:"sequenceId"`
	Type       string `json:"type"`
	Text       string `json:"text"`
}

// AgentforceConfig configures the agent backend client.
type AgentforceConfig struct {
	ClientID     string
	ClientSecret string
	// BaseURL is the org base URL hosting the OAuth token endpoint.
	BaseURL string
	// AgentAPIBaseURL overrides the conversation API base, for tests.
	AgentAPIBaseURL string
}

// AgentforceClient talks to the agent backend: the client-credentials token
// endpoint and the conversation session API. Implements port.TokenRefresher
// and port.AgentAPI.
type AgentforceClient struct {
	cfg        AgentforceConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAgentforceClient creates a new agent backend client.
func NewAgentforceClient(cfg AgentforceConfig, logger *slog.Logger) *AgentforceClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AgentAPIBaseURL == "" {
		cfg.AgentAPIBaseURL = DefaultAgentAPIBaseURL
	}

	return &AgentforceClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Refresh obtains a fresh access token and instance endpoint via the
// client-credentials grant. The returned credential carries no expiry; the
// credential cache assigns its own fixed validity window.
func (c *AgentforceClient) Refresh(ctx context.Context) (*domain.Credential, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	tokenURL := c.cfg.BaseURL + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("backend token request failed",
			"status_code", resp.StatusCode,
			"response_body", string(body))
		return nil, fmt.Errorf("backend token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp agentTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if tokenResp.AccessToken == "" || tokenResp.InstanceURL == "" {
		return nil, fmt.Errorf("%w: access_token or instance_url missing", domain.ErrMalformedResponse)
	}

	now := time.Now()
	c.logger.Info("backend access token obtained", "instance_url", tokenResp.InstanceURL)

	return &domain.Credential{
		Token:      tokenResp.AccessToken,
		ObtainedAt: now,
		Extra:      map[string]string{domain.ExtraInstanceURL: tokenResp.InstanceURL},
	}, nil
}

// StartSession opens a new conversation session for the agent.
func (c *AgentforceClient) StartSession(ctx context.Context, auth domain.AgentAuth, agentID, sessionKey string) (string, error) {
	reqBody := startSessionRequest{
		ExternalSessionKey: sessionKey,
		InstanceConfig:     instanceConfig{Endpoint: auth.InstanceURL},
		FeatureSupport:     "Sync",
		BypassUser:         true,
	}

	sessionURL := fmt.Sprintf("%s/agents/%s/sessions", c.cfg.AgentAPIBaseURL, agentID)

	var sessionResp startSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, sessionURL, auth.Bearer, reqBody, &sessionResp); err != nil {
		return "", err
	}
	if sessionResp.SessionID == "" {
		return "", fmt.Errorf("%w: sessionId missing in start session response", domain.ErrMalformedResponse)
	}

	c.logger.Info("agent session started", "agent_id", agentID, "session_id", sessionResp.SessionID)
	return sessionResp.SessionID, nil
}

// SendMessage sends one sequenced text message into the session.
func (c *AgentforceClient) SendMessage(ctx context.Context, auth domain.AgentAuth, sessionID string, sequenceID int, text string) (*domain.AgentResponse, error) {
	reqBody := sendMessageRequest{
		Message: sequencedMessage{
			SequenceID: sequenceID,
			Type:       "Text",
			Text:       text,
		},
	}

	messageURL := fmt.Sprintf("%s/sessions/%s/messages", c.cfg.AgentAPIBaseURL, sessionID)

	var agentResp domain.AgentResponse
	if err := c.doJSON(ctx, http.MethodPost, messageURL, auth.Bearer, reqBody, &agentResp); err != nil {
		return nil, err
	}

	return &agentResp, nil
}

// EndSession terminates the session on the backend.
func (c *AgentforceClient) EndSession(ctx context.Context, auth domain.AgentAuth, sessionID string) error {
	sessionURL := fmt.Sprintf("%s/sessions/%s", c.cfg.AgentAPIBaseURL, sessionID)
	return c.doJSON(ctx, http.MethodDelete, sessionURL, auth.Bearer, nil, nil)
}

// doJSON executes one bearer-authenticated JSON request. A 401/403 maps to
// domain.ErrAuthRejected so the caller can invalidate and retry once; a 429
// maps to domain.ErrRateLimited.
func (c *AgentforceClient) doJSON(ctx context.Context, method, rawURL, bearer string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (%s %s): %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Warn("agent backend rejected authorization",
			"status_code", resp.StatusCode, "url", rawURL)
		return fmt.Errorf("%w: status %d", domain.ErrAuthRejected, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Error("agent backend request failed",
			"status_code", resp.StatusCode,
			"url", rawURL,
			"response_body", string(body))
		return fmt.Errorf("agent backend returned status %d", resp.StatusCode)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
	}
	return nil
}

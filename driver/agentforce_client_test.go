package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/domain"
)

func testAuth() domain.AgentAuth {
	return domain.AgentAuth{Bearer: "backend-token", InstanceURL: "https://org.example.my.salesforce.com"}
}

func TestAgentforceClient_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/oauth2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "sf-client", r.Form.Get("client_id"))
		assert.Equal(t, "sf-secret", r.Form.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "backend-token",
			"instance_url": "https://org.example.my.salesforce.com",
			"token_type": "Bearer"
		}`))
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{
		ClientID:     "sf-client",
		ClientSecret: "sf-secret",
		BaseURL:      srv.URL,
	}, testLogger())

	cred, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backend-token", cred.Token)
	assert.Equal(t, "https://org.example.my.salesforce.com", cred.InstanceURL())
	// The flow provides no expiry; the cache layer assigns the window.
	assert.True(t, cred.ExpiresAt.IsZero())
}

func TestAgentforceClient_Refresh_MissingInstanceURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": "backend-token"}`))
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{BaseURL: srv.URL}, testLogger())

	_, err := client.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestAgentforceClient_StartSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/agents/agent-1/sessions", r.URL.Path)
		assert.Equal(t, "Bearer backend-token", r.Header.Get("Authorization"))

		var req startSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "key-1", req.ExternalSessionKey)
		assert.Equal(t, "https://org.example.my.salesforce.com", req.InstanceConfig.Endpoint)
		assert.Equal(t, "Sync", req.FeatureSupport)
		assert.True(t, req.BypassUser)

		w.Write([]byte(`{"sessionId": "S1"}`))
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

	sessionID, err := client.StartSession(context.Background(), testAuth(), "agent-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "S1", sessionID)
}

func TestAgentforceClient_StartSession_MissingSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

	_, err := client.StartSession(context.Background(), testAuth(), "agent-1", "key-1")
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestAgentforceClient_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/S1/messages", r.URL.Path)

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.Message.SequenceID)
		assert.Equal(t, "Text", req.Message.Type)
		assert.Equal(t, "要約されたメッセージ", req.Message.Text)

		w.Write([]byte(`{"messages": [{"type": "Inform", "text": "株式会社サンプルの求人があります"}]}`))
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

	resp, err := client.SendMessage(context.Background(), testAuth(), "S1", 2, "要約されたメッセージ")
	require.NoError(t, err)
	assert.Equal(t, "株式会社サンプルの求人があります", resp.ReplyText())
}

func TestAgentforceClient_SendMessage_SingleMessageShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": {"text": "単一メッセージの応答"}}`))
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

	resp, err := client.SendMessage(context.Background(), testAuth(), "S1", 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, "単一メッセージの応答", resp.ReplyText())
}

func TestAgentforceClient_SendMessage_AuthRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

		_, err := client.SendMessage(context.Background(), testAuth(), "S1", 1, "hello")
		require.ErrorIs(t, err, domain.ErrAuthRejected, "status %d", status)
		srv.Close()
	}
}

func TestAgentforceClient_SendMessage_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

	_, err := client.SendMessage(context.Background(), testAuth(), "S1", 1, "hello")
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestAgentforceClient_EndSession(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewAgentforceClient(AgentforceConfig{AgentAPIBaseURL: srv.URL}, testLogger())

	require.NoError(t, client.EndSession(context.Background(), testAuth(), "S1"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/sessions/S1", path)
}

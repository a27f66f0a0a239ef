package driver

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/domain"
)

// writeTestKey generates an RSA key, writes it as PEM, and returns the path
// together with the public key for assertion verification.
func writeTestKey(t *testing.T) (string, *rsa.PublicKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	path := filepath.Join(t.TempDir(), "private.pem")
	require.NoError(t, os.WriteFile(path, pemData, 0o600))

	return path, &key.PublicKey
}

func newAuthClient(t *testing.T, tokenURL, keyPath string) *WorksAuthClient {
	t.Helper()
	return NewWorksAuthClient(WorksAuthConfig{
		ClientID:       "client-1",
		ClientSecret:   "client-secret",
		ServiceAccount: "svc@example",
		PrivateKeyPath: keyPath,
		TokenURL:       tokenURL,
	}, testLogger())
}

func TestWorksAuthClient_Refresh(t *testing.T) {
	keyPath, pubKey := writeTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, jwtBearerGrantType, r.Form.Get("grant_type"))
		assert.Equal(t, "client-1", r.Form.Get("client_id"))
		assert.Equal(t, "client-secret", r.Form.Get("client_secret"))
		assert.Equal(t, "bot", r.Form.Get("scope"))

		// The assertion must verify against the configured key and carry
		// the agreed issuer and subject.
		token, err := jwt.ParseWithClaims(r.Form.Get("assertion"), &jwt.RegisteredClaims{},
			func(*jwt.Token) (any, error) { return pubKey, nil },
			jwt.WithValidMethods([]string{"RS256"}))
		require.NoError(t, err)
		claims := token.Claims.(*jwt.RegisteredClaims)
		assert.Equal(t, "client-1", claims.Issuer)
		assert.Equal(t, "svc@example", claims.Subject)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "platform-token", "token_type": "Bearer", "expires_in": 86400}`))
	}))
	defer srv.Close()

	client := newAuthClient(t, srv.URL, keyPath)

	cred, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "platform-token", cred.Token)
	assert.InDelta(t, (24 * time.Hour).Seconds(), cred.Lifetime().Seconds(), 5)
}

func TestWorksAuthClient_Refresh_ExpiresInAsString(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": "platform-token", "expires_in": "3600"}`))
	}))
	defer srv.Close()

	client := newAuthClient(t, srv.URL, keyPath)

	cred, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), cred.Lifetime().Seconds(), 5)
}

func TestWorksAuthClient_Refresh_MissingToken(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type": "Bearer"}`))
	}))
	defer srv.Close()

	client := newAuthClient(t, srv.URL, keyPath)

	_, err := client.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestWorksAuthClient_Refresh_ServerError(t *testing.T) {
	keyPath, _ := writeTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newAuthClient(t, srv.URL, keyPath)

	_, err := client.Refresh(context.Background())
	require.Error(t, err)
}

func TestWorksAuthClient_Refresh_UnreadableKey(t *testing.T) {
	client := newAuthClient(t, "http://127.0.0.1:0", filepath.Join(t.TempDir(), "missing.pem"))

	_, err := client.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrPrivateKey)
}

func TestWorksAuthClient_Refresh_GarbageKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))

	client := newAuthClient(t, "http://127.0.0.1:0", path)

	_, err := client.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrPrivateKey)
}

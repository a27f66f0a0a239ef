package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agent-relay/domain"
)

// DefaultWorksTokenURL is the platform OAuth token endpoint.
const DefaultWorksTokenURL = "https://auth.worksmobile.com/oauth2/v2.0/token"

const jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// assertionValidity is the lifetime of the signed JWT assertion.
const assertionValidity = time.Hour

// worksTokenResponse is the platform token endpoint response. The endpoint
// is known to return expires_in either as a number or as a quoted string.
type worksTokenResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   flexibleInt64 `json:"expires_in"`
	Scope       string        `json:"scope"`
}

// flexibleInt64 decodes a JSON number or a numeric string.
type flexibleInt64 int64

func (f *flexibleInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("expires_in is not numeric: %q", s)
	}
	*f = flexibleInt64(n)
	return nil
}

// WorksAuthConfig configures the platform service-account OAuth flow.
type WorksAuthConfig struct {
	ClientID       string
	ClientSecret   string
	ServiceAccount string
	PrivateKeyPath string
	Scope          string
	TokenURL       string
}

// WorksAuthClient exchanges a signed service-account JWT assertion for a
// platform bot access token. Implements port.TokenRefresher.
type WorksAuthClient struct {
	cfg        WorksAuthConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWorksAuthClient creates a new platform auth client.
func NewWorksAuthClient(cfg WorksAuthConfig, logger *slog.Logger) *WorksAuthClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultWorksTokenURL
	}
	if cfg.Scope == "" {
		cfg.Scope = "bot"
	}

	return &WorksAuthClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Refresh builds a signed JWT assertion and exchanges it for an access token
// via the JWT-bearer grant.
func (c *WorksAuthClient) Refresh(ctx context.Context) (*domain.Credential, error) {
	assertion, err := c.signAssertion()
	if err != nil {
		return nil, err
	}

	data := url.Values{
		"assertion":     {assertion},
		"grant_type":    {jwtBearerGrantType},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {c.cfg.Scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

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
		c.logger.Error("platform token request failed",
			"status_code", resp.StatusCode,
			"response_body", string(body))
		return nil, fmt.Errorf("platform token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp worksTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token missing in token response", domain.ErrMalformedResponse)
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = assertionValidity
	}

	now := time.Now()
	c.logger.Info("platform access token obtained", "expires_in_seconds", int64(expiresIn.Seconds()))

	return &domain.Credential{
		Token:      tokenResp.AccessToken,
		ObtainedAt: now,
		ExpiresAt:  now.Add(expiresIn),
	}, nil
}

// signAssertion reads the configured PEM private key and signs the RS256
// assertion: issuer = client ID, subject = service account, 1-hour validity.
func (c *WorksAuthClient) signAssertion() (string, error) {
	keyData, err := os.ReadFile(c.cfg.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPrivateKey, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPrivateKey, err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.cfg.ClientID,
		Subject:   c.cfg.ServiceAccount,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionValidity)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// Package domain contains core domain types for agent-relay.
package domain

import (
	"time"
)

// ExtraInstanceURL is the extra-data key holding the backend instance
// endpoint returned alongside a client-credentials token.
const ExtraInstanceURL = "instance_url"

// Credential is a cached bearer token with its lifecycle metadata.
// A credential record is owned exclusively by one credential cache and is
// never shared across credential kinds.
type Credential struct {
	// Token is the opaque bearer token.
	Token string `json:"token"`
	// ObtainedAt is when the token was issued to this process.
	ObtainedAt time.Time `json:"obtained_at"`
	// ExpiresAt is when the token stops being usable.
	ExpiresAt time.Time `json:"expires_at"`
	// Extra holds flow-specific side data, such as an instance endpoint.
	Extra map[string]string `json:"extra,omitempty"`
}

// Fresh reports whether the token is still usable, leaving margin before
// the actual expiry to tolerate clock skew and in-flight request time.
func (c *Credential) Fresh(margin time.Duration) bool {
	if c == nil || c.Token == "" {
		return false
	}
	return time.Now().Before(c.ExpiresAt.Add(-margin))
}

// Lifetime returns the total validity window of the credential.
func (c *Credential) Lifetime() time.Duration {
	return c.ExpiresAt.Sub(c.ObtainedAt)
}

// InstanceURL returns the backend instance endpoint cached with the token,
// or the empty string when the flow did not provide one.
func (c *Credential) InstanceURL() string {
	if c == nil {
		return ""
	}
	return c.Extra[ExtraInstanceURL]
}

// AgentAuth is the authentication material for one agent backend call.
type AgentAuth struct {
	Bearer      string
	InstanceURL string
}

// Auth derives the agent authentication material from the credential.
func (c *Credential) Auth() AgentAuth {
	return AgentAuth{Bearer: c.Token, InstanceURL: c.InstanceURL()}
}

package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the OpenID Connect ID token claims the web app relies on.
type Claims struct {
	jwt.RegisteredClaims

	// Display handle, usually an email or UPN.
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`

	// TenantID is the directory the subject signed in through. Multi-tenant
	// providers also encode it in the issuer path.
	TenantID string `json:"tid,omitempty"`

	// Nonce echoes the value sent with the authorization request.
	Nonce string `json:"nonce,omitempty"`

	// SID is the provider's session id, used for front-channel logout.
	SID string `json:"sid,omitempty"`
}

// ValidateIssuer checks the issuer when expected is set.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateTime checks exp and nbf against now with a grace period for clock
// skew.
func (c *Claims) ValidateTime(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// Package oidctest runs an in-process identity provider and a protected
// resource API for tests.
package oidctest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/cryptox"
	"github.com/aussiebroadwan/webauth/pkg/jwtx"
	"github.com/aussiebroadwan/webauth/pkg/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	DefaultTenant   = "contoso"
	DefaultClientID = "webapp"
	keyID           = "test-key"
)

type grant struct {
	subject   string
	nonce     string
	challenge string
	scope     string
	redirect  string
}

// IdP is a minimal OpenID provider: discovery, JWKS, and a token endpoint
// redeeming codes minted by Approve. Issued access tokens are "at-<sub>".
type IdP struct {
	Server   *httptest.Server
	Tenant   string
	ClientID string

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	key ed25519.PrivateKey
	pub ed25519.PublicKey

	mu     sync.Mutex
	codes  map[string]grant
	issued int
}

func NewIdP(t testing.TB) *IdP {
	t.Helper()

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("oidctest: generate key: %v", err)
	}

	p := &IdP{
		Tenant:   DefaultTenant,
		ClientID: DefaultClientID,
		TokenTTL: time.Hour,
		key:      key,
		pub:      pub,
		codes:    make(map[string]grant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{tenant}/v2.0/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /discovery/keys", p.keys)
	mux.HandleFunc("POST /{tenant}/oauth2/v2.0/token", p.token)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Issuer is the tenant-qualified issuer, also the discovery authority.
func (p *IdP) Issuer() string {
	return p.Server.URL + "/" + p.Tenant + "/v2.0"
}

func (p *IdP) Metadata() oidc.Metadata {
	return oidc.Metadata{
		Issuer:                p.Issuer(),
		AuthorizationEndpoint: p.Server.URL + "/" + p.Tenant + "/oauth2/v2.0/authorize",
		TokenEndpoint:         p.Server.URL + "/" + p.Tenant + "/oauth2/v2.0/token",
		JWKSURI:               p.Server.URL + "/discovery/keys",
		EndSessionEndpoint:    p.Server.URL + "/" + p.Tenant + "/oauth2/v2.0/logout",
	}
}

// JWKS is the provider's public key set.
func (p *IdP) JWKS() jwtx.JWKS {
	return jwtx.JWKS{Keys: []jwtx.JWK{jwtx.NewEd25519JWK(keyID, p.pub)}}
}

// KeySet is a KeySet already loaded with the provider's keys.
func (p *IdP) KeySet(t testing.TB) *jwtx.KeySet {
	t.Helper()
	ks := jwtx.NewKeySet()
	if err := ks.Reset(p.JWKS()); err != nil {
		t.Fatalf("oidctest: load keys: %v", err)
	}
	return ks
}

// IDToken signs an ID token for subject.
func (p *IdP) IDToken(subject, nonce string, ttl time.Duration) string {
	now := time.Now()
	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer(),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{p.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		PreferredUsername: subject + "@example.com",
		Name:              strings.ToUpper(subject[:1]) + subject[1:],
		TenantID:          p.Tenant,
		Nonce:             nonce,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = keyID
	signed, err := tok.SignedString(p.key)
	if err != nil {
		panic(fmt.Sprintf("oidctest: sign: %v", err))
	}
	return signed
}

// Approve plays the user signing in as subject at authorizeURL and returns
// the form the provider would post back to the redirect URI.
func (p *IdP) Approve(authorizeURL, subject string) (url.Values, error) {
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if q.Get("response_mode") != "form_post" || q.Get("client_id") != p.ClientID {
		return nil, fmt.Errorf("oidctest: unexpected authorize request %q", u.RawQuery)
	}

	code, err := cryptox.RandomToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.codes[code] = grant{
		subject:   subject,
		nonce:     q.Get("nonce"),
		challenge: q.Get("code_challenge"),
		scope:     q.Get("scope"),
		redirect:  q.Get("redirect_uri"),
	}
	p.mu.Unlock()

	return url.Values{"code": {code}, "state": {q.Get("state")}}, nil
}

// Issued counts redeemed codes.
func (p *IdP) Issued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issued
}

func (p *IdP) discovery(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("tenant") != p.Tenant {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p.Metadata())
}

func (p *IdP) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.JWKS())
}

func (p *IdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request", err.Error())
		return
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	g, ok := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()

	switch {
	case r.PostForm.Get("grant_type") != "authorization_code":
		oauthError(w, "unsupported_grant_type", "")
		return
	case !ok:
		oauthError(w, "invalid_grant", "unknown or used code")
		return
	case g.redirect != r.PostForm.Get("redirect_uri"):
		oauthError(w, "invalid_grant", "redirect_uri mismatch")
		return
	case oauth2.S256ChallengeFromVerifier(r.PostForm.Get("code_verifier")) != g.challenge:
		oauthError(w, "invalid_grant", "pkce verification failed")
		return
	}

	p.mu.Lock()
	p.issued++
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "at-" + g.subject,
		"id_token":     p.IDToken(g.subject, g.nonce, p.TokenTTL),
		"token_type":   "Bearer",
		"expires_in":   int(p.TokenTTL / time.Second),
		"scope":        g.scope,
	})
}

func oauthError(w http.ResponseWriter, code, desc string) {
	writeJSON(w, http.StatusBadRequest, oidc.Error{Code: code, Description: desc})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

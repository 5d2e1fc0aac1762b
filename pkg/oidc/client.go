package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScopes are always requested.
var DefaultScopes = []string{"openid", "profile", "offline_access"}

// TokenResponse is the token endpoint reply.
type TokenResponse struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// Expiry converts ExpiresIn relative to now.
func (t TokenResponse) Expiry(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Client is a confidential or public relying party. A blank ClientSecret
// makes it a public client relying on PKCE alone.
type Client struct {
	Metadata     Metadata
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes are requested in addition to DefaultScopes, typically the
	// downstream API scopes so the first access token is cached at sign-in.
	Scopes []string

	HTTPClient *http.Client
}

func (c *Client) scopes() []string {
	out := slices.Clone(DefaultScopes)
	for _, s := range c.Scopes {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Client) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.Metadata.AuthorizationEndpoint,
			TokenURL:  c.Metadata.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// reserved parameters are owned by the flow and cannot be overridden by
// extra authorize parameters.
var reserved = []string{
	"response_type", "response_mode", "client_id", "redirect_uri", "scope",
	"state", "nonce", "code_challenge", "code_challenge_method",
}

// NewVerifier returns a fresh RFC 7636 code verifier. It stays with the
// client until the code is redeemed.
func NewVerifier() string { return oauth2.GenerateVerifier() }

// AuthorizeURL builds the authorization request carrying the S256 challenge
// for verifier. The response comes back as a form post to RedirectURL.
// extra adds parameters such as prompt or login_hint.
func (c *Client) AuthorizeURL(state, nonce, verifier string, extra url.Values) string {
	var opts []oauth2.AuthCodeOption
	for k, vs := range extra {
		if len(vs) == 0 || slices.Contains(reserved, k) {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, vs[0]))
	}
	opts = append(opts,
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.config().AuthCodeURL(state, opts...)
}

// EndSessionURL builds the RP-initiated logout request, or "" when the
// provider has no end_session_endpoint.
func (c *Client) EndSessionURL(idTokenHint, postLogoutRedirect string) string {
	if c.Metadata.EndSessionEndpoint == "" {
		return ""
	}
	params := url.Values{}
	params.Set("client_id", c.ClientID)
	if idTokenHint != "" {
		params.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirect != "" {
		params.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	sep := "?"
	if strings.Contains(c.Metadata.EndSessionEndpoint, "?") {
		sep = "&"
	}
	return c.Metadata.EndSessionEndpoint + sep + params.Encode()
}

// Exchange redeems an authorization code. The reply must carry an ID token.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := c.config().Exchange(ctx, code, opts...)
	if err != nil {
		if oerr := fromRetrieveError(err); oerr != nil {
			return nil, oerr
		}
		return nil, fmt.Errorf("oidc: token request: %w", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, &Error{StatusCode: http.StatusOK, Code: "invalid_response", Description: "token response lacks id_token"}
	}
	scope, _ := tok.Extra("scope").(string)
	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresIn:    tok.ExpiresIn,
		Scope:        scope,
	}, nil
}

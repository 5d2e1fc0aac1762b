package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const discoveryPath = "/.well-known/openid-configuration"

// Metadata is the subset of the provider configuration document the client
// uses.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

func (m Metadata) validate() error {
	var missing []string
	if m.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if m.JWKSURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("oidc: metadata missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Discover fetches the provider configuration for authority.
func Discover(ctx context.Context, hc *http.Client, authority string) (Metadata, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if authority == "" {
		return Metadata{}, errors.New("oidc: authority is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(authority, "/")+discoveryPath, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("oidc: build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("oidc: discovery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("oidc: discovery returned status %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("oidc: decode discovery document: %w", err)
	}
	if err := md.validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

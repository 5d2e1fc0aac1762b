package http

import (
	"github.com/aussiebroadwan/webauth/internal/webapp/domain"
	"github.com/aussiebroadwan/webauth/pkg/authsession"
)

// HealthChecks reports the state of each dependency.
type HealthChecks struct {
	Database string `json:"database" example:"ok"`
	Sessions string `json:"sessions,omitempty" example:"ok"`
	Keys     string `json:"keys" example:"ok"`
}

// HealthResponse is returned by the liveness and readiness endpoints.
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime" example:"1h2m3s"`
	Version string        `json:"version" example:"v0.1.0"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// StatusResponse describes the caller's session.
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status" example:"authenticated_valid_cache"`
	SignInURL     string `json:"signin_url,omitempty" example:"/signin"`

	Identity   *authsession.Identity `json:"identity,omitempty"`
	Privileges *domain.Privileges    `json:"privileges,omitempty"`
}

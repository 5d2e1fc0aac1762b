package authsession

import (
	"context"
	"regexp"
)

// DefaultTenantPattern matches the tenant segment of an issuer URL such as
// https://login.example.com/<tenant>/v2.0. The first capture group is the
// tenant id.
var DefaultTenantPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/`)

// Principal is the transport's view of who is calling. Authenticated is set
// by the transport (an identity middleware) and is read-only to the
// coordinator.
type Principal struct {
	Authenticated     bool
	SubjectID         string
	Issuer            string
	PreferredUsername string
}

// Identity is the authenticated subject plus its issuing tenant.
type Identity struct {
	SubjectID         string `json:"subject_id"`
	TenantID          string `json:"tenant_id"`
	PreferredUsername string `json:"preferred_username"`
}

// Trusted reports whether the identity can be used for authorization
// decisions. A subject id without a tenant is meaningless.
func (id Identity) Trusted() bool {
	return id.SubjectID != "" && id.TenantID != ""
}

// TenantFromIssuer extracts the tenant id from an issuer URL using pattern.
// A nil pattern uses DefaultTenantPattern. It returns "" when the issuer does
// not match.
func TenantFromIssuer(pattern *regexp.Regexp, issuer string) string {
	if pattern == nil {
		pattern = DefaultTenantPattern
	}

	m := pattern.FindStringSubmatch(issuer)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

type principalKey struct{}

// WithPrincipal attaches the request principal to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by WithPrincipal, or an
// unauthenticated zero Principal.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

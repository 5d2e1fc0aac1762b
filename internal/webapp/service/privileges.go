package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aussiebroadwan/webauth/internal/webapp/domain"
	"github.com/aussiebroadwan/webauth/pkg/authsession"
	"github.com/aussiebroadwan/webauth/pkg/credcache"
	"github.com/aussiebroadwan/webauth/pkg/session"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
	"github.com/aussiebroadwan/webauth/pkg/webapi"
)

const (
	DefaultPrivilegesPath = "me/privileges"
	DefaultProfilePath    = "me"
	DefaultPrivilegeTTL   = 15 * time.Minute
)

// ErrNoIdentity means privileges were requested for a request with no
// trusted identity.
var ErrNoIdentity = errors.New("service: no trusted identity")

// privilegesResponse is the remote API's privileges resource.
type privilegesResponse struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// PrivilegeService loads privilege records from the remote API. One value
// serves the whole process; Bind gives each request its own Caller.
type PrivilegeService struct {
	APIRoot     string
	Scopes      []string
	Credentials *credcache.Cache

	PrivilegesPath string
	ProfilePath    string

	// TTL bounds how long a loaded record is trusted. Zero or negative
	// keeps it until the identity changes.
	TTL time.Duration

	TenantPattern *regexp.Regexp
	Recorder      Recorder
	ClientOptions []webapi.Option
	Now           func() time.Time
}

func (s *PrivilegeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *PrivilegeService) recorder() Recorder {
	if s.Recorder != nil {
		return s.Recorder
	}
	return nopRecorder{}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Bind builds the coordinator for the request in ctx, whose principal was
// set by the identity middleware, over sess.
func (s *PrivilegeService) Bind(ctx context.Context, sess *session.Session) (*authsession.Coordinator[domain.Privileges], *Caller, error) {
	if sess == nil {
		return nil, nil, errors.New("service: no session in request")
	}

	principal := authsession.PrincipalFromContext(ctx)
	caller := &Caller{
		svc:       s,
		principal: principal,
		creds:     s.Credentials.ForSession(sess.ID()),
	}

	coord, err := authsession.New(ctx, authsession.Config[domain.Privileges]{
		Principal:     principal,
		State:         sess,
		Cache:         caller.creds,
		Client:        caller,
		TenantPattern: s.TenantPattern,
	})
	if err != nil {
		return nil, nil, err
	}
	return coord, caller, nil
}

// Evaluate brings the request's privileges up to date and returns the
// status the request arrived with.
func (s *PrivilegeService) Evaluate(ctx context.Context, coord *authsession.Coordinator[domain.Privileges]) (authsession.Status, error) {
	status, err := coord.Status(ctx)
	if err != nil {
		return authsession.Unauthenticated, err
	}
	s.recorder().AuthStatus(status.String())

	if err := coord.LoadAuthAndPrivileges(ctx); err != nil {
		return status, err
	}
	return status, nil
}

// Caller is the per-request privilege client. It is not safe for
// concurrent use.
type Caller struct {
	svc       *PrivilegeService
	principal authsession.Principal
	creds     *credcache.SessionCache

	api           *webapi.Client
	authenticated bool
}

var _ authsession.PrivilegeClient[domain.Privileges] = (*Caller)(nil)

// Empty is the record of a caller with no privileges loaded.
func (c *Caller) Empty() domain.Privileges { return domain.Privileges{} }

// CacheValid accepts a record loaded for the same subject and tenant that
// has not outlived the TTL.
func (c *Caller) CacheValid(p domain.Privileges, id authsession.Identity) bool {
	if p.IsZero() || p.SubjectID != id.SubjectID || p.TenantID != id.TenantID {
		return false
	}
	if c.svc.TTL > 0 && p.Age(c.svc.now()) >= c.svc.TTL {
		return false
	}
	return true
}

// LoadPrivileges fetches the caller's roles and permissions from the remote
// API and stores them on coord.
func (c *Caller) LoadPrivileges(ctx context.Context, coord *authsession.Coordinator[domain.Privileges]) error {
	id, ok := coord.CurrentIdentity(ctx)
	if !ok {
		c.svc.recorder().PrivilegesLoaded("no_identity")
		return ErrNoIdentity
	}

	path := orDefault(c.svc.PrivilegesPath, DefaultPrivilegesPath)
	resp, err := webapi.GetJSON[privilegesResponse](ctx, c.API(), path, true)
	if err != nil {
		c.svc.recorder().PrivilegesLoaded(Outcome(err))
		return fmt.Errorf("service: load privileges: %w", err)
	}

	p := domain.Privileges{
		SubjectID:   id.SubjectID,
		TenantID:    id.TenantID,
		Roles:       resp.Roles,
		Permissions: resp.Permissions,
		LoadedAt:    c.svc.now().UTC(),
	}
	if err := coord.SetPrivileges(p); err != nil {
		return err
	}

	c.svc.recorder().PrivilegesLoaded("ok")
	slogx.FromContext(ctx).Info("privileges loaded",
		"tenant", id.TenantID,
		"roles", len(p.Roles),
		"permissions", len(p.Permissions),
	)
	return nil
}

// SetAuthenticated records the coordinator's verdict for this request.
func (c *Caller) SetAuthenticated(authenticated bool) { c.authenticated = authenticated }

// Authenticated is the last value the coordinator reported.
func (c *Caller) Authenticated() bool { return c.authenticated }

func (c *Caller) BeforeLogin(ctx context.Context) {
	c.svc.recorder().SignInEvent("begin")
	slogx.FromContext(ctx).Debug("sign in requested")
}

// BeforeLogout drops the session's cached credentials so nothing issued to
// this session survives sign out.
func (c *Caller) BeforeLogout(ctx context.Context) {
	c.svc.recorder().SignInEvent("signout")
	if err := c.creds.Forget(ctx); err != nil {
		slogx.FromContext(ctx).Error("failed to clear credential cache", "err", err)
	}
}

// API returns the remote API client bound to the caller's cached
// credentials.
func (c *Caller) API() *webapi.Client {
	if c.api == nil {
		opts := append([]webapi.Option{webapi.WithDefaultScopes(c.svc.Scopes...)}, c.svc.ClientOptions...)
		c.api = webapi.New(c.svc.APIRoot, c.creds.Provider(c.principal.SubjectID), opts...)
	}
	return c.api
}

// Profile fetches the caller's directory profile.
func (c *Caller) Profile(ctx context.Context) (domain.Profile, error) {
	path := orDefault(c.svc.ProfilePath, DefaultProfilePath)
	p, err := webapi.GetJSON[domain.Profile](ctx, c.API(), path, true)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("service: load profile: %w", err)
	}
	return p, nil
}

// Outcome labels a remote API error for metrics.
func Outcome(err error) string {
	var (
		consent *webapi.ConsentRequiredError
		svcErr  *webapi.ServiceError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, webapi.ErrAuthenticationFailed):
		return "no_credential"
	case errors.As(err, &consent):
		return "consent_required"
	case errors.Is(err, webapi.ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &svcErr):
		return "service_error"
	case errors.Is(err, webapi.ErrDecode):
		return "decode_error"
	default:
		return "error"
	}
}

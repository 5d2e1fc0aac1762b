package authsession

import (
	"context"
	"errors"
	"regexp"

	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

// PrivilegesKey is the default State key holding the privilege record.
const PrivilegesKey = "privs"

// ErrInvalidConfig is returned by New when a required collaborator is
// missing.
var ErrInvalidConfig = errors.New("authsession: invalid config")

// CacheChecker answers whether a persisted credential cache entry exists for a
// subject in the current session. Implementations fail closed: a lookup
// error reports false.
type CacheChecker interface {
	CacheExists(ctx context.Context, subjectID string) bool
}

// PrivilegeClient owns the semantics of the privilege record T. The
// coordinator never inspects T itself.
type PrivilegeClient[T any] interface {
	// Empty returns the record used before anything has been loaded.
	Empty() T

	// CacheValid reports whether a previously loaded record may be reused for
	// id (tenant match, expiry, version and so on).
	CacheValid(record T, id Identity) bool

	// LoadPrivileges fetches a fresh record, normally reading
	// c.CurrentIdentity and finishing with c.SetPrivileges.
	LoadPrivileges(ctx context.Context, c *Coordinator[T]) error

	SetAuthenticated(authenticated bool)
	BeforeLogin(ctx context.Context)
	BeforeLogout(ctx context.Context)
}

// Status is the per-request outcome of evaluating a session.
type Status int

const (
	Unauthenticated Status = iota
	AuthenticatedStaleCache
	AuthenticatedValidCache
)

func (s Status) String() string {
	switch s {
	case AuthenticatedStaleCache:
		return "authenticated_stale_cache"
	case AuthenticatedValidCache:
		return "authenticated_valid_cache"
	default:
		return "unauthenticated"
	}
}

// Config wires a Coordinator for one request.
type Config[T any] struct {
	Principal Principal
	State     State
	Cache     CacheChecker
	Client    PrivilegeClient[T]

	// TenantPattern extracts the tenant from the issuer. Defaults to
	// DefaultTenantPattern.
	TenantPattern *regexp.Regexp

	// Key overrides PrivilegesKey.
	Key string
}

// record wraps T so an empty record is distinguishable from a loaded one
// whatever T's zero value looks like.
type record[T any] struct {
	Loaded bool `json:"loaded"`
	Value  T    `json:"value"`
}

// Coordinator is the per-request auth/privilege state machine. It is not
// safe for concurrent use; build one per request.
type Coordinator[T any] struct {
	principal Principal
	state     State
	cache     CacheChecker
	client    PrivilegeClient[T]
	tenants   *regexp.Regexp
	key       string
}

// New builds a Coordinator. When the request is not authenticated the cached
// privileges are reset immediately.
func New[T any](ctx context.Context, cfg Config[T]) (*Coordinator[T], error) {
	switch {
	case cfg.State == nil:
		return nil, errors.Join(ErrInvalidConfig, errors.New("state is required"))
	case cfg.Cache == nil:
		return nil, errors.Join(ErrInvalidConfig, errors.New("cache checker is required"))
	case cfg.Client == nil:
		return nil, errors.Join(ErrInvalidConfig, errors.New("privilege client is required"))
	}

	c := &Coordinator[T]{
		principal: cfg.Principal,
		state:     cfg.State,
		cache:     cfg.Cache,
		client:    cfg.Client,
		tenants:   cfg.TenantPattern,
		key:       cfg.Key,
	}
	if c.tenants == nil {
		c.tenants = DefaultTenantPattern
	}
	if c.key == "" {
		c.key = PrivilegesKey
	}

	if !c.IsAuthenticated(ctx) {
		if err := c.ResetPrivileges(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// IsAuthenticated reports whether the transport says the principal is
// signed in and the credential cache still holds an entry for it. A signed
// in principal whose cache entry was lost is not authenticated.
func (c *Coordinator[T]) IsAuthenticated(ctx context.Context) bool {
	if !c.principal.Authenticated || c.principal.SubjectID == "" {
		return false
	}
	return c.cache.CacheExists(ctx, c.principal.SubjectID)
}

// CurrentIdentity returns the identity of an authenticated principal. It
// reports false when the request is not authenticated or the issuer carries
// no tenant.
func (c *Coordinator[T]) CurrentIdentity(ctx context.Context) (Identity, bool) {
	if !c.IsAuthenticated(ctx) {
		return Identity{}, false
	}

	id := Identity{
		SubjectID:         c.principal.SubjectID,
		TenantID:          TenantFromIssuer(c.tenants, c.principal.Issuer),
		PreferredUsername: c.principal.PreferredUsername,
	}
	if !id.Trusted() {
		return Identity{}, false
	}
	return id, true
}

// Privileges returns the cached record, initialising it to the client's
// empty value on first access.
func (c *Coordinator[T]) Privileges() (T, error) {
	rec, err := c.load()
	return rec.Value, err
}

// SetPrivileges replaces the cached record wholesale.
func (c *Coordinator[T]) SetPrivileges(v T) error {
	return Set(c.state, c.key, record[T]{Loaded: true, Value: v})
}

// ResetPrivileges stores the empty record. The next LoadAuthAndPrivileges
// call for an authenticated request always reloads.
func (c *Coordinator[T]) ResetPrivileges() error {
	return Set(c.state, c.key, record[T]{Value: c.client.Empty()})
}

// Status evaluates the session without changing it.
func (c *Coordinator[T]) Status(ctx context.Context) (Status, error) {
	id, ok := c.CurrentIdentity(ctx)
	if !ok {
		return Unauthenticated, nil
	}

	rec, err := c.load()
	if err != nil {
		return Unauthenticated, err
	}
	if rec.Loaded && c.client.CacheValid(rec.Value, id) {
		return AuthenticatedValidCache, nil
	}
	return AuthenticatedStaleCache, nil
}

// LoadAuthAndPrivileges brings the cached privileges in line with the
// request. Unauthenticated requests get the empty record; authenticated
// requests with an invalid or empty record trigger a reload through the
// privilege client. Errors from LoadPrivileges are returned unchanged.
func (c *Coordinator[T]) LoadAuthAndPrivileges(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	switch status {
	case Unauthenticated:
		if c.principal.Authenticated {
			log.Debug("principal signed in but credential cache missing or tenant unknown",
				"sub", c.principal.SubjectID,
			)
		}
		if err := c.ResetPrivileges(); err != nil {
			return err
		}
		c.client.SetAuthenticated(false)
		return nil

	case AuthenticatedValidCache:
		return nil

	default:
		log.Debug("reloading privileges", "sub", c.principal.SubjectID)
		c.client.SetAuthenticated(true)
		return c.client.LoadPrivileges(ctx, c)
	}
}

// BeginSignIn runs the client's pre-login hook and reports whether an
// identity provider challenge is still needed.
func (c *Coordinator[T]) BeginSignIn(ctx context.Context) bool {
	c.client.BeforeLogin(ctx)
	return !c.IsAuthenticated(ctx)
}

// BeginSignOut runs the client's pre-logout hook.
func (c *Coordinator[T]) BeginSignOut(ctx context.Context) {
	c.client.BeforeLogout(ctx)
}

func (c *Coordinator[T]) load() (record[T], error) {
	return GetOrInit(c.state, c.key, func() record[T] {
		return record[T]{Value: c.client.Empty()}
	})
}

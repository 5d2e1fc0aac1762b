package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/webauth/internal/webapp/domain"
	"github.com/aussiebroadwan/webauth/internal/webapp/oidctest"
	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/authsession"
	"github.com/aussiebroadwan/webauth/pkg/credcache"
	"github.com/aussiebroadwan/webauth/pkg/cryptox"
	"github.com/aussiebroadwan/webauth/pkg/session"
	"github.com/aussiebroadwan/webauth/pkg/webapi"
	"github.com/stretchr/testify/require"
)

// events records what the services report.
type events struct {
	mu   sync.Mutex
	seen []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, s)
}

func (e *events) PrivilegesLoaded(outcome string) { e.add("privileges:" + outcome) }
func (e *events) AuthStatus(status string)        { e.add("status:" + status) }
func (e *events) SignInEvent(event string)        { e.add("signin:" + event) }

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

func newSealer(t *testing.T, info string) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer([]byte("0123456789abcdef0123456789abcdef"), info)
	require.NoError(t, err)
	return s
}

type fixture struct {
	idp   *oidctest.IdP
	api   *oidctest.API
	cache *credcache.Cache
	svc   *service.PrivilegeService
	rec   *events
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		idp: oidctest.NewIdP(t),
		api: oidctest.NewAPI(t),
		rec: &events{},
		now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.cache = credcache.New(credcache.NewMemoryRepository(), newSealer(t, "credentials"))
	f.svc = &service.PrivilegeService{
		APIRoot:     f.api.Server.URL,
		Scopes:      []string{"api://backend/.default"},
		Credentials: f.cache,
		TTL:         10 * time.Minute,
		Recorder:    f.rec,
		Now:         func() time.Time { return f.now },
	}
	return f
}

// signIn makes sess look like a completed sign in for sub and returns the
// request context the identity middleware would produce.
func (f *fixture) signIn(t *testing.T, sess *session.Session, sub string) context.Context {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.cache.ForSession(sess.ID()).Remember(ctx, sub, credcache.Token{
		AccessToken: "at-" + sub,
		Scopes:      []string{"api://backend/.default"},
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
	return authsession.WithPrincipal(ctx, authsession.Principal{
		Authenticated: true,
		SubjectID:     sub,
		Issuer:        f.idp.Issuer(),
	})
}

func TestPrivilegeLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.Grant("alice", "admin")
	sess := session.New("sess-1")
	ctx := f.signIn(t, sess, "alice")

	coord, caller, err := f.svc.Bind(ctx, sess)
	require.NoError(t, err)

	status, err := coord.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, authsession.AuthenticatedStaleCache, status)

	require.NoError(t, coord.LoadAuthAndPrivileges(ctx))
	require.True(t, caller.Authenticated())

	privs, err := coord.Privileges()
	require.NoError(t, err)
	require.Equal(t, "alice", privs.SubjectID)
	require.Equal(t, oidctest.DefaultTenant, privs.TenantID)
	require.True(t, privs.HasRole("admin"))
	require.True(t, privs.Can("admin:read"))
	require.Equal(t, f.now, privs.LoadedAt)

	t.Run("next request reuses the record", func(t *testing.T) {
		coord, _, err := f.svc.Bind(ctx, sess)
		require.NoError(t, err)
		require.NoError(t, coord.LoadAuthAndPrivileges(ctx))
		require.Equal(t, int32(1), f.api.PrivilegeCalls.Load())
	})

	t.Run("ttl expiry reloads", func(t *testing.T) {
		f.now = f.now.Add(11 * time.Minute)
		coord, _, err := f.svc.Bind(ctx, sess)
		require.NoError(t, err)

		status, err := coord.Status(ctx)
		require.NoError(t, err)
		require.Equal(t, authsession.AuthenticatedStaleCache, status)

		require.NoError(t, coord.LoadAuthAndPrivileges(ctx))
		require.Equal(t, int32(2), f.api.PrivilegeCalls.Load())
	})

	t.Run("lost credential cache makes the session anonymous", func(t *testing.T) {
		require.NoError(t, f.cache.ForSession(sess.ID()).Forget(ctx))

		coord, caller, err := f.svc.Bind(ctx, sess)
		require.NoError(t, err)
		require.NoError(t, coord.LoadAuthAndPrivileges(ctx))
		require.False(t, caller.Authenticated())

		privs, err := coord.Privileges()
		require.NoError(t, err)
		require.True(t, privs.IsZero())
	})

	require.Equal(t, []string{"privileges:ok", "privileges:ok"}, f.rec.all())
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.api.Grant("gina", "reader")
	sess := session.New("sess-eval")
	ctx := f.signIn(t, sess, "gina")

	for _, want := range []authsession.Status{
		authsession.AuthenticatedStaleCache,
		authsession.AuthenticatedValidCache,
	} {
		coord, _, err := f.svc.Bind(ctx, sess)
		require.NoError(t, err)

		got, err := f.svc.Evaluate(ctx, coord)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	coord, _, err := f.svc.Bind(context.Background(), sess)
	require.NoError(t, err)
	got, err := f.svc.Evaluate(context.Background(), coord)
	require.NoError(t, err)
	require.Equal(t, authsession.Unauthenticated, got)

	require.Equal(t, []string{
		"status:authenticated_stale_cache",
		"privileges:ok",
		"status:authenticated_valid_cache",
		"status:unauthenticated",
	}, f.rec.all())
}

func TestCacheValid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sess := session.New("sess-valid")
	ctx := f.signIn(t, sess, "alice")
	_, caller, err := f.svc.Bind(ctx, sess)
	require.NoError(t, err)

	id := authsession.Identity{SubjectID: "alice", TenantID: "contoso"}
	fresh := domain.Privileges{SubjectID: "alice", TenantID: "contoso", LoadedAt: f.now.Add(-time.Minute)}

	require.True(t, caller.CacheValid(fresh, id))
	require.False(t, caller.CacheValid(domain.Privileges{}, id), "empty record")

	other := fresh
	other.TenantID = "fabrikam"
	require.False(t, caller.CacheValid(other, id), "tenant switch")

	other = fresh
	other.SubjectID = "bob"
	require.False(t, caller.CacheValid(other, id), "subject switch")

	stale := fresh
	stale.LoadedAt = f.now.Add(-10 * time.Minute)
	require.False(t, caller.CacheValid(stale, id), "expired")

	f.svc.TTL = 0
	require.True(t, caller.CacheValid(stale, id), "no ttl")
}

func TestLoadPrivilegesErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sess := session.New("sess-err")
	ctx := f.signIn(t, sess, "carol")

	t.Run("unknown subject", func(t *testing.T) {
		coord, _, err := f.svc.Bind(ctx, sess)
		require.NoError(t, err)

		err = coord.LoadAuthAndPrivileges(ctx)
		var svcErr *webapi.ServiceError
		require.ErrorAs(t, err, &svcErr)
		require.Equal(t, http.StatusNotFound, svcErr.StatusCode)
		require.Equal(t, "service_error", service.Outcome(err))
	})

	t.Run("consent required", func(t *testing.T) {
		f.api.Grant("carol", "reader")
		f.api.RequireConsent("https://consent.example.com/grant")
		t.Cleanup(func() { f.api.RequireConsent("") })

		coord, caller, err := f.svc.Bind(ctx, sess)
		require.NoError(t, err)

		err = coord.LoadAuthAndPrivileges(ctx)
		var consent *webapi.ConsentRequiredError
		require.ErrorAs(t, err, &consent)
		require.Equal(t, "https://consent.example.com/grant", consent.ConsentURL)

		_, err = caller.Profile(ctx)
		require.ErrorAs(t, err, &consent)
	})

	t.Run("no trusted tenant", func(t *testing.T) {
		anon := authsession.WithPrincipal(context.Background(), authsession.Principal{
			Authenticated: true,
			SubjectID:     "carol",
			Issuer:        "not-a-url",
		})
		coord, caller, err := f.svc.Bind(anon, sess)
		require.NoError(t, err)

		require.ErrorIs(t, caller.LoadPrivileges(anon, coord), service.ErrNoIdentity)
	})

	require.Contains(t, f.rec.all(), "privileges:consent_required")
	require.Contains(t, f.rec.all(), "privileges:no_identity")
}

func TestProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sess := session.New("sess-profile")
	ctx := f.signIn(t, sess, "dave")

	_, caller, err := f.svc.Bind(ctx, sess)
	require.NoError(t, err)

	p, err := caller.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "dave", p.ID)
	require.Equal(t, "Dave", p.DisplayName)

	t.Run("anonymous caller has no credential", func(t *testing.T) {
		_, caller, err := f.svc.Bind(context.Background(), session.New("other"))
		require.NoError(t, err)

		_, err = caller.Profile(context.Background())
		require.ErrorIs(t, err, webapi.ErrAuthenticationFailed)
	})
}

func TestBeforeLogoutForgetsCredentials(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sess := session.New("sess-out")
	ctx := f.signIn(t, sess, "erin")

	coord, _, err := f.svc.Bind(ctx, sess)
	require.NoError(t, err)
	require.True(t, coord.IsAuthenticated(ctx))

	coord.BeginSignOut(ctx)
	require.False(t, coord.IsAuthenticated(ctx))
	require.Equal(t, []string{"signin:signout"}, f.rec.all())
}

func TestBindRequiresSession(t *testing.T) {
	t.Parallel()

	_, _, err := newFixture(t).svc.Bind(context.Background(), nil)
	require.Error(t, err)
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ok", service.Outcome(nil))
	require.Equal(t, "no_credential", service.Outcome(webapi.ErrAuthenticationFailed))
	require.Equal(t, "unauthorized", service.Outcome(webapi.ErrUnauthorized))
	require.Equal(t, "decode_error", service.Outcome(webapi.ErrDecode))
	require.Equal(t, "consent_required", service.Outcome(&webapi.ConsentRequiredError{}))
	require.Equal(t, "error", service.Outcome(errors.New("boom")))
}

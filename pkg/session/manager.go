package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/cryptox"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

const (
	DefaultCookieName = "webauth_session"
	DefaultTTL        = 8 * time.Hour
)

// Options tunes the session cookie. Zero values take the defaults.
type Options struct {
	CookieName string
	Path       string
	Secure     bool
	SameSite   http.SameSite

	// TTL is sliding: every saved request extends it.
	TTL time.Duration

	// NewID overrides id generation.
	NewID func() (string, error)
}

// Manager binds sessions in a Store to requests through a cookie.
type Manager struct {
	store Store
	opts  Options
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.NewID == nil {
		opts.NewID = func() (string, error) { return cryptox.RandomToken(cryptox.TokenSize256) }
	}
	return &Manager{store: store, opts: opts}
}

// Middleware loads the session named by the cookie, or starts a new one
// when the cookie is absent or its session no longer exists, and saves it
// once the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := slogx.FromContext(ctx)

		s, err := m.load(ctx, r)
		if err != nil {
			log.Error("session load failed", "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "session_unavailable", "session store unavailable")
			return
		}
		if s.IsNew() {
			m.setCookie(w, s.ID())
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, s)))

		id, values, destroyed := s.snapshot()
		if destroyed {
			return
		}
		// The client may be gone; the session still has to be written.
		if err := m.store.Save(context.WithoutCancel(ctx), id, values, m.opts.TTL); err != nil {
			log.Error("session save failed", "err", err)
		}
	})
}

func (m *Manager) load(ctx context.Context, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.opts.CookieName); err == nil && c.Value != "" {
		v, err := m.store.Load(ctx, c.Value)
		switch {
		case err == nil:
			return newSession(c.Value, v, false), nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		slogx.FromContext(ctx).Debug("session cookie names a missing session, starting fresh")
	}

	id, err := m.opts.NewID()
	if err != nil {
		return nil, err
	}
	return newSession(id, nil, true), nil
}

// Renew moves s to a fresh id, keeping its values. Call it when the
// privilege level changes, before writing the response body.
func (m *Manager) Renew(ctx context.Context, w http.ResponseWriter, s *Session) error {
	id, err := m.opts.NewID()
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.id
	s.id = id
	s.mu.Unlock()

	m.setCookie(w, id)
	if err := m.store.Delete(ctx, old); err != nil {
		return err
	}
	return nil
}

// Destroy removes s from the store and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.mu.Lock()
	s.destroyed = true
	id := s.id
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     m.opts.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: m.opts.SameSite,
	})
	return m.store.Delete(ctx, id)
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    id,
		Path:     m.opts.Path,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: m.opts.SameSite,
	})
}

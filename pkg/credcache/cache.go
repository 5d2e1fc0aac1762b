package credcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/cryptox"
	"github.com/aussiebroadwan/webauth/pkg/idx"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

// DefaultExpirySkew treats tokens this close to expiry as gone.
const DefaultExpirySkew = time.Minute

// Token is an access token as returned by the identity provider.
type Token struct {
	AccessToken string
	Scopes      []string
	ExpiresAt   time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithExpirySkew treats tokens as expired d before their ExpiresAt.
func WithExpirySkew(d time.Duration) Option {
	return func(c *Cache) { c.skew = d }
}

// Cache seals tokens into a Repository. Session ids are never stored, only
// their fingerprints.
type Cache struct {
	repo   Repository
	sealer *cryptox.Sealer
	now    func() time.Time
	skew   time.Duration
}

// New creates a Cache over repo that seals every token with sealer.
func New(repo Repository, sealer *cryptox.Sealer, opts ...Option) *Cache {
	c := &Cache{repo: repo, sealer: sealer, now: time.Now, skew: DefaultExpirySkew}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ForSession binds the cache to one session.
func (c *Cache) ForSession(sessionID string) *SessionCache {
	return &SessionCache{cache: c, key: cryptox.Fingerprint(sessionID)}
}

// Purge deletes expired entries across all sessions.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	return c.repo.DeleteExpired(ctx, c.now().UTC())
}

// cutoff is the earliest expiry still considered usable.
func (c *Cache) cutoff() time.Time {
	return c.now().UTC().Add(c.skew)
}

// SessionCache is the credential cache of a single session.
type SessionCache struct {
	cache *Cache
	key   string
}

// CacheExists reports whether subjectID has a usable token in this
// session. Lookup errors are logged and reported as absent.
func (s *SessionCache) CacheExists(ctx context.Context, subjectID string) bool {
	if subjectID == "" {
		return false
	}
	ok, err := s.cache.repo.Exists(ctx, s.key, subjectID, s.cache.cutoff())
	if err != nil {
		slogx.FromContext(ctx).Warn("credential cache lookup failed", "sub", subjectID, "err", err)
		return false
	}
	return ok
}

// Remember stores tok for subjectID.
func (s *SessionCache) Remember(ctx context.Context, subjectID string, tok Token) error {
	if subjectID == "" || tok.AccessToken == "" {
		return errors.New("credcache: subject and access token are required")
	}

	sealed, err := s.cache.sealer.Seal([]byte(tok.AccessToken), s.aad(subjectID))
	if err != nil {
		return err
	}

	now := s.cache.now().UTC()
	return s.cache.repo.Put(ctx, Entry{
		ID:         idx.NewAt(now).String(),
		SessionKey: s.key,
		SubjectID:  subjectID,
		Scopes:     normalizeScopes(tok.Scopes),
		Sealed:     sealed,
		ExpiresAt:  tok.ExpiresAt.UTC(),
		CreatedAt:  now,
	})
}

// Forget drops every entry of this session.
func (s *SessionCache) Forget(ctx context.Context) error {
	n, err := s.cache.repo.DeleteSession(ctx, s.key)
	if err != nil {
		return fmt.Errorf("credcache: forget session: %w", err)
	}
	slogx.FromContext(ctx).Debug("credential cache cleared", "entries", n)
	return nil
}

// Provider returns a token source for subjectID in this session.
func (s *SessionCache) Provider(subjectID string) *Provider {
	return &Provider{session: s, subjectID: subjectID}
}

func (s *SessionCache) aad(subjectID string) []byte {
	return []byte(s.key + "|" + subjectID)
}

// lookup returns the longest-lived token whose scopes cover want, or "".
func (s *SessionCache) lookup(ctx context.Context, subjectID string, want []string) (string, error) {
	entries, err := s.cache.repo.List(ctx, s.key, subjectID, s.cache.cutoff())
	if err != nil {
		return "", fmt.Errorf("credcache: list: %w", err)
	}

	want = normalizeScopes(want)
	var best *Entry
	for i := range entries {
		e := &entries[i]
		if !covers(e.Scopes, want) {
			continue
		}
		if best == nil || e.ExpiresAt.After(best.ExpiresAt) {
			best = e
		}
	}
	if best == nil {
		return "", nil
	}

	plain, err := s.cache.sealer.Open(best.Sealed, s.aad(subjectID))
	if errors.Is(err, cryptox.ErrSealed) {
		// Sealed under a previous secret; unusable but not an outage.
		slogx.FromContext(ctx).Warn("cached credential cannot be opened", "entry", best.ID)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func covers(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

// Provider serves cached tokens for one subject. It never contacts the
// identity provider: a miss is an empty string.
type Provider struct {
	session   *SessionCache
	subjectID string
}

// AccessToken returns any usable token of the subject.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	return p.AccessTokenForScopes(ctx, nil)
}

// AccessTokenForScopes returns a token granted at least scopes.
func (p *Provider) AccessTokenForScopes(ctx context.Context, scopes []string) (string, error) {
	if p.subjectID == "" {
		return "", nil
	}
	return p.session.lookup(ctx, p.subjectID, scopes)
}

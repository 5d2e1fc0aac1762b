// Package credcache persists the access tokens obtained at sign-in, keyed
// by session and subject, and serves them back without contacting the
// identity provider.
package credcache

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Entry is one cached credential. Scopes is sorted and deduplicated; the
// joined form is part of the entry's identity.
type Entry struct {
	ID         string
	SessionKey string
	SubjectID  string
	Scopes     []string
	Sealed     []byte
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// ScopeKey is the canonical form of scopes.
func ScopeKey(scopes []string) string {
	return strings.Join(normalizeScopes(scopes), " ")
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Repository stores entries. Put replaces any entry with the same session
// key, subject and scope key.
type Repository interface {
	Put(ctx context.Context, e Entry) error
	List(ctx context.Context, sessionKey, subjectID string, now time.Time) ([]Entry, error)
	Exists(ctx context.Context, sessionKey, subjectID string, now time.Time) (bool, error)
	DeleteSession(ctx context.Context, sessionKey string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

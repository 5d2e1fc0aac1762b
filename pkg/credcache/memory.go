package credcache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryRepository is a process-local Repository for development and
// tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]Entry)}
}

func memKey(sessionKey, subjectID string, scopes []string) string {
	return sessionKey + "\x00" + subjectID + "\x00" + strings.Join(scopes, " ")
}

func (m *MemoryRepository) Put(_ context.Context, e Entry) error {
	e.Scopes = slices.Clone(e.Scopes)
	e.Sealed = slices.Clone(e.Sealed)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey(e.SessionKey, e.SubjectID, e.Scopes)] = e
	return nil
}

func (m *MemoryRepository) List(_ context.Context, sessionKey, subjectID string, now time.Time) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries {
		if e.SessionKey == sessionKey && e.SubjectID == subjectID && e.ExpiresAt.After(now) {
			e.Scopes = slices.Clone(e.Scopes)
			e.Sealed = slices.Clone(e.Sealed)
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Exists(ctx context.Context, sessionKey, subjectID string, now time.Time) (bool, error) {
	es, err := m.List(ctx, sessionKey, subjectID, now)
	return len(es) > 0, err
}

func (m *MemoryRepository) DeleteSession(_ context.Context, sessionKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if e.SessionKey == sessionKey {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len counts all entries, expired or not.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

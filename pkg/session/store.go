// Package session keeps server-side HTTP session state keyed by a random
// cookie id. Values are JSON encoded so any Store can hold them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session: not found")

// Values is the persisted form of a session.
type Values map[string]json.RawMessage

// Store persists sessions. Save overwrites and resets the TTL; Load returns
// ErrNotFound for missing or expired sessions.
type Store interface {
	Load(ctx context.Context, id string) (Values, error)
	Save(ctx context.Context, id string, v Values, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Close() error
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps sessions in process. Everything is lost on restart,
// which is exactly when the credential cache skew shows up.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, id string) (Values, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, id)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(e.data)
}

func (m *MemoryStore) Save(_ context.Context, id string, v Values, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memEntry{data: data, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Len counts live entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	now := m.now()
	for _, e := range m.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

// Sweep removes expired entries and reports how many went.
func (m *MemoryStore) Sweep(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

func decode(data []byte) (Values, error) {
	var v Values
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = Values{}
	}
	return v, nil
}

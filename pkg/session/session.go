package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Session is one visitor's server-side state. It implements
// authsession.State. Values are copied in and out as JSON, so callers
// never share memory with the session.
type Session struct {
	mu        sync.Mutex
	id        string
	values    Values
	isNew     bool
	destroyed bool
}

// New returns an empty session with the given id that no store has seen.
// Manager creates sessions itself; New serves callers that hold state
// outside a request, such as background jobs and tests.
func New(id string) *Session {
	return newSession(id, nil, true)
}

func newSession(id string, v Values, isNew bool) *Session {
	if v == nil {
		v = Values{}
	}
	return &Session{id: id, values: v, isNew: isNew}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// Load decodes the value under key into dst and reports whether it existed.
func (s *Session) Load(key string, dst any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("session: decode %q: %w", key, err)
	}
	return true, nil
}

// Store encodes value under key.
func (s *Session) Store(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return nil
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *Session) snapshot() (string, Values, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(Values, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return s.id, cp, s.destroyed
}

type ctxKey struct{}

// FromContext returns the session attached by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

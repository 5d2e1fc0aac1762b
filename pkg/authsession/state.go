package authsession

import "fmt"

// State is the session-scoped key/value store the coordinator keeps its
// privilege record in. Values persist across requests of one logical
// session. Implementations must copy values (value semantics), so a caller
// mutating a loaded value does not change what is stored.
type State interface {
	// Load decodes the value stored under key into dst. It reports false
	// when the key is absent.
	Load(key string, dst any) (bool, error)

	// Store replaces the value stored under key.
	Store(key string, value any) error
}

// GetOrInit returns the value stored under key, storing and returning
// init() when the key is absent.
func GetOrInit[T any](s State, key string, init func() T) (T, error) {
	var v T
	ok, err := s.Load(key, &v)
	if err != nil {
		return v, fmt.Errorf("authsession: load %q: %w", key, err)
	}
	if ok {
		return v, nil
	}

	v = init()
	if err := s.Store(key, v); err != nil {
		return v, fmt.Errorf("authsession: store %q: %w", key, err)
	}
	return v, nil
}

// Set stores v under key.
func Set[T any](s State, key string, v T) error {
	if err := s.Store(key, v); err != nil {
		return fmt.Errorf("authsession: store %q: %w", key, err)
	}
	return nil
}

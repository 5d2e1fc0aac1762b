package jwtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds the identity provider's public verification keys. It is safe
// for concurrent use; Reset swaps the whole set at once.
type KeySet struct {
	mu      sync.RWMutex
	pub     map[string]any
	fetched time.Time
}

func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]any)}
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// IsReady reports whether at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// FetchedAt is when the set was last replaced.
func (k *KeySet) FetchedAt() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.fetched
}

// Reset replaces all keys. Keys that fail to parse are skipped; an error
// is returned only when nothing usable remains, in which case the previous
// set is kept.
func (k *KeySet) Reset(jwks JWKS) error {
	next := make(map[string]any, len(jwks.Keys))
	var errs []error
	for _, j := range jwks.Keys {
		if j.Use != "" && j.Use != "sig" {
			continue
		}
		key, err := j.PublicKey()
		if err != nil {
			errs = append(errs, fmt.Errorf("kid %q: %w", j.Kid, err))
			continue
		}
		next[j.Kid] = key
	}
	if len(next) == 0 {
		return errors.Join(append([]error{errors.New("jwtx: no usable signing keys")}, errs...)...)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next
	k.fetched = time.Now()
	return nil
}

// FetchJWKS downloads a key set from url.
func FetchJWKS(ctx context.Context, hc *http.Client, url string) (JWKS, error) {
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JWKS{}, fmt.Errorf("jwtx: build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return JWKS{}, fmt.Errorf("jwtx: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JWKS{}, fmt.Errorf("jwtx: fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&jwks); err != nil {
		return JWKS{}, fmt.Errorf("jwtx: decode jwks: %w", err)
	}
	return jwks, nil
}

// Refresh fetches url and resets the set from it.
func (k *KeySet) Refresh(ctx context.Context, hc *http.Client, url string) error {
	jwks, err := FetchJWKS(ctx, hc, url)
	if err != nil {
		return err
	}
	return k.Reset(jwks)
}

// RefreshLoop refreshes the set every interval until ctx is done. Failures
// are logged and the previous keys stay in use.
func (k *KeySet) RefreshLoop(ctx context.Context, hc *http.Client, url string, interval time.Duration) error {
	log := slogx.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := k.Refresh(ctx, hc, url); err != nil {
				log.Warn("jwks refresh failed", "url", url, "err", err)
				continue
			}
			log.Debug("jwks refreshed", "url", url)
		}
	}
}

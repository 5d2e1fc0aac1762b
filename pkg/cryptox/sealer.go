package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrSealed is returned when a sealed value fails to open, either because
// it was tampered with or because it was sealed under another key.
var ErrSealed = errors.New("cryptox: cannot open sealed value")

const minSecretLen = 16

// Sealer encrypts small values (access tokens) with AES-256-GCM. The key
// is derived from an operator secret with HKDF-SHA256 so one secret can
// serve several purposes by varying info.
//
// Output format: [12-byte nonce][ciphertext][16-byte tag].
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret []byte, info string) (*Sealer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("cryptox: secret must be at least %d bytes", minSecretLen)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("cryptox: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create gcm: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext. aad is authenticated but not encrypted, and the
// same aad must be passed to Open.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrSealed
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], aad)
	if err != nil {
		return nil, ErrSealed
	}
	return plaintext, nil
}

// LoadSecret reads key material from path when set, otherwise from value.
// When both are empty a random ephemeral secret is returned and ephemeral
// is true; anything sealed with it is lost on restart.
func LoadSecret(path, value string) (secret []byte, ephemeral bool, err error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("cryptox: read secret file: %w", err)
		}
		return []byte(strings.TrimSpace(string(data))), false, nil
	}
	if value != "" {
		return []byte(value), false, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, fmt.Errorf("cryptox: generate ephemeral secret: %w", err)
	}
	return buf, true, nil
}

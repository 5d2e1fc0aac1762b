package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions captures what a token must satisfy.
type VerifyOptions struct {
	// Issuer the token must carry. Empty accepts any issuer, which is what
	// multi-tenant providers need since the tenant is part of the issuer.
	Issuer string

	// Audience values, at least one of which must be present.
	Audience []string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration

	// Algorithms accepted. Defaults to RS256, ES256 and EdDSA.
	Algorithms []string

	// Now overrides the clock.
	Now func() time.Time
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

var defaultAlgorithms = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

type verifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifier returns a Verifier that resolves keys by kid from keys and
// checks that the key type matches the token's alg.
func NewVerifier(keys *KeySet, opts VerifyOptions) Verifier {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = defaultAlgorithms
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &verifier{keys: keys, opts: opts}
}

func (v *verifier) Verify(tokenStr string) (Claims, error) {
	// Time claims are checked below with our own clock and leeway.
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.opts.Algorithms),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, v.keyFunc)
	switch {
	case errors.Is(err, ErrUnknownKID), errors.Is(err, ErrAlgMismatch):
		return Claims{}, err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	case err != nil:
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	case !token.Valid:
		return Claims{}, ErrMalformed
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateTime(v.opts.Now().UTC(), v.opts.Leeway); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (v *verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
	}

	pub, err := v.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}

	ok := false
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		_, ok = pub.(*rsa.PublicKey)
	case *jwt.SigningMethodECDSA:
		_, ok = pub.(*ecdsa.PublicKey)
	case *jwt.SigningMethodEd25519:
		_, ok = pub.(ed25519.PublicKey)
	}
	if !ok {
		return nil, fmt.Errorf("%w: kid %q is not a %s key", ErrAlgMismatch, kid, t.Method.Alg())
	}
	return pub, nil
}

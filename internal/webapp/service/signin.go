package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/credcache"
	"github.com/aussiebroadwan/webauth/pkg/cryptox"
	"github.com/aussiebroadwan/webauth/pkg/jwtx"
	"github.com/aussiebroadwan/webauth/pkg/oidc"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

// DefaultCorrelationTTL bounds how long a sign-in may take at the
// identity provider.
const DefaultCorrelationTTL = 10 * time.Minute

var (
	ErrCorrelation   = errors.New("service: sign-in correlation missing or expired")
	ErrStateMismatch = errors.New("service: state mismatch")
	ErrNonceMismatch = errors.New("service: id token nonce mismatch")
)

// correlationAAD binds sealed correlation values to their purpose.
var correlationAAD = []byte("webauth:correlation")

// correlation carries what the callback needs to finish a sign in. It
// travels sealed in a short-lived cookie.
type correlation struct {
	State    string    `json:"s"`
	Nonce    string    `json:"n"`
	Verifier string    `json:"v"`
	ReturnTo string    `json:"r"`
	Expires  time.Time `json:"e"`
}

// SignInService runs the authorization code flow against the identity
// provider and seeds the credential cache with the tokens it yields.
type SignInService struct {
	OIDC        *oidc.Client
	Verifier    jwtx.Verifier
	Credentials *credcache.Cache
	Sealer      *cryptox.Sealer

	CorrelationTTL time.Duration
	Recorder       Recorder
	Now            func() time.Time
}

func (s *SignInService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SignInService) recorder() Recorder {
	if s.Recorder != nil {
		return s.Recorder
	}
	return nopRecorder{}
}

// Challenge is a started sign in: redirect the browser to AuthorizeURL and
// keep Correlation for the callback.
type Challenge struct {
	AuthorizeURL string
	Correlation  string
	Expires      time.Time
}

// Start begins a sign in that returns to returnTo afterwards. Unsafe return
// paths fall back to "/".
func (s *SignInService) Start(returnTo string, extra url.Values) (Challenge, error) {
	state, err := cryptox.RandomToken(cryptox.TokenSize128)
	if err != nil {
		return Challenge{}, err
	}
	nonce, err := cryptox.RandomToken(cryptox.TokenSize128)
	if err != nil {
		return Challenge{}, err
	}
	verifier := oidc.NewVerifier()

	ttl := s.CorrelationTTL
	if ttl <= 0 {
		ttl = DefaultCorrelationTTL
	}
	corr := correlation{
		State:    state,
		Nonce:    nonce,
		Verifier: verifier,
		ReturnTo: SafeReturnPath(returnTo),
		Expires:  s.now().Add(ttl).UTC(),
	}
	sealed, err := s.seal(corr)
	if err != nil {
		return Challenge{}, err
	}

	s.recorder().SignInEvent("challenge")
	return Challenge{
		AuthorizeURL: s.OIDC.AuthorizeURL(state, nonce, verifier, extra),
		Correlation:  sealed,
		Expires:      corr.Expires,
	}, nil
}

// Completion is a finished sign in.
type Completion struct {
	IDToken  string
	Claims   jwtx.Claims
	ReturnTo string

	// Expires is when the ID token stops being accepted.
	Expires time.Time
}

// Complete handles the form post from the identity provider for the
// session sessionID: it checks state, redeems the code, verifies the ID
// token and remembers the access token for the session.
func (s *SignInService) Complete(ctx context.Context, sessionID, sealedCorrelation string, form url.Values) (Completion, error) {
	corr, err := s.open(sealedCorrelation)
	if err != nil {
		s.recorder().SignInEvent("failed")
		return Completion{}, err
	}

	if code := form.Get("error"); code != "" {
		s.recorder().SignInEvent("failed")
		return Completion{}, &oidc.Error{Code: code, Description: form.Get("error_description")}
	}
	if !cryptox.Equal(form.Get("state"), corr.State) {
		s.recorder().SignInEvent("failed")
		return Completion{}, ErrStateMismatch
	}

	tok, err := s.OIDC.Exchange(ctx, form.Get("code"), corr.Verifier)
	if err != nil {
		s.recorder().SignInEvent("failed")
		return Completion{}, fmt.Errorf("service: redeem code: %w", err)
	}

	claims, err := s.Verifier.Verify(tok.IDToken)
	if err != nil {
		s.recorder().SignInEvent("failed")
		return Completion{}, fmt.Errorf("service: verify id token: %w", err)
	}
	if !cryptox.Equal(claims.Nonce, corr.Nonce) {
		s.recorder().SignInEvent("failed")
		return Completion{}, ErrNonceMismatch
	}

	scopes := strings.Fields(tok.Scope)
	if len(scopes) == 0 {
		scopes = s.OIDC.Scopes
	}
	err = s.Credentials.ForSession(sessionID).Remember(ctx, claims.Subject, credcache.Token{
		AccessToken: tok.AccessToken,
		Scopes:      scopes,
		ExpiresAt:   tok.Expiry(s.now()),
	})
	if err != nil {
		s.recorder().SignInEvent("failed")
		return Completion{}, fmt.Errorf("service: cache credential: %w", err)
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}

	s.recorder().SignInEvent("completed")
	slogx.FromContext(ctx).Info("sign in completed",
		"sub", claims.Subject,
		"iss", claims.Issuer,
		"scopes", strings.Join(scopes, " "),
	)
	return Completion{
		IDToken:  tok.IDToken,
		Claims:   claims,
		ReturnTo: corr.ReturnTo,
		Expires:  expires,
	}, nil
}

// SignOutURL is where to send the browser after local sign out: the
// provider's end session endpoint when it has one, otherwise
// postLogoutRedirect.
func (s *SignInService) SignOutURL(idTokenHint, postLogoutRedirect string) string {
	if u := s.OIDC.EndSessionURL(idTokenHint, postLogoutRedirect); u != "" {
		return u
	}
	if postLogoutRedirect == "" {
		return "/"
	}
	return postLogoutRedirect
}

func (s *SignInService) seal(c correlation) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sealed, err := s.Sealer.Seal(raw, correlationAAD)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *SignInService) open(v string) (correlation, error) {
	if v == "" {
		return correlation{}, ErrCorrelation
	}
	sealed, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return correlation{}, ErrCorrelation
	}
	raw, err := s.Sealer.Open(sealed, correlationAAD)
	if err != nil {
		return correlation{}, fmt.Errorf("%w: %w", ErrCorrelation, err)
	}

	var c correlation
	if err := json.Unmarshal(raw, &c); err != nil {
		return correlation{}, ErrCorrelation
	}
	if !s.now().Before(c.Expires) {
		return correlation{}, ErrCorrelation
	}
	return c, nil
}

// SafeReturnPath keeps local absolute paths and maps anything else, such
// as full or protocol-relative URLs, to "/".
func SafeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return p
}

package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/httpx"
)

const (
	correlationCookie = "webauth_corr"
	callbackPath      = "/signin-oidc"
)

// CookieOptions controls the identity and sign-in correlation cookies.
type CookieOptions struct {
	// Secure marks cookies Secure. It also lets the correlation cookie use
	// SameSite=None, which the provider's cross-site form post needs.
	Secure bool

	// IdentityName defaults to httpx.DefaultIdentityCookie.
	IdentityName string
}

func (o CookieOptions) identityName() string {
	if o.IdentityName == "" {
		return httpx.DefaultIdentityCookie
	}
	return o.IdentityName
}

func (o CookieOptions) identityToken(r *http.Request) string {
	if c, err := r.Cookie(o.identityName()); err == nil {
		return c.Value
	}
	return ""
}

func (o CookieOptions) setIdentity(w http.ResponseWriter, idToken string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.identityName(),
		Value:    idToken,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) clearIdentity(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.identityName(),
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) correlationSameSite() http.SameSite {
	if o.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (o CookieOptions) setCorrelation(w http.ResponseWriter, v string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     correlationCookie,
		Value:    v,
		Path:     callbackPath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.correlationSameSite(),
	})
}

func (o CookieOptions) clearCorrelation(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     correlationCookie,
		Path:     callbackPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.correlationSameSite(),
	})
}

func correlationValue(r *http.Request) string {
	if c, err := r.Cookie(correlationCookie); err == nil {
		return c.Value
	}
	return ""
}

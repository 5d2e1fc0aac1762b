package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/webauth/pkg/authsession"
	"github.com/aussiebroadwan/webauth/pkg/jwtx"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

// DefaultIdentityCookie holds the verified ID token between requests.
const DefaultIdentityCookie = "webauth_id"

type claimsKey struct{}

// ClaimsFromContext returns the ID token claims set by IdentityMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(jwtx.Claims)
	return c, ok
}

// IdentityMiddleware resolves the request principal from the identity
// cookie, or from a bearer ID token when no cookie is present. It never
// rejects: a missing or invalid token leaves the request anonymous and
// handlers decide what that means.
func IdentityMiddleware(v jwtx.Verifier, cookieName string) Middleware {
	if cookieName == "" {
		cookieName = DefaultIdentityCookie
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := identityToken(r, cookieName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(ctx).Debug("identity token rejected", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx = context.WithValue(ctx, claimsKey{}, claims)
			ctx = authsession.WithPrincipal(ctx, authsession.Principal{
				Authenticated:     true,
				SubjectID:         claims.Subject,
				Issuer:            claims.Issuer,
				PreferredUsername: claims.PreferredUsername,
			})
			ctx = slogx.With(ctx, "sub", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// RequireSignedIn rejects requests without a signed-in principal with a
// 401 JSON error.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authsession.PrincipalFromContext(r.Context()).Authenticated {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="sign in required"`)
			WriteError(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

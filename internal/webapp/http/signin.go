package http

import (
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/session"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

type SignInHandler struct {
	PrivilegeService *service.PrivilegeService
	SignInService    *service.SignInService
	Sessions         *session.Manager
	Cookies          CookieOptions
}

// HandleStart godoc
//
//	@Summary		Start sign in
//	@Description	Redirects to the identity provider unless the session is already signed in with cached credentials,
//	@Description	in which case it redirects straight to return_to.
//	@Tags			Session
//	@Param			return_to	query	string	false	"local path to return to after sign in"
//	@Param			login_hint	query	string	false	"username hint forwarded to the identity provider"
//	@Param			prompt		query	string	false	"prompt forwarded to the identity provider"
//	@Success		302
//	@Router			/signin [get]
func (h *SignInHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	returnTo := service.SafeReturnPath(q.Get("return_to"))

	coord, _, err := h.PrivilegeService.Bind(ctx, session.FromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !coord.BeginSignIn(ctx) {
		http.Redirect(w, r, returnTo, http.StatusFound)
		return
	}

	extra := url.Values{}
	for _, k := range []string{"login_hint", "prompt", "domain_hint"} {
		if v := q.Get(k); v != "" {
			extra.Set(k, v)
		}
	}

	ch, err := h.SignInService.Start(returnTo, extra)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.setCorrelation(w, ch.Correlation, ch.Expires)
	httpx.NoCache(w)
	http.Redirect(w, r, ch.AuthorizeURL, http.StatusFound)
}

// HandleCallback godoc
//
//	@Summary		Sign in callback
//	@Description	Receives the identity provider's form post, redeems the authorization code, verifies the ID token,
//	@Description	caches the access token for the session and sets the identity cookie.
//	@Tags			Session
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			code				formData	string	false	"authorization code"
//	@Param			state				formData	string	true	"state from the authorization request"
//	@Param			error				formData	string	false	"error code from the identity provider"
//	@Param			error_description	formData	string	false	"error description from the identity provider"
//	@Success		303
//	@Failure		400	{object}	httpx.ErrorBody
//	@Failure		503	{object}	httpx.ErrorBody	"session_unavailable"
//	@Router			/signin-oidc [post]
func (h *SignInHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	sess := session.FromContext(ctx)
	if !sess.IsNew() {
		// Signing in raises the privilege level; never keep the old id.
		if err := h.Sessions.Renew(ctx, w, sess); err != nil {
			slogx.FromContext(ctx).Error("failed to renew session", "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "session_unavailable", "session store unavailable")
			return
		}
	}

	corr := correlationValue(r)
	h.Cookies.clearCorrelation(w)

	done, err := h.SignInService.Complete(ctx, sess.ID(), corr, r.PostForm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.setIdentity(w, done.IDToken, done.Expires)
	http.Redirect(w, r, done.ReturnTo, http.StatusSeeOther)
}

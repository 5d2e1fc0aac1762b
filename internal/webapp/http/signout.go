package http

import (
	"net/http"

	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/session"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
)

type SignOutHandler struct {
	PrivilegeService *service.PrivilegeService
	SignInService    *service.SignInService
	Sessions         *session.Manager
	Cookies          CookieOptions

	// PostLogoutRedirect is the absolute URL the identity provider sends
	// the browser back to.
	PostLogoutRedirect string
}

// ServeHTTP godoc
//
//	@Summary		Sign out
//	@Description	Clears cached credentials, the identity cookie and the session, then redirects to the identity provider's end session endpoint.
//	@Tags			Session
//	@Success		302
//	@Router			/signout [get]
//	@Router			/signout [post]
func (h *SignOutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	sess := session.FromContext(ctx)

	coord, _, err := h.PrivilegeService.Bind(ctx, sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	coord.BeginSignOut(ctx)

	hint := h.Cookies.identityToken(r)
	h.Cookies.clearIdentity(w)
	if err := h.Sessions.Destroy(ctx, w, sess); err != nil {
		log.Warn("failed to delete session", "err", err)
	}

	log.Info("signed out")
	http.Redirect(w, r, h.SignInService.SignOutURL(hint, h.PostLogoutRedirect), http.StatusFound)
}

package http

import (
	"net/http"

	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/session"
)

type ProfileHandler struct {
	PrivilegeService *service.PrivilegeService
}

// ServeHTTP godoc
//
//	@Summary		Caller profile
//	@Description	Calls the remote API with the session's cached credential and returns the caller's profile.
//	@Tags			API
//	@Produce		json
//	@Success		200	{object}	domain.Profile
//	@Failure		401	{object}	httpx.ErrorBody	"unauthenticated, session_expired or credential_rejected"
//	@Failure		403	{object}	httpx.ErrorBody	"consent_required, with consent_url"
//	@Failure		404	{object}	httpx.ErrorBody	"not_found"
//	@Failure		502	{object}	httpx.ErrorBody	"upstream_error"
//	@Security		IdentityCookie
//	@Router			/api/profile [get]
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coord, caller, err := h.PrivilegeService.Bind(ctx, session.FromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !coord.IsAuthenticated(ctx) {
		writeSessionExpired(w)
		return
	}

	profile, err := caller.Profile(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

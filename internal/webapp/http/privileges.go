package http

import (
	"net/http"

	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/session"
)

type PrivilegesHandler struct {
	PrivilegeService *service.PrivilegeService
}

// ServeHTTP godoc
//
//	@Summary		Reload privileges
//	@Description	Discards the cached privilege record and loads a fresh one from the remote API.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	domain.Privileges
//	@Failure		401	{object}	httpx.ErrorBody	"unauthenticated or session_expired"
//	@Failure		403	{object}	httpx.ErrorBody	"consent_required, with consent_url"
//	@Failure		502	{object}	httpx.ErrorBody	"upstream_error"
//	@Security		IdentityCookie
//	@Router			/privileges/reload [post]
func (h *PrivilegesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coord, _, err := h.PrivilegeService.Bind(ctx, session.FromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !coord.IsAuthenticated(ctx) {
		writeSessionExpired(w)
		return
	}

	if err := coord.ResetPrivileges(); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := coord.LoadAuthAndPrivileges(ctx); err != nil {
		writeServiceError(w, r, err)
		return
	}

	privs, err := coord.Privileges()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, privs)
}

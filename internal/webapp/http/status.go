package http

import (
	"net/http"

	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/session"
)

type StatusHandler struct {
	PrivilegeService *service.PrivilegeService
}

// ServeHTTP godoc
//
//	@Summary		Session status
//	@Description	Evaluates the caller's session, reloading privileges when the cached record no longer applies.
//	@Description	status is the state the request arrived in: unauthenticated, authenticated_stale_cache or authenticated_valid_cache.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Failure		403	{object}	httpx.ErrorBody	"consent_required, with consent_url"
//	@Failure		502	{object}	httpx.ErrorBody	"upstream_error"
//	@Router			/ [get]
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coord, _, err := h.PrivilegeService.Bind(ctx, session.FromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status, err := h.PrivilegeService.Evaluate(ctx, coord)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := StatusResponse{Status: status.String()}
	id, ok := coord.CurrentIdentity(ctx)
	if !ok {
		resp.SignInURL = "/signin"
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}

	privs, err := coord.Privileges()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp.Authenticated = true
	resp.Identity = &id
	resp.Privileges = &privs
	httpx.WriteJSON(w, http.StatusOK, resp)
}

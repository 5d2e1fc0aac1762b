package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/webauth/internal/webapp/service"
	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/oidc"
	"github.com/aussiebroadwan/webauth/pkg/slogx"
	"github.com/aussiebroadwan/webauth/pkg/webapi"
)

// writeServiceError maps service and remote API errors to JSON error
// responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var (
		consent *webapi.ConsentRequiredError
		svcErr  *webapi.ServiceError
		oauth   *oidc.Error
	)
	switch {
	case errors.As(err, &consent):
		httpx.WriteJSON(w, http.StatusForbidden, httpx.ErrorBody{
			Error:       "consent_required",
			Description: "the API needs additional consent",
			ConsentURL:  consent.ConsentURL,
		})

	case errors.Is(err, webapi.ErrAuthenticationFailed), errors.Is(err, service.ErrNoIdentity):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "sign in required")

	case errors.Is(err, webapi.ErrUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, "credential_rejected", "the API rejected the cached credential, sign in again")

	case errors.As(err, &svcErr):
		if svcErr.StatusCode == http.StatusNotFound {
			httpx.WriteError(w, http.StatusNotFound, "not_found", svcErr.Reason)
			return
		}
		log.Warn("remote API failed", "status", svcErr.StatusCode, "reason", svcErr.Reason)
		httpx.WriteError(w, http.StatusBadGateway, "upstream_error", svcErr.Reason)

	case errors.Is(err, webapi.ErrDecode):
		log.Warn("remote API returned a malformed body", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "upstream_error", "malformed API response")

	case errors.As(err, &oauth):
		log.Info("sign in rejected by identity provider", "error", oauth.Code)
		httpx.WriteError(w, http.StatusBadRequest, oauth.Code, oauth.Description)

	case errors.Is(err, service.ErrCorrelation),
		errors.Is(err, service.ErrStateMismatch),
		errors.Is(err, service.ErrNonceMismatch):
		log.Info("sign in callback rejected", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "sign in could not be verified, start again")

	default:
		log.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeSessionExpired(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="session expired"`)
	httpx.WriteError(w, http.StatusUnauthorized, "session_expired", "cached credentials are gone, sign in again")
}

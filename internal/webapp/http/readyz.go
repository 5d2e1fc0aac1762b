package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/httpx"
	"github.com/aussiebroadwan/webauth/pkg/jwtx"
)

// Pinger is a dependency readiness can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler godoc
//
//	@Summary		Readiness check
//	@Description	Checks the credential database, the shared session store when one is configured, and that ID token keys are loaded.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	HealthResponse	"service not ready"
//	@Router			/readyz [get]
func ReadyzHandler(
	startTime time.Time,
	version string,
	db Pinger,
	sessions Pinger,
	keys *jwtx.KeySet,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := &HealthChecks{Database: "ok", Keys: "ok"}
		status, code := "ok", http.StatusOK
		degrade := func() { status, code = "degraded", http.StatusServiceUnavailable }

		if err := db.Ping(ctx); err != nil {
			checks.Database = "error: " + err.Error()
			degrade()
		}
		if sessions != nil {
			checks.Sessions = "ok"
			if err := sessions.Ping(ctx); err != nil {
				checks.Sessions = "error: " + err.Error()
				degrade()
			}
		}
		if !keys.IsReady() {
			checks.Keys = "error: no keys loaded"
			degrade()
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

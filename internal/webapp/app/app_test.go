package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/webauth/internal/webapp/oidctest"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testConfig(t *testing.T, idp *oidctest.IdP, api *oidctest.API) Config {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	return Config{
		Authority:            idp.Issuer(),
		ClientID:             idp.ClientID,
		RedirectURL:          "http://127.0.0.1/signin-oidc",
		APIRoot:              api.Server.URL,
		APIScopes:            []string{"api://backend/.default"},
		PrivilegeTTL:         time.Minute,
		DatabaseFile:         filepath.Join(t.TempDir(), "webapp.db"),
		Secret:               "0123456789abcdef0123456789abcdef",
		SessionTTL:           time.Hour,
		JWKSRefresh:          time.Hour,
		TracingEnabled:       true,
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		Port:                 freePort(t),
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Port: 8080})
	require.ErrorContains(t, err, "invalid configuration")
}

func TestNewDiscoveryFailure(t *testing.T) {
	idp := oidctest.NewIdP(t)
	cfg := testConfig(t, idp, oidctest.NewAPI(t))
	cfg.Authority = idp.Server.URL + "/other-tenant/v2.0"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "failed to discover identity provider")
}

func TestNewUnreachableRedis(t *testing.T) {
	idp := oidctest.NewIdP(t)
	cfg := testConfig(t, idp, oidctest.NewAPI(t))
	cfg.RedisURL = fmt.Sprintf("redis://127.0.0.1:%d/0", freePort(t))

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "failed to reach redis")
}

func TestRunServesUntilCancelled(t *testing.T) {
	mr := miniredis.RunT(t)
	idp := oidctest.NewIdP(t)
	cfg := testConfig(t, idp, oidctest.NewAPI(t))
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, app.keys.IsReady())
	require.Equal(t, idp.Issuer(), app.metadata.Issuer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	_ = resp.Body.Close()
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks["sessions"])

	resp, err = http.Get(base + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, mr.Keys(), "anonymous visit should persist a session in redis")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

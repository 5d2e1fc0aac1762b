//go:build e2e

package webapp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/webauth/internal/webapp/app"
	"github.com/aussiebroadwan/webauth/internal/webapp/oidctest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Shared fixtures for the webapp end-to-end tests: one redis container for
 * the whole run, and helpers to start the application against it and drive
 * a browser through sign in.
 */

const redisImage = "redis:7-alpine"

var redisURL string

// TestMain starts redis once before all tests and removes it afterwards.
func TestMain(m *testing.M) {
	ctx := context.Background()

	fmt.Fprintf(os.Stdout, "Starting redis container...")
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to start redis: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := c.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to resolve redis endpoint: %v\n", err)
		_ = c.Terminate(ctx)
		os.Exit(1)
	}
	redisURL = endpoint + "/0"
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Stopping redis container...")
	_ = c.Terminate(ctx)
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// flushRedis drops every session, as a redis restart without persistence
// would.
func flushRedis(t *testing.T) {
	t.Helper()

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	require.NoError(t, rdb.FlushAll(context.Background()).Err())
}

// env is one identity provider, one remote API and the database the
// application instances started by a test share.
type env struct {
	idp    *oidctest.IdP
	api    *oidctest.API
	dbFile string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	return &env{
		idp:    oidctest.NewIdP(t),
		api:    oidctest.NewAPI(t),
		dbFile: filepath.Join(t.TempDir(), "webapp.db"),
	}
}

// start runs an application instance on a free port and returns its base
// URL. The instance stops when the test ends or stop is called.
func (e *env) start(t *testing.T) (base string, stop func()) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	base = fmt.Sprintf("http://127.0.0.1:%d", port)

	cfg := app.Config{
		Authority:            e.idp.Issuer(),
		ClientID:             e.idp.ClientID,
		RedirectURL:          base + "/signin-oidc",
		PostLogoutRedirect:   base + "/",
		APIRoot:              e.api.Server.URL,
		APIScopes:            []string{"api://backend/.default"},
		PrivilegeTTL:         time.Minute,
		DatabaseFile:         e.dbFile,
		Secret:               "e2e-secret-e2e-secret-e2e-secret",
		RedisURL:             redisURL,
		SessionTTL:           time.Hour,
		JWKSRefresh:          time.Hour,
		Env:                  "test",
		LogLevel:             "warn",
		LogFormat:            "json",
		Port:                 port,
		ShutdownGracePeriod:  2 * time.Second,
		HousekeepingInterval: time.Hour,
	}

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, "webapp did not come up")

	var stopped bool
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(stop)
	return base, stop
}

// browser is an HTTP client that keeps cookies and does not follow
// redirects.
type browser struct {
	t      *testing.T
	client *http.Client
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}}
}

func (b *browser) get(target string) *http.Response {
	b.t.Helper()
	resp, err := b.client.Get(target)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (b *browser) post(target string, form url.Values) *http.Response {
	b.t.Helper()
	resp, err := b.client.PostForm(target, form)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// signIn walks the browser through the provider as subject.
func (b *browser) signIn(base string, idp *oidctest.IdP, subject string) {
	b.t.Helper()

	resp := b.get(base + "/signin")
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
	authorize := resp.Header.Get("Location")
	require.True(b.t, strings.HasPrefix(authorize, idp.Server.URL), authorize)

	form, err := idp.Approve(authorize, subject)
	require.NoError(b.t, err)

	resp = b.post(base+"/signin-oidc", form)
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
}

type status struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status"`
	Privileges    *struct {
		Roles []string `json:"roles"`
	} `json:"privileges"`
}

func (b *browser) status(base string) status {
	b.t.Helper()

	resp := b.get(base + "/")
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	var s status
	require.NoError(b.t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

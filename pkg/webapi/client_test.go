package webapi_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/webapi"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubTokens struct {
	token  string
	err    error
	calls  int
	scopes []string
}

func (s *stubTokens) AccessToken(context.Context) (string, error) {
	s.calls++
	s.scopes = nil
	return s.token, s.err
}

func (s *stubTokens) AccessTokenForScopes(_ context.Context, scopes []string) (string, error) {
	s.calls++
	s.scopes = scopes
	return s.token, s.err
}

type countingMetrics struct {
	rebuilds atomic.Int32
	outcomes []string
}

func (m *countingMetrics) CallCompleted(_, outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}
func (m *countingMetrics) ClientRebuilt() { m.rebuilds.Add(1) }

// roundTripFunc lets tests answer with arbitrary status lines.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, statusLine string, header http.Header, body string) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		if header == nil {
			header = http.Header{}
		}
		return &http.Response{
			StatusCode: status,
			Status:     statusLine,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	}
}

// authLog records Authorization headers seen by the test server.
type authLog struct {
	mu   sync.Mutex
	seen []string
}

func (l *authLog) add(v string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, v)
}

func (l *authLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seen...)
}

func newEchoServer(t *testing.T, hits *atomic.Int32, auths *authLog) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if auths != nil {
			auths.add(r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"path":"`+r.URL.Path+`"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientBinding(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	auths := &authLog{}
	srv := newEchoServer(t, &hits, auths)

	tokens := &stubTokens{token: "token-a"}
	metrics := &countingMetrics{}
	c := webapi.New(srv.URL, tokens, webapi.WithMetrics(metrics))
	ctx := context.Background()

	require.Nil(t, c.HTTPClient())

	resp, err := c.Call(ctx, "one", true)
	require.NoError(t, err)
	_ = resp.Body.Close()
	first := c.HTTPClient()

	resp, err = c.Call(ctx, "two", true)
	require.NoError(t, err)
	_ = resp.Body.Close()

	t.Run("same credential reuses client", func(t *testing.T) {
		require.Same(t, first, c.HTTPClient())
		require.Equal(t, int32(1), metrics.rebuilds.Load())
	})

	t.Run("different credential rebuilds", func(t *testing.T) {
		tokens.token = "token-b"
		resp, err := c.Call(ctx, "three", true)
		require.NoError(t, err)
		_ = resp.Body.Close()

		require.NotSame(t, first, c.HTTPClient())
		require.Equal(t, int32(2), metrics.rebuilds.Load())
	})

	t.Run("anonymous call rebuilds then reuses", func(t *testing.T) {
		before := c.HTTPClient()

		resp, err := c.Call(ctx, "four", false)
		require.NoError(t, err)
		_ = resp.Body.Close()
		anon := c.HTTPClient()
		require.NotSame(t, before, anon)

		resp, err = c.Call(ctx, "five", false)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Same(t, anon, c.HTTPClient())
	})

	require.Equal(t, []string{
		"Bearer token-a",
		"Bearer token-a",
		"Bearer token-b",
		"",
		"",
	}, auths.all())
	require.Equal(t, int32(5), hits.Load())
	require.Equal(t, []string{"ok", "ok", "ok", "ok", "ok"}, metrics.outcomes)
}

// idleTracker counts CloseIdleConnections calls on the transports it hands
// out, one counter per transport.
type idleTracker struct {
	mu     sync.Mutex
	closed []*atomic.Int32
}

type trackedTransport struct {
	http.RoundTripper
	closed *atomic.Int32
}

func (t *trackedTransport) CloseIdleConnections() {
	t.closed.Add(1)
	t.RoundTripper.(*http.Transport).CloseIdleConnections()
}

func (tr *idleTracker) transport() http.RoundTripper {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n := &atomic.Int32{}
	tr.closed = append(tr.closed, n)
	return &trackedTransport{RoundTripper: http.DefaultTransport.(*http.Transport).Clone(), closed: n}
}

func (tr *idleTracker) counts() []int32 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]int32, len(tr.closed))
	for i, n := range tr.closed {
		out[i] = n.Load()
	}
	return out
}

func TestRebindClosesReplacedConnections(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newEchoServer(t, &hits, nil)

	tracker := &idleTracker{}
	tokens := &stubTokens{token: "token-a"}
	c := webapi.New(srv.URL, tokens, webapi.WithTransport(tracker.transport))
	ctx := context.Background()

	call := func(target string) {
		t.Helper()
		resp, err := c.Call(ctx, target, true)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	call("one")
	call("two")
	require.Zero(t, c.HTTPClient().Timeout, "no client timeout unless configured")

	t.Run("same credential keeps connections", func(t *testing.T) {
		require.Equal(t, []int32{0}, tracker.counts())
	})

	t.Run("credential change closes the old transport only", func(t *testing.T) {
		tokens.token = "token-b"
		call("three")
		require.Equal(t, []int32{1, 0}, tracker.counts())
	})

	t.Run("close releases the bound transport", func(t *testing.T) {
		c.Close()
		require.Equal(t, []int32{1, 1}, tracker.counts())
	})

	t.Run("configured timeout applies", func(t *testing.T) {
		timed := webapi.New(srv.URL, tokens, webapi.WithTimeout(5*time.Second))
		resp, err := timed.Call(ctx, "four", true)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, 5*time.Second, timed.HTTPClient().Timeout)
	})
}

func TestCallWithoutCredential(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newEchoServer(t, &hits, nil)
	ctx := context.Background()

	t.Run("empty credential", func(t *testing.T) {
		c := webapi.New(srv.URL, &stubTokens{})

		_, err := c.Call(ctx, "me", true)
		require.ErrorIs(t, err, webapi.ErrAuthenticationFailed)
		require.Nil(t, c.HTTPClient(), "no client may be built without a credential")
	})

	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("cache unavailable")
		c := webapi.New(srv.URL, &stubTokens{err: boom})

		_, err := webapi.GetJSON[map[string]any](ctx, c, "me", true)
		require.ErrorIs(t, err, webapi.ErrAuthenticationFailed)
		require.ErrorIs(t, err, boom)
	})

	t.Run("no provider", func(t *testing.T) {
		c := webapi.New(srv.URL, nil)

		_, err := c.Post(ctx, "me", "text/plain", strings.NewReader("x"), true)
		require.ErrorIs(t, err, webapi.ErrAuthenticationFailed)
	})

	require.Zero(t, hits.Load())
}

func TestResponseInterpretation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	newClient := func(rt roundTripFunc) *webapi.Client {
		return webapi.New("https://api.example.com", &stubTokens{token: "t"},
			webapi.WithTransport(func() http.RoundTripper { return rt }),
		)
	}

	t.Run("need-consent challenge", func(t *testing.T) {
		h := http.Header{}
		h.Set("WWW-Authenticate", `need-consent param="https://x"`)
		c := newClient(respond(http.StatusUnauthorized, "401 Unauthorized", h, ""))

		_, err := c.Call(ctx, "graph", true)

		var consent *webapi.ConsentRequiredError
		require.ErrorAs(t, err, &consent)
		require.Equal(t, "https://x", consent.ConsentURL)
		require.Contains(t, err.Error(), "https://x")
	})

	t.Run("plain 401 passes through", func(t *testing.T) {
		h := http.Header{}
		h.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		c := newClient(respond(http.StatusUnauthorized, "401 Unauthorized", h, ""))

		resp, err := c.Call(ctx, "graph", true)
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("404 carries reason phrase", func(t *testing.T) {
		c := newClient(respond(http.StatusNotFound, "404 Widget Missing", nil, ""))

		_, err := c.Call(ctx, "widgets/1", true)

		var svc *webapi.ServiceError
		require.ErrorAs(t, err, &svc)
		require.Equal(t, http.StatusNotFound, svc.StatusCode)
		require.Equal(t, "Widget Missing", svc.Reason)
	})

	t.Run("500 without reason uses status text", func(t *testing.T) {
		c := newClient(respond(http.StatusInternalServerError, "500", nil, ""))

		_, err := c.Call(ctx, "widgets", true)

		var svc *webapi.ServiceError
		require.ErrorAs(t, err, &svc)
		require.Equal(t, "Internal Server Error", svc.Reason)
	})

	t.Run("other failures pass through", func(t *testing.T) {
		c := newClient(respond(http.StatusForbidden, "403 Forbidden", nil, "nope"))

		resp, err := c.Call(ctx, "widgets", true)
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		body, err := webapi.ReadString(resp)
		require.NoError(t, err)
		require.Equal(t, "nope", body)
	})
}

func TestCallForScopesUsesLiteralTarget(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newEchoServer(t, &hits, nil)

	tokens := &stubTokens{token: "graph-token"}
	c := webapi.New("https://api.example.com", tokens)

	scopes := []string{"https://graph.example.com/User.Read"}
	resp, err := c.CallForScopes(context.Background(), srv.URL+"/v1.0/me", true, scopes)
	require.NoError(t, err)

	var sb strings.Builder
	_, err = webapi.CopyTo(resp, &sb)
	require.NoError(t, err)
	require.JSONEq(t, `{"path":"/v1.0/me"}`, sb.String())
	require.Equal(t, scopes, tokens.scopes)
}

func TestDefaultScopes(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newEchoServer(t, &hits, nil)

	tokens := &stubTokens{token: "t"}
	c := webapi.New(srv.URL+"/", tokens, webapi.WithDefaultScopes("api://backend/.default"))

	resp, err := c.Call(context.Background(), "ping", true)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, []string{"api://backend/.default"}, tokens.scopes)
}

func TestCallRecordsSpan(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newEchoServer(t, &hits, nil)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	c := webapi.New(srv.URL, &stubTokens{token: "t"}, webapi.WithTracerProvider(tp))
	resp, err := c.Call(context.Background(), "traced", true)
	require.NoError(t, err)
	_ = resp.Body.Close()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "webapi GET", spans[0].Name())
}

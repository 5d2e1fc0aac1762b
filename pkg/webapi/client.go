package webapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/slogx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aussiebroadwan/webauth/pkg/webapi"

// TokenProvider hands out bearer credentials for the active identity. An
// empty string means no credential is cached; implementations must not mint
// or refresh tokens interactively.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	AccessTokenForScopes(ctx context.Context, scopes []string) (string, error)
}

// Metrics receives call outcomes. The zero Client uses a no-op.
type Metrics interface {
	CallCompleted(method, outcome string, d time.Duration)
	ClientRebuilt()
}

type noopMetrics struct{}

func (noopMetrics) CallCompleted(string, string, time.Duration) {}
func (noopMetrics) ClientRebuilt()                              {}

// Client calls the remote API rooted at apiRoot. The bound *http.Client is
// guarded by a mutex, but a Client is meant to be owned by one caller
// context at a time.
type Client struct {
	apiRoot       string
	tokens        TokenProvider
	defaultScopes []string
	timeout       time.Duration
	userAgent     string
	newTransport  func() http.RoundTripper
	tracer        trace.Tracer
	metrics       Metrics

	mu    sync.Mutex
	hc    *http.Client
	bound string
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultScopes makes Call and the non-scoped typed helpers request a
// credential for scopes instead of the provider's default.
func WithDefaultScopes(scopes ...string) Option {
	return func(c *Client) { c.defaultScopes = scopes }
}

// WithTimeout sets the per-request timeout of bound clients. By default
// there is none and deadlines come from the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTransport sets the factory for the base transport of each bound
// client. Every rebuild gets a fresh transport so connections never outlive
// the credential they were opened for.
func WithTransport(fn func() http.RoundTripper) Option {
	return func(c *Client) { c.newTransport = fn }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithMetrics reports call outcomes to m.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for apiRoot. tokens may be nil when every call is
// anonymous.
func New(apiRoot string, tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		apiRoot: strings.TrimSuffix(apiRoot, "/"),
		tokens:  tokens,
		newTransport: func() http.RoundTripper {
			return http.DefaultTransport.(*http.Transport).Clone()
		},
		tracer:  otel.Tracer(tracerName),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the currently bound client, or nil before the first
// call.
func (c *Client) HTTPClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hc
}

// Close releases idle connections of the bound client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hc != nil {
		c.hc.CloseIdleConnections()
	}
}

// Call issues GET apiRoot/target. When requireAuth is set a credential for
// the default scopes is attached.
func (c *Client) Call(ctx context.Context, target string, requireAuth bool) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, c.url(target), nil, "", requireAuth, c.defaultScopes)
}

// CallForScopes issues GET against the literal target, which may be an
// absolute URL outside apiRoot, with a credential for scopes.
func (c *Client) CallForScopes(
	ctx context.Context,
	target string,
	requireAuth bool,
	scopes []string,
) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, target, nil, "", requireAuth, scopes)
}

// Post sends body to apiRoot/target.
func (c *Client) Post(
	ctx context.Context,
	target, contentType string,
	body io.Reader,
	requireAuth bool,
) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, c.url(target), body, contentType, requireAuth, c.defaultScopes)
}

// Put sends body to apiRoot/target.
func (c *Client) Put(
	ctx context.Context,
	target, contentType string,
	body io.Reader,
	requireAuth bool,
) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, c.url(target), body, contentType, requireAuth, c.defaultScopes)
}

// AccessTokenForScopes exposes the provider for callers that need a raw
// credential, e.g. to hand to a browser-side client.
func (c *Client) AccessTokenForScopes(ctx context.Context, scopes []string) (string, error) {
	return c.token(ctx, scopes)
}

func (c *Client) url(target string) string {
	return c.apiRoot + "/" + target
}

func (c *Client) do(
	ctx context.Context,
	method, url string,
	body io.Reader,
	contentType string,
	requireAuth bool,
	scopes []string,
) (*http.Response, error) {
	start := time.Now()
	log := slogx.FromContext(ctx)

	ctx, span := c.tracer.Start(ctx, "webapi "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
			attribute.Bool("webapi.require_auth", requireAuth),
		),
	)
	defer span.End()

	fail := func(outcome string, err error) (*http.Response, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.metrics.CallCompleted(method, outcome, time.Since(start))
		return nil, err
	}

	var token string
	if requireAuth {
		var err error
		if token, err = c.token(ctx, scopes); err != nil {
			log.Warn("webapi: credential unavailable", "url", url, "err", err)
			return fail("auth_failed", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fail("bad_request", fmt.Errorf("webapi: create request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.bind(token).Do(req)
	if err != nil {
		return fail("transport_error", fmt.Errorf("webapi: send request: %w", err))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if err := interpret(resp); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		log.Debug("webapi: call failed", "url", url, "status", resp.StatusCode, "err", err)
		return fail(outcomeOf(err), err)
	}

	c.metrics.CallCompleted(method, "ok", time.Since(start))
	return resp, nil
}

// token asks the provider for a credential. A missing provider, a provider
// error and an empty credential all count as no credential.
func (c *Client) token(ctx context.Context, scopes []string) (string, error) {
	if c.tokens == nil {
		return "", ErrAuthenticationFailed
	}

	var (
		tok string
		err error
	)
	if len(scopes) == 0 {
		tok, err = c.tokens.AccessToken(ctx)
	} else {
		tok, err = c.tokens.AccessTokenForScopes(ctx, scopes)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if tok == "" {
		return "", ErrAuthenticationFailed
	}
	return tok, nil
}

// bind returns the client bound to token, rebuilding it when none exists or
// the token changed by value.
func (c *Client) bind(token string) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hc != nil && c.bound == token {
		return c.hc
	}

	old := c.hc
	c.hc = &http.Client{
		Timeout:   c.timeout,
		Transport: &bearerTransport{token: token, base: c.newTransport()},
	}
	c.bound = token
	if old != nil {
		old.CloseIdleConnections()
	}
	c.metrics.ClientRebuilt()
	return c.hc
}

// bearerTransport stamps every request with the credential it was built for.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

func (t *bearerTransport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

func outcomeOf(err error) string {
	switch err.(type) {
	case *ConsentRequiredError:
		return "consent_required"
	case *ServiceError:
		return "service_error"
	default:
		return "error"
	}
}

// Package metrics exposes Prometheus collectors for the web application.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry, so tests can build
// as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	apiCalls        *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	clientsRebuilt  prometheus.Counter
	privilegeLoads  *prometheus.CounterVec
	authStatus      *prometheus.CounterVec
	signIns         *prometheus.CounterVec
	credentialPurge prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		apiCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "calls_total",
			Help:      "Remote API calls by method and outcome",
		}, []string{"method", "outcome"}),
		apiDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "call_duration_seconds",
			Help:      "Duration of remote API calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		clientsRebuilt: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "clients_rebuilt_total",
			Help:      "HTTP clients rebuilt because the bound credential changed",
		}),
		privilegeLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "privilege_loads_total",
			Help:      "Privilege reloads by outcome",
		}, []string{"outcome"}),
		authStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_status_total",
			Help:      "Per-request session evaluations by status",
		}, []string{"status"}),
		signIns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_events_total",
			Help:      "Sign-in and sign-out events",
		}, []string{"event"}),
		credentialPurge: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_purged_total",
			Help:      "Expired credential cache entries removed by housekeeping",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests by method and status code",
		}, []string{"method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Inbound HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// CallCompleted records one remote API call.
func (m *Metrics) CallCompleted(method, outcome string, d time.Duration) {
	m.apiCalls.WithLabelValues(method, outcome).Inc()
	m.apiDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ClientRebuilt() { m.clientsRebuilt.Inc() }

func (m *Metrics) PrivilegesLoaded(outcome string) {
	m.privilegeLoads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuthStatus(status string) {
	m.authStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) SignInEvent(event string) {
	m.signIns.WithLabelValues(event).Inc()
}

func (m *Metrics) CredentialsPurged(n int64) {
	m.credentialPurge.Add(float64(n))
}

// Instrument wraps next with request counters.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.httpRequests,
		promhttp.InstrumentHandlerDuration(m.httpDuration, next),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

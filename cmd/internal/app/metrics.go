package app

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authd/cmd/internal/auth/session"
)

// Metrics owns a private registry so tests can build several Apps in one process.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	authOps      *prometheus.CounterVec
}

// NewMetrics registers authd collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authd_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_auth_operations_total",
			Help: "Session operations by op and outcome.",
		}, []string{"op", "outcome"}),
	}
	m.reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.authOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observer returns the session.Service hook that feeds authd_auth_operations_total.
func (m *Metrics) Observer() session.Observer {
	return func(op, outcome string) {
		m.authOps.WithLabelValues(op, outcome).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) observeHTTP(method, route string, status int, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

var knownRoutes = map[string]struct{}{
	"/auth/register": {},
	"/auth/login":    {},
	"/auth/refresh":  {},
	"/auth/logout":   {},
	"/auth/profile":  {},
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
}

// routeLabel keeps label cardinality bounded: unknown paths collapse to "other".
func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

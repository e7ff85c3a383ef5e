package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/oci-onboarding/models"
)

const namespace = "onboarding"

// Metrics holds the service's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	RequestCount         *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	Onboardings          *prometheus.CounterVec
	ProvisioningDuration *prometheus.HistogramVec
	TokenVerifications   *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Onboardings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "customers_total",
				Help:      "Onboarding attempts by outcome and last stage reached",
			},
			[]string{"outcome", "stage"},
		),
		ProvisioningDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "identity",
				Name:      "call_duration_seconds",
				Help:      "Duration of identity service create calls",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage", "result"},
		),
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "verifications_total",
				Help:      "Bearer token verifications by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCount,
		m.RequestDuration,
		m.Onboardings,
		m.ProvisioningDuration,
		m.TokenVerifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveProvisioningCall records one identity create call
func (m *Metrics) ObserveProvisioningCall(stage models.Stage, success bool, duration time.Duration) {
	m.ProvisioningDuration.WithLabelValues(string(stage), result(success)).Observe(duration.Seconds())
}

// ObserveOnboarding records one onboarding attempt
func (m *Metrics) ObserveOnboarding(stage models.Stage, success bool) {
	outcome := string(models.AuditOutcomeSucceeded)
	if !success {
		outcome = string(models.AuditOutcomeFailed)
	}
	m.Onboardings.WithLabelValues(outcome, string(stage)).Inc()
}

// ObserveTokenVerification records one bearer token check
func (m *Metrics) ObserveTokenVerification(success bool) {
	m.TokenVerifications.WithLabelValues(result(success)).Inc()
}

// Middleware records request count and latency per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

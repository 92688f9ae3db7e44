package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the site's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthEventsTotal     *prometheus.CounterVec
	RateLimitBreaches   *prometheus.CounterVec
	PasswordResetsTotal *prometheus.CounterVec
	SessionsPruned      prometheus.Counter
	UserCacheLookups    *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neighbor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neighbor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neighbor_auth_events_total",
				Help: "Auth events recorded, by event kind",
			},
			[]string{"event"},
		),
		RateLimitBreaches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neighbor_rate_limit_rejections_total",
				Help: "Requests rejected because the daily error budget was spent",
			},
			[]string{"event"},
		),
		PasswordResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neighbor_password_resets_total",
				Help: "Password reset tickets by outcome",
			},
			[]string{"outcome"},
		),
		SessionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "neighbor_sessions_pruned_total",
				Help: "Expired sessions removed by the pruning job",
			},
		),
		UserCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neighbor_user_cache_lookups_total",
				Help: "User cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.RateLimitBreaches,
		m.PasswordResetsTotal,
		m.SessionsPruned,
		m.UserCacheLookups,
	)

	return m
}

func (m *Metrics) AuthEvent(event string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) RateLimited(event string) {
	if m == nil {
		return
	}
	m.RateLimitBreaches.WithLabelValues(event).Inc()
}

func (m *Metrics) PasswordReset(outcome string) {
	if m == nil {
		return
	}
	m.PasswordResetsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionsRemoved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsPruned.Add(float64(n))
}

func (m *Metrics) UserCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.UserCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.UserCacheLookups.WithLabelValues("miss").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware instruments requests, labelling them by chi route pattern.
func HTTPMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

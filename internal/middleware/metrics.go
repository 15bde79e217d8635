package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estate_compliance"

// Metrics holds the HTTP and analysis collectors of one registry.
// It implements the analysis Recorder.
type Metrics struct {
	Registry *prometheus.Registry

	requests      *prometheus.CounterVec
	inProgress    prometheus.Gauge
	duration      *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	loads         *prometheus.CounterVec
	staleDiscards prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry. openPanels may be nil.
func NewMetrics(openPanels func() int) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_requests_in_progress",
			Help: "HTTP requests being served.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: "Analysis cache lookups by result (hit, miss, stale).",
		}, []string{"result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "analysis_loads_total",
			Help: "Committed analysis loads by outcome phase.",
		}, []string{"outcome"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "analysis_stale_discards_total",
			Help: "Results dropped because the selection changed meanwhile.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.inProgress, m.duration,
		m.cacheLookups, m.loads, m.staleDiscards,
	)
	if openPanels != nil {
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "panels_open",
			Help: "Panels currently held by the registry.",
		}, func() float64 { return float64(openPanels()) }))
	}
	return m
}

func (m *Metrics) CacheLookup(result string)   { m.cacheLookups.WithLabelValues(result).Inc() }
func (m *Metrics) LoadFinished(outcome string) { m.loads.WithLabelValues(outcome).Inc() }
func (m *Metrics) StaleDiscarded()             { m.staleDiscards.Inc() }

// Middleware tracks request metrics labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inProgress.Inc()
		defer m.inProgress.Dec()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

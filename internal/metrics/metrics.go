// Package metrics exposes Prometheus collectors for HTTP traffic, carrier
// outcomes and the quote cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds a private registry and the collectors registered on it.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	carrierQuotes   *prometheus.CounterVec
	carrierLatency  *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipquote_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipquote_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	carrierQuotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipquote_carrier_quotes_total",
		Help: "Carrier quote attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
	carrierLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipquote_carrier_quote_duration_seconds",
		Help:    "Time taken by a carrier to produce a quote.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
	}, []string{"provider"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipquote_quote_cache_lookups_total",
		Help: "Quote cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, carrierQuotes, carrierLatency, cacheLookups)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		carrierQuotes:   carrierQuotes,
		carrierLatency:  carrierLatency,
		cacheLookups:    cacheLookups,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every request, labelled by the
// chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveQuote implements quote.Observer.
func (m *Metrics) ObserveQuote(providerID string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.carrierQuotes.WithLabelValues(providerID, outcome).Inc()
	m.carrierLatency.WithLabelValues(providerID).Observe(latency.Seconds())
}

// ObserveCache implements quote.Observer.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

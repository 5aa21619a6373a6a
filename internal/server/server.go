package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shipquote/internal/apperr"
	"shipquote/internal/logger"
	"shipquote/internal/metrics"
	"shipquote/internal/quote"
	"shipquote/internal/status"
)

// Provider describes a carrier in the provider registry.
type Provider struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TransportMode string `json:"transportMode,omitempty"`
	Currency      string `json:"currency,omitempty"`
}

// Options wires the HTTP layer. Service is required.
type Options struct {
	Service   *quote.Service
	Validator *quote.Validator
	Monitor   *status.Monitor
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
	// Providers defaults to the service's engines (id and name only).
	Providers []Provider

	CORSOrigins        []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Production         bool
}

type Server struct {
	svc       *quote.Service
	validator *quote.Validator
	monitor   *status.Monitor
	providers []Provider
	log       *logger.Logger
}

func New(opts Options) http.Handler {
	s := &Server{
		svc:       opts.Service,
		validator: opts.Validator,
		monitor:   opts.Monitor,
		providers: opts.Providers,
		log:       opts.Logger,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.validator == nil {
		s.validator = quote.NewValidator()
	}
	if s.providers == nil {
		for _, e := range s.svc.Engines() {
			s.providers = append(s.providers, Provider{ID: e.ID(), Name: e.Name()})
		}
	}
	if s.monitor == nil {
		ps := make([]status.Provider, len(s.providers))
		for i, p := range s.providers {
			ps[i] = status.Provider{ID: p.ID, Name: p.Name}
		}
		s.monitor = status.NewMonitor(ps, 0)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware(s.log))
	r.Use(loggingMiddleware(s.log))
	r.Use(recoverer(s.log))
	r.Use(opts.Metrics.Middleware)
	r.Use(secureHeaders(s.log, opts.Production))
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(middleware.Compress(5))
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAppError(r.Context(), s.log, w, apperr.New(apperr.CodeNotFound, "not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.With(quoteRateLimiter(opts.RateLimitPerMinute)).Post("/quotes", s.handleCreateQuote)
		} else {
			r.Post("/quotes", s.handleCreateQuote)
		}
		r.Get("/quotes", s.handleListQuotes)
		r.Get("/providers", s.handleListProviders)
		r.Get("/providers/status", s.handleProviderStatus)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package api exposes the aggregator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-price-scout/aggregator"
	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Searcher is the part of aggregator.Service the HTTP layer needs.
type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.AggregationResult, error)
	SupportedCountries() []aggregator.CountryInfo
	Stats() aggregator.Stats
}

// Options tune the HTTP layer.
type Options struct {
	// RateLimit is the number of searches a client may run per hour. Zero
	// disables the limit.
	RateLimit      int
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// Server routes HTTP requests to a Searcher.
type Server struct {
	svc     Searcher
	opts    Options
	started time.Time
	now     func() time.Time
}

// NewServer builds a server over svc.
func NewServer(svc Searcher, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{svc: svc, opts: opts, started: time.Now(), now: time.Now}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	search := s.limit(http.HandlerFunc(s.handleSearch))
	r.Handle("/api/search", search).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/api/countries", s.handleCountries).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", headerSearchMode},
	})
	return c.Handler(r)
}

// limit wraps h with a per-client token bucket refilled over an hour.
func (s *Server) limit(h http.Handler) http.Handler {
	if s.opts.RateLimit <= 0 {
		return h
	}
	lmt := tollbooth.NewLimiter(float64(s.opts.RateLimit)/3600, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetBurst(s.opts.RateLimit)
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(`{"error":"Rate limit exceeded. Please try again later."}`)
	lmt.SetOnLimitReached(func(_ http.ResponseWriter, r *http.Request) {
		slog.Warn("client rate limited", slog.String("remote", r.RemoteAddr))
	})
	return tollbooth.LimitHandler(lmt, h)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps aggregation errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, aggregator.ErrInvalidRequest), errors.Is(err, aggregator.ErrInvalidCountry):
		return http.StatusBadRequest
	case errors.Is(err, aggregator.ErrNoResultsFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

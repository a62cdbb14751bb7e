// Package aggregator answers one product search by choosing an extraction
// strategy, collecting candidates from the search engine and the configured
// storefronts, and running them through the ranking pipeline.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/pipeline"
	"github.com/aluiziolira/go-price-scout/ratelimit"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SiteSource extracts candidates from one configured storefront.
type SiteSource interface {
	Extract(ctx context.Context, site models.Site, query string, maxResults int) ([]models.Product, error)
}

// SearchEngine extracts candidates from a general search engine.
type SearchEngine interface {
	Extract(ctx context.Context, query, country string, maxResults int) ([]models.Product, error)
}

// RateStats exposes per-key request counters.
type RateStats interface {
	Stats() []ratelimit.KeyStats
}

// Recorder receives every ranked result, for example to persist it.
type Recorder interface {
	Process(products []models.Product) error
}

// Deps are the collaborators of a Service. Sites is required; the others may
// be nil.
type Deps struct {
	Sites      SiteSource
	Engine     SearchEngine
	Capability pipeline.Capability
	Governor   RateStats
	Recorder   Recorder
	Metrics    *metrics.Metrics
}

// Service runs aggregations. It is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	registry config.Registry
	sites    SiteSource
	engine   SearchEngine
	pipeline *pipeline.Pipeline
	governor RateStats
	recorder Recorder
	metrics  *metrics.Metrics
	cache    *expirable.LRU[string, models.AggregationResult]

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewService wires a service. A CacheSize of zero disables the result cache.
func NewService(cfg *config.Config, registry config.Registry, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		registry: registry,
		sites:    deps.Sites,
		engine:   deps.Engine,
		pipeline: pipeline.New(deps.Capability, deps.Metrics),
		governor: deps.Governor,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		sleep:    sleepCtx,
		now:      time.Now,
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		s.cache = expirable.NewLRU[string, models.AggregationResult](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Search validates req and returns the ranked result, or one of
// ErrInvalidRequest, ErrInvalidCountry and ErrNoResultsFound.
func (s *Service) Search(ctx context.Context, req models.SearchRequest) (*models.AggregationResult, error) {
	start := s.now()

	req, err := Normalize(req)
	if err != nil {
		s.metrics.ObserveSearch("invalid", s.now().Sub(start))
		return nil, err
	}

	key := cacheKey(req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.IncCache(true)
			slog.Debug("result served from cache", slog.String("query", req.ProductName), slog.String("country", req.Country))
			return cloneResult(cached), nil
		}
		s.metrics.IncCache(false)
	}

	slog.Info("search started",
		slog.String("query", req.ProductName),
		slog.String("country", req.Country),
		slog.Int("max_results", req.MaxResults),
	)

	col, err := s.collect(ctx, req)
	if err != nil {
		s.metrics.ObserveSearch(outcomeLabel(err), s.now().Sub(start))
		return nil, err
	}
	if len(col.products) == 0 {
		s.metrics.ObserveSearch("no_results", s.now().Sub(start))
		slog.Warn("search found nothing",
			slog.String("query", req.ProductName),
			slog.String("country", req.Country),
			slog.Int("source_errors", len(col.errors)),
		)
		return nil, fmt.Errorf("%w for %q in %s", ErrNoResultsFound, req.ProductName, req.Country)
	}

	out := s.pipeline.Run(ctx, pipeline.Request{
		Query:       req.ProductName,
		MaxResults:  req.MaxResults,
		PriceRange:  req.PriceRange,
		Preferences: req.Preferences,
	}, col.products)

	elapsed := s.now().Sub(start)
	result := &models.AggregationResult{
		Products:   out.Products,
		Query:      req.ProductName,
		Country:    req.Country,
		Total:      len(out.Products),
		Elapsed:    elapsed,
		ElapsedMs:  elapsed.Milliseconds(),
		Sources:    col.sources,
		Insights:   out.Insights,
		Confidence: out.Confidence,
		Mode:       col.mode,
		Errors:     col.errors,
		Degraded:   out.Degraded,
	}
	if result.Products == nil {
		result.Products = []models.Product{}
	}

	if s.cache != nil {
		s.cache.Add(key, *cloneResult(*result))
	}
	if s.recorder != nil && len(result.Products) > 0 {
		if err := s.recorder.Process(result.Products); err != nil {
			slog.Warn("recording results failed", slog.Any("error", err))
		}
	}

	s.metrics.ObserveSearch("ok", elapsed)
	slog.Info("search completed",
		slog.String("query", req.ProductName),
		slog.String("country", req.Country),
		slog.String("mode", col.mode),
		slog.Int("candidates", len(col.products)),
		slog.Int("results", result.Total),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCountry):
		return "invalid_country"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func cacheKey(req models.SearchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d|%s", strings.ToLower(req.ProductName), req.Country, req.MaxResults, req.Mode)
	if r := req.PriceRange; r != nil {
		if r.Min != nil {
			fmt.Fprintf(&b, "|min=%g", *r.Min)
		}
		if r.Max != nil {
			fmt.Fprintf(&b, "|max=%g", *r.Max)
		}
	}
	if p := req.Preferences; p != nil {
		fmt.Fprintf(&b, "|prefs=%t,%t,%s,%s", p.PrioritizePrice, p.PrioritizeRating,
			strings.Join(p.PreferredSellers, ";"), strings.Join(p.AvoidSellers, ";"))
	}
	return b.String()
}

// cloneResult deep-copies r so cached entries are never shared with callers.
func cloneResult(r models.AggregationResult) *models.AggregationResult {
	r.Products = slices.Clone(r.Products)
	for i := range r.Products {
		r.Products[i] = cloneProduct(r.Products[i])
	}
	r.Sources = slices.Clone(r.Sources)
	r.Errors = slices.Clone(r.Errors)
	r.Degraded = slices.Clone(r.Degraded)
	if r.Insights != nil {
		ins := *r.Insights
		ins.Recommendations = slices.Clone(ins.Recommendations)
		ins.Warnings = slices.Clone(ins.Warnings)
		ins.BestValue = cloneProductPtr(ins.BestValue)
		ins.PremiumOption = cloneProductPtr(ins.PremiumOption)
		r.Insights = &ins
	}
	if r.Confidence != nil {
		c := *r.Confidence
		r.Confidence = &c
	}
	if r.Products == nil {
		r.Products = []models.Product{}
	}
	return &r
}

func cloneProduct(p models.Product) models.Product {
	if p.Rating != nil {
		rating := *p.Rating
		p.Rating = &rating
	}
	return p
}

func cloneProductPtr(p *models.Product) *models.Product {
	if p == nil {
		return nil
	}
	c := cloneProduct(*p)
	return &c
}

// Stats is a snapshot of the service's state.
type Stats struct {
	SearchMode string               `json:"searchMode"`
	Requests   []ratelimit.KeyStats `json:"requests"`
	CacheSize  int                  `json:"cacheEntries"`
}

// Stats reports the global search mode, per-key request counters and cache
// occupancy.
func (s *Service) Stats() Stats {
	st := Stats{SearchMode: models.ModeDirect}
	if s.engine != nil && s.cfg.SearchEngineMode {
		st.SearchMode = models.ModeSearchEngine
	}
	if s.governor != nil {
		st.Requests = s.governor.Stats()
	}
	if s.cache != nil {
		st.CacheSize = s.cache.Len()
	}
	return st
}

// Package serp extracts product candidates from a general search engine's
// shopping and web result pages, without per-site configuration.
package serp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
	"github.com/aluiziolira/go-price-scout/scraper"
)

// SourceKey is the rate-limit key shared by every search-engine query.
const SourceKey = "search-engine"

const (
	shoppingShare  = 0.7
	maxShoppingNum = 20
	maxWebNum      = 10
)

// Headers are sent in addition to the fetcher's browser headers.
var Headers = http.Header{
	"Upgrade-Insecure-Requests": {"1"},
	"Sec-Fetch-Dest":            {"document"},
	"Sec-Fetch-Mode":            {"navigate"},
	"Sec-Fetch-Site":            {"none"},
	"Cache-Control":             {"max-age=0"},
}

// SearchEngineError means neither the shopping nor the web pass could fetch
// results.
type SearchEngineError struct {
	Err error
}

func (e *SearchEngineError) Error() string {
	return fmt.Sprintf("search engine: %v", e.Err)
}

func (e *SearchEngineError) Unwrap() error {
	return e.Err
}

// Extractor runs the shopping pass and, when it under-fills, the web pass.
type Extractor struct {
	fetcher  scraper.Fetcher
	limiter  scraper.Limiter
	interval time.Duration
	baseURL  string
	detector *parser.BlockDetector
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New builds an extractor against the engine at baseURL (for example
// https://www.google.com). Every call waits for one slot of interval on
// SourceKey.
func New(fetcher scraper.Fetcher, limiter scraper.Limiter, baseURL string, interval time.Duration, m *metrics.Metrics) *Extractor {
	return &Extractor{
		fetcher:  fetcher,
		limiter:  limiter,
		interval: interval,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		detector: parser.NewBlockDetector(),
		metrics:  m,
		now:      time.Now,
	}
}

// Extract returns at most maxResults candidates for query in country.
// Deduplication is left to the caller.
func (e *Extractor) Extract(ctx context.Context, query, country string, maxResults int) ([]models.Product, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	if err := e.limiter.AwaitSlot(ctx, SourceKey, e.interval); err != nil {
		return nil, &SearchEngineError{Err: err}
	}

	var results []models.Product

	shopping, shopErr := e.shoppingPass(ctx, query, country, int(math.Ceil(float64(maxResults)*shoppingShare)))
	if shopErr != nil {
		slog.Warn("shopping pass failed", slog.String("query", query), slog.Any("error", shopErr))
	} else {
		results = append(results, shopping...)
	}

	var webErr error
	if len(results) < maxResults {
		var web []models.Product
		web, webErr = e.webPass(ctx, query, country, maxResults-len(results))
		if webErr != nil {
			slog.Warn("web pass failed", slog.String("query", query), slog.Any("error", webErr))
		} else {
			results = append(results, web...)
		}
	}

	if shopErr != nil && webErr != nil {
		return nil, &SearchEngineError{Err: errors.Join(shopErr, webErr)}
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	e.metrics.AddCandidates(SourceKey, len(results))
	slog.Debug("search engine extracted",
		slog.String("query", query),
		slog.String("country", country),
		slog.Int("candidates", len(results)),
	)
	return results, nil
}

func (e *Extractor) searchURL(params url.Values) string {
	return e.baseURL + "/search?" + params.Encode()
}

func (e *Extractor) shoppingPass(ctx context.Context, query, country string, n int) ([]models.Product, error) {
	locale := config.LocaleFor(country)
	params := url.Values{
		"q":   {query},
		"tbm": {"shop"},
		"hl":  {locale.Language},
		"gl":  {locale.EngineCountry},
		"num": {strconv.Itoa(min(n, maxShoppingNum))},
	}

	body, err := e.fetcher.Fetch(ctx, SourceKey, e.searchURL(params))
	if err != nil {
		return nil, err
	}
	if blocked, reason := e.detector.Blocked(string(body)); blocked {
		slog.Warn("search engine returned a block page", slog.String("pass", "shopping"), slog.String("pattern", reason))
		e.metrics.IncError("blocked")
		return nil, nil
	}
	return e.parseShopping(body, country)
}

func (e *Extractor) webPass(ctx context.Context, query, country string, n int) ([]models.Product, error) {
	locale := config.LocaleFor(country)
	params := url.Values{
		"q":   {WebQuery(query, country)},
		"hl":  {locale.Language},
		"gl":  {locale.EngineCountry},
		"num": {strconv.Itoa(min(n, maxWebNum))},
	}

	body, err := e.fetcher.Fetch(ctx, SourceKey, e.searchURL(params))
	if err != nil {
		return nil, err
	}
	if blocked, reason := e.detector.Blocked(string(body)); blocked {
		slog.Warn("search engine returned a block page", slog.String("pass", "web"), slog.String("pattern", reason))
		e.metrics.IncError("blocked")
		return nil, nil
	}
	return e.parseWeb(body, query, country)
}

// WebQuery builds the web-pass query: the quoted product name, buying
// intent and the country's popular storefronts.
func WebQuery(query, country string) string {
	return fmt.Sprintf("%q price buy (%s)", query, strings.Join(config.MarketplacesFor(country), " OR "))
}

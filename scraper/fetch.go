package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves the raw markup of a page.
type Fetcher interface {
	Fetch(ctx context.Context, source, rawURL string) ([]byte, error)
}

// browserHeaders is sent with every plain fetch so responses match what a
// desktop browser receives. Accept-Encoding is left to the transport, which
// then decompresses transparently.
var browserHeaders = http.Header{
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.9"},
	"Connection":      {"keep-alive"},
}

// HTTPFetcher performs plain GET requests through a shared colly collector.
// Each call runs on a clone, so callbacks never leak between fetches while
// the transport and connection pool are reused.
type HTTPFetcher struct {
	collector *colly.Collector
	headers   http.Header
	metrics   *metrics.Metrics
}

// NewHTTPFetcher builds a fetcher bounded by cfg's timeout, redirect limit
// and parallelism.
func NewHTTPFetcher(cfg *config.Config, m *metrics.Metrics) (*HTTPFetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	maxRedirects := cfg.MaxRedirects
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	return &HTTPFetcher{
		collector: collector,
		headers:   browserHeaders.Clone(),
		metrics:   m,
	}, nil
}

// WithHeaders returns a fetcher sharing f's collector that also sends extra.
func (f *HTTPFetcher) WithHeaders(extra http.Header) *HTTPFetcher {
	headers := f.headers.Clone()
	for k, v := range extra {
		headers[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return &HTTPFetcher{collector: f.collector, headers: headers, metrics: f.metrics}
}

// Fetch GETs rawURL and returns the body. Failures come back as
// *NetworkError wrapping a classified cause.
func (f *HTTPFetcher) Fetch(ctx context.Context, source, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{Source: source, URL: rawURL, Err: classifyError(err, 0)}
	}

	c := f.collector.Clone()
	var (
		body       []byte
		statusCode int
		fetchErr   error
	)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			for _, value := range v {
				r.Headers.Add(k, value)
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	start := time.Now()
	f.metrics.IncFetch(source, "http")
	visitErr := c.Visit(rawURL)
	f.metrics.ObserveFetch("http", time.Since(start))

	if fetchErr == nil {
		fetchErr = visitErr
	}
	if fetchErr == nil && statusCode >= http.StatusBadRequest {
		fetchErr = fmt.Errorf("http status %d", statusCode)
	}
	if fetchErr != nil {
		classified := classifyError(fetchErr, statusCode)
		category := ErrorType(classified)
		f.metrics.IncError(category)
		slog.Warn("fetch failed",
			slog.String("source", source),
			slog.String("url", rawURL),
			slog.String("category", category),
			slog.Any("error", fetchErr),
		)
		return nil, &NetworkError{Source: source, URL: rawURL, Err: classified}
	}

	slog.Debug("fetched page",
		slog.String("source", source),
		slog.Int("status", statusCode),
		slog.Int("bytes", len(body)),
	)
	return body, nil
}

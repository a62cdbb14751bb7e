// Package scraper extracts product candidates from configured storefronts,
// fetching pages over plain HTTP or through a headless browser.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
)

// Limiter gates requests per source key.
type Limiter interface {
	AwaitSlot(ctx context.Context, key string, interval time.Duration) error
}

// SiteExtractor pulls candidates from one storefront's search page using the
// site's configured selectors.
type SiteExtractor struct {
	fetcher  Fetcher
	renderer Renderer
	limiter  Limiter
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSiteExtractor wires an extractor. renderer may be nil, in which case
// sites that require rendering are fetched as static HTML.
func NewSiteExtractor(fetcher Fetcher, renderer Renderer, limiter Limiter, m *metrics.Metrics) *SiteExtractor {
	return &SiteExtractor{
		fetcher:  fetcher,
		renderer: renderer,
		limiter:  limiter,
		metrics:  m,
		now:      time.Now,
	}
}

// SearchURL substitutes the escaped query into the site's template.
func SearchURL(site models.Site, query string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(query)), "+", "%20")
	return strings.ReplaceAll(site.SearchURL, config.QueryPlaceholder, escaped)
}

// Extract returns at most maxResults candidates from site for query. A fetch
// that cannot complete is reported as *NetworkError; a page without matching
// fragments is not an error.
func (e *SiteExtractor) Extract(ctx context.Context, site models.Site, query string, maxResults int) ([]models.Product, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	target := SearchURL(site, query)

	if err := e.limiter.AwaitSlot(ctx, site.Name, site.RateInterval()); err != nil {
		return nil, &NetworkError{Source: site.Name, URL: target, Err: classifyError(err, 0)}
	}

	markup, err := e.load(ctx, site, target)
	if err != nil {
		return nil, err
	}

	products, err := e.parse(markup, site, maxResults)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", site.Name, err)
	}
	e.metrics.AddCandidates(site.Name, len(products))
	slog.Debug("site extracted",
		slog.String("source", site.Name),
		slog.Int("candidates", len(products)),
	)
	return products, nil
}

func (e *SiteExtractor) load(ctx context.Context, site models.Site, target string) ([]byte, error) {
	if site.RequiresRender && e.renderer != nil {
		e.metrics.IncFetch(site.Name, "render")
		html, err := e.renderer.Render(ctx, target, site.Selectors.Container)
		if err != nil {
			classified := classifyError(err, 0)
			e.metrics.IncError(ErrorType(classified))
			return nil, &NetworkError{Source: site.Name, URL: target, Err: classified}
		}
		return []byte(html), nil
	}
	return e.fetcher.Fetch(ctx, site.Name, target)
}

func (e *SiteExtractor) parse(markup []byte, site models.Site, maxResults int) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, err
	}

	sel := site.Selectors
	limit := 2 * maxResults
	now := e.now()
	var products []models.Product

	doc.Find(sel.Container).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		p := models.Product{
			Name:         parser.CleanName(textOf(s, sel.Name)),
			Price:        parser.CleanPrice(textOf(s, sel.Price)),
			Currency:     site.Currency,
			Link:         linkOf(s, sel.Link, site.BaseURL),
			Source:       site.Name,
			Availability: parser.CollapseSpace(textOf(s, sel.Availability)),
			Rating:       parser.NormalizeRating(textOf(s, sel.Rating)),
			ImageURL:     imageOf(s, sel.Image, site.BaseURL),
			Seller:       parser.CollapseSpace(textOf(s, sel.Seller)),
			Shipping:     parser.CollapseSpace(textOf(s, sel.Shipping)),
			ExtractedAt:  now,
		}
		if err := parser.ValidateProduct(&p); err != nil {
			slog.Debug("fragment rejected",
				slog.String("source", site.Name),
				slog.Int("index", i),
				slog.Any("error", err),
			)
			return true
		}
		if p.Availability == "" {
			p.Availability = parser.UnknownAvailability
		}
		products = append(products, p)
		return true
	})

	if len(products) > maxResults {
		products = products[:maxResults]
	}
	return products, nil
}

// textOf returns the trimmed text of the first match of selector inside s,
// falling back to its aria-label. An empty selector yields "".
func textOf(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	first := s.Find(selector).First()
	if text := strings.TrimSpace(first.Text()); text != "" {
		return text
	}
	label, _ := first.Attr("aria-label")
	return strings.TrimSpace(label)
}

func linkOf(s *goquery.Selection, selector, baseURL string) string {
	if selector == "" {
		return ""
	}
	href, _ := s.Find(selector).First().Attr("href")
	return parser.ResolveLink(baseURL, href)
}

func imageOf(s *goquery.Selection, selector, baseURL string) string {
	if selector == "" {
		return ""
	}
	img := s.Find(selector).First()
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if src, ok := img.Attr(attr); ok && strings.TrimSpace(src) != "" {
			return parser.ResolveImage(baseURL, src)
		}
	}
	return ""
}

package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/aluiziolira/go-price-scout/models"
)

// Labels under which the search engine is listed in the country catalogue.
const (
	SourceShopping = "Google Shopping"
	SourceWeb      = "Global E-commerce Sites"
)

// fallbackCountry supplies the storefronts used for countries without their
// own.
const fallbackCountry = "US"

type collection struct {
	products []models.Product
	sources  []string
	errors   []string
	mode     string
}

func (s *Service) useEngine(mode string) bool {
	if s.engine == nil {
		return false
	}
	switch mode {
	case models.ModeSearchEngine:
		return true
	case models.ModeDirect:
		return false
	default:
		return s.cfg.SearchEngineMode
	}
}

func (s *Service) collect(ctx context.Context, req models.SearchRequest) (*collection, error) {
	if !s.useEngine(req.Mode) {
		return s.direct(ctx, req)
	}

	found, err := s.engine.Extract(ctx, req.ProductName, req.Country, 2*req.MaxResults)
	if err != nil {
		slog.Warn("search engine failed, falling back to direct sites",
			slog.String("query", req.ProductName),
			slog.Any("error", err),
		)
		col, derr := s.direct(ctx, req)
		if derr != nil {
			return nil, derr
		}
		col.errors = append([]string{"Search engine: " + err.Error()}, col.errors...)
		return col, nil
	}

	col := &collection{products: found, mode: models.ModeSearchEngine, sources: sourcesOf(found)}
	if len(found) >= s.cfg.LowResultThreshold {
		return col, nil
	}

	slog.Info("search engine under threshold, supplementing with direct sites",
		slog.Int("candidates", len(found)),
		slog.Int("threshold", s.cfg.LowResultThreshold),
	)
	supplement, err := s.direct(ctx, req)
	if err != nil {
		slog.Warn("direct supplement unavailable", slog.Any("error", err))
		col.errors = append(col.errors, "Direct sites: "+err.Error())
		return col, nil
	}

	links := make(map[string]struct{}, len(col.products))
	for _, p := range col.products {
		links[p.Link] = struct{}{}
	}
	for _, p := range supplement.products {
		if _, ok := links[p.Link]; ok {
			continue
		}
		links[p.Link] = struct{}{}
		col.products = append(col.products, p)
	}
	col.sources = union(col.sources, supplement.sources)
	col.errors = append(col.errors, supplement.errors...)
	return col, nil
}

type siteResult struct {
	products []models.Product
	err      error
}

// direct extracts from the country's storefronts in batches, pausing between
// batches. A failing site is recorded and skipped.
func (s *Service) direct(ctx context.Context, req models.SearchRequest) (*collection, error) {
	sites := s.sitesFor(req.Country)
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: no sites available for %s", ErrInvalidCountry, req.Country)
	}

	perSite := int(math.Ceil(s.cfg.OversampleFactor * float64(req.MaxResults)))
	batchSize := max(s.cfg.BatchConcurrency, 1)
	results := make([]siteResult, len(sites))
	attempted := len(sites)

	for first := 0; first < len(sites); first += batchSize {
		if first > 0 {
			if err := s.sleep(ctx, s.cfg.BatchPause); err != nil {
				attempted = first
				break
			}
		}
		last := min(first+batchSize, len(sites))

		var wg sync.WaitGroup
		for i := first; i < last; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				products, err := s.sites.Extract(ctx, sites[i], req.ProductName, perSite)
				results[i] = siteResult{products: products, err: err}
			}(i)
		}
		wg.Wait()
	}

	col := &collection{mode: models.ModeDirect}
	for i, site := range sites[:attempted] {
		r := results[i]
		if r.err != nil {
			slog.Warn("site skipped",
				slog.String("source", site.Name),
				slog.Any("error", r.err),
			)
			col.errors = append(col.errors, fmt.Sprintf("%s: %v", site.Name, r.err))
			continue
		}
		if len(r.products) == 0 {
			continue
		}
		col.products = append(col.products, r.products...)
		col.sources = union(col.sources, []string{site.Name})
	}
	if attempted < len(sites) {
		col.errors = append(col.errors, fmt.Sprintf("Direct sites: %d not attempted: %v", len(sites)-attempted, ctx.Err()))
	}
	return col, nil
}

// sitesFor returns the country's storefronts, or the international fallback
// when it has none.
func (s *Service) sitesFor(country string) []models.Site {
	if sites := s.registry.Sites(country); len(sites) > 0 {
		return sites
	}
	return s.internationalSites()
}

// internationalSites relabels the fallback country's Amazon and eBay entries.
func (s *Service) internationalSites() []models.Site {
	var out []models.Site
	for _, site := range s.registry.Sites(fallbackCountry) {
		lower := strings.ToLower(site.Name)
		if !strings.Contains(lower, "amazon") && !strings.Contains(lower, "ebay") {
			continue
		}
		if strings.Contains(site.Name, fallbackCountry) {
			site.Name = strings.Replace(site.Name, fallbackCountry, "International", 1)
		} else {
			site.Name += " International"
		}
		out = append(out, site)
	}
	return out
}

// sourcesOf lists the distinct source names of products in first-seen order.
func sourcesOf(products []models.Product) []string {
	var names []string
	for _, p := range products {
		if p.Source != "" {
			names = append(names, p.Source)
		}
	}
	return union(nil, names)
}

// union appends the names in b missing from a, keeping order.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		a = append(a, v)
	}
	return a
}

package pipeline

import (
	"strings"

	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
)

// Dedupe drops repeated candidates, keeping the first occurrence. Two
// candidates are the same when their lower-cased name, raw price and source
// all match.
func Dedupe(products []models.Product) []models.Product {
	if len(products) == 0 {
		return products
	}
	seen := make(map[string]struct{}, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		key := dedupeKey(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func dedupeKey(p models.Product) string {
	return strings.ToLower(p.Name) + "\x00" + p.Price + "\x00" + p.Source
}

// FilterByPrice keeps candidates whose parsed price lies inside r, bounds
// inclusive. Candidates without a readable price are always kept.
func FilterByPrice(products []models.Product, r *models.PriceRange) []models.Product {
	if r == nil || (r.Min == nil && r.Max == nil) {
		return products
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		price, ok := parser.ParsePrice(p.Price)
		if !ok {
			out = append(out, p)
			continue
		}
		if r.Min != nil && price < *r.Min {
			continue
		}
		if r.Max != nil && price > *r.Max {
			continue
		}
		out = append(out, p)
	}
	return out
}

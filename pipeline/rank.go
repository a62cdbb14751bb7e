package pipeline

import (
	"sort"

	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
)

// Confidence of the local ranking, which only knows about prices.
const (
	FallbackConfidence        = 60
	FallbackConfidenceNoPrice = 30
)

type pricedProduct struct {
	product models.Product
	price   float64
}

// FallbackRank orders products by ascending parsed price. Products without a
// readable price keep their relative order after the priced ones.
func FallbackRank(products []models.Product) ([]models.Product, *models.Insights, int) {
	var priced []pricedProduct
	var leftover []models.Product
	for _, p := range products {
		if v, ok := parser.ParsePrice(p.Price); ok {
			priced = append(priced, pricedProduct{product: p, price: v})
		} else {
			leftover = append(leftover, p)
		}
	}
	sort.SliceStable(priced, func(i, j int) bool { return priced[i].price < priced[j].price })

	ranked := make([]models.Product, 0, len(products))
	for _, pp := range priced {
		ranked = append(ranked, pp.product)
	}
	ranked = append(ranked, leftover...)

	insights := priceInsights(products)
	if len(priced) > 0 {
		insights.BestValue = productPtr(priced[0].product)
		insights.PremiumOption = productPtr(priced[len(priced)-1].product)
		insights.Recommendations = []string{"Products ranked by price (lowest first)"}
		return ranked, insights, FallbackConfidence
	}

	if len(products) > 0 {
		insights.BestValue = productPtr(products[0])
		insights.PremiumOption = productPtr(products[0])
	}
	insights.Recommendations = []string{"No valid prices found for ranking"}
	insights.Warnings = []string{"Unable to extract valid prices from products"}
	return ranked, insights, FallbackConfidenceNoPrice
}

// ApplyAnalysis orders products by the capability's ranking. Indices out of
// range or repeated are ignored and products the ranking left out follow in
// input order. ok is false when no usable index remains.
func ApplyAnalysis(products []models.Product, a *models.Analysis) (ranked []models.Product, insights *models.Insights, ok bool) {
	if a == nil {
		return nil, nil, false
	}

	used := make([]bool, len(products))
	for _, i := range a.RankedIndices {
		if i < 0 || i >= len(products) || used[i] {
			continue
		}
		used[i] = true
		ranked = append(ranked, products[i])
	}
	if len(ranked) == 0 {
		return nil, nil, false
	}
	for i, p := range products {
		if !used[i] {
			ranked = append(ranked, p)
		}
	}

	insights = priceInsights(products)
	insights.BestValue = pick(products, a.PriceInsights.BestValueIndex, ranked[0])
	insights.PremiumOption = pick(products, a.PriceInsights.PremiumOptionIndex, ranked[len(ranked)-1])
	insights.Recommendations = nonNil(a.Recommendations)
	insights.Warnings = a.Warnings
	return ranked, insights, true
}

// priceInsights computes the price bounds and mean over readable prices.
func priceInsights(products []models.Product) *models.Insights {
	insights := &models.Insights{}
	var sum float64
	n := 0
	for _, p := range products {
		v, ok := parser.ParsePrice(p.Price)
		if !ok {
			continue
		}
		if n == 0 || v < insights.PriceRange.Min {
			insights.PriceRange.Min = v
		}
		if n == 0 || v > insights.PriceRange.Max {
			insights.PriceRange.Max = v
		}
		sum += v
		n++
	}
	if n > 0 {
		insights.AveragePrice = sum / float64(n)
	}
	return insights
}

func pick(products []models.Product, i int, fallback models.Product) *models.Product {
	if i >= 0 && i < len(products) {
		return productPtr(products[i])
	}
	return productPtr(fallback)
}

func productPtr(p models.Product) *models.Product {
	return &p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-price-scout/models"
)

func relevancePrompt(query string, products []models.Product) string {
	var b strings.Builder
	b.WriteString("You match e-commerce listings to a shopper's search.\n\n")
	fmt.Fprintf(&b, "Search query: %q\n\nListings:\n", query)
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s | %s | %s %s | %s\n", i, p.Name, p.Source, p.Price, p.Currency, p.Link)
	}
	b.WriteString(`
Keep a listing when it is the searched product or a close variant (model
suffix, colour, capacity). Drop other product categories and accessories
unless the query asks for them. "iPhone 16" matches "iPhone 16 Pro" but not
"iPhone 15".

Reply with ONLY a JSON array of the 0-based indices to keep, for example [0, 2, 4].
`)
	return b.String()
}

func enhancePrompt(products []models.Product) (string, error) {
	payload, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You clean e-commerce product records.\n\nRecords:\n")
	b.Write(payload)
	b.WriteString(`

Standardise each record: tidy product names (stray symbols, capitalisation),
normalise price text, standardise availability wording and seller names.
Do not invent values and do not change links.

Reply with ONLY a JSON array holding the same number of records, in the same
order and with the same field names.
`)
	return b.String(), nil
}

func analysisPrompt(query string, products []models.Product, prefs *models.Preferences) string {
	prioritizePrice, prioritizeRating := true, false
	preferred, avoided := "None", "None"
	if prefs != nil {
		prioritizePrice, prioritizeRating = prefs.PrioritizePrice, prefs.PrioritizeRating
		if len(prefs.PreferredSellers) > 0 {
			preferred = strings.Join(prefs.PreferredSellers, ", ")
		}
		if len(prefs.AvoidSellers) > 0 {
			avoided = strings.Join(prefs.AvoidSellers, ", ")
		}
	}

	var b strings.Builder
	b.WriteString("You compare prices across online stores.\n\n")
	fmt.Fprintf(&b, "Search query: %q\n\n", query)
	fmt.Fprintf(&b, "Preferences:\n- prioritise price: %t\n- prioritise rating: %t\n- preferred sellers: %s\n- avoid sellers: %s\n\n",
		prioritizePrice, prioritizeRating, preferred, avoided)

	b.WriteString("Listings:\n")
	for i, p := range products {
		rating := "N/A"
		if p.Rating != nil {
			rating = fmt.Sprintf("%.1f", *p.Rating)
		}
		seller := p.Seller
		if seller == "" {
			seller = "N/A"
		}
		fmt.Fprintf(&b, "%d. %s\n   store: %s\n   price: %s %s\n   rating: %s\n   availability: %s\n   seller: %s\n   link: %s\n",
			i, p.Name, p.Source, p.Price, p.Currency, rating, p.Availability, seller, p.Link)
	}

	b.WriteString(`
Rank the listings from best to worst value given the preferences, compute
price statistics, pick the best value and the premium option, and give a
confidence score from 0 to 100.

Reply with ONLY this JSON object:
{
  "rankedIndices": [0-based indices, best first],
  "priceInsights": {
    "minPrice": number,
    "maxPrice": number,
    "averagePrice": number,
    "bestValueIndex": number,
    "premiumOptionIndex": number
  },
  "recommendations": [strings],
  "warnings": [strings],
  "confidence": number
}
`)
	return b.String()
}

// Package models defines data structures shared by the extractors, the
// pipeline and the aggregator.
package models

import "time"

// Product is one extracted candidate listing. Name, Price and Link are
// mandatory; extractors never emit a Product without them.
type Product struct {
	Name         string    `csv:"name" json:"productName"`
	Price        string    `csv:"price" json:"price"`
	Currency     string    `csv:"currency" json:"currency"`
	Link         string    `csv:"link" json:"link"`
	Source       string    `csv:"source" json:"websiteName"`
	Availability string    `csv:"availability" json:"availability"`
	Rating       *float64  `csv:"rating" json:"rating,omitempty"`
	ImageURL     string    `csv:"image_url" json:"imageUrl,omitempty"`
	Seller       string    `csv:"seller" json:"seller,omitempty"`
	Shipping     string    `csv:"shipping" json:"shipping,omitempty"`
	ExtractedAt  time.Time `csv:"extracted_at" json:"lastUpdated"`
}

// Site describes one scrapeable storefront. Sites are loaded once from the
// registry and never mutated.
type Site struct {
	Name           string    `yaml:"name" json:"name"`
	BaseURL        string    `yaml:"base_url" json:"baseUrl"`
	SearchURL      string    `yaml:"search_url" json:"searchUrl"`
	Currency       string    `yaml:"currency" json:"currency"`
	RequiresRender bool      `yaml:"requires_js" json:"requiresJs"`
	RateLimitMs    int       `yaml:"rate_limit_ms" json:"rateLimitMs"`
	Selectors      Selectors `yaml:"selectors" json:"selectors"`
}

// Selectors holds the CSS selectors used to pull fields from a result page.
type Selectors struct {
	Container    string `yaml:"container" json:"productContainer"`
	Name         string `yaml:"name" json:"productName"`
	Price        string `yaml:"price" json:"price"`
	Link         string `yaml:"link" json:"link"`
	Availability string `yaml:"availability,omitempty" json:"availability,omitempty"`
	Rating       string `yaml:"rating,omitempty" json:"rating,omitempty"`
	Image        string `yaml:"image,omitempty" json:"image,omitempty"`
	Seller       string `yaml:"seller,omitempty" json:"seller,omitempty"`
	Shipping     string `yaml:"shipping,omitempty" json:"shipping,omitempty"`
}

// RateInterval returns the configured minimum gap between two requests to the
// site, or zero when unset.
func (s Site) RateInterval() time.Duration {
	if s.RateLimitMs <= 0 {
		return 0
	}
	return time.Duration(s.RateLimitMs) * time.Millisecond
}

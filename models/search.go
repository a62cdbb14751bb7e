package models

import "time"

// Search modes accepted on a request. An empty mode defers to the service
// configuration.
const (
	ModeSearchEngine = "search_engine"
	ModeDirect       = "direct"
)

// PriceRange bounds results by numeric price. Nil bounds are open.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Preferences steer the ranking capability.
type Preferences struct {
	PrioritizePrice  bool     `json:"prioritizePrice"`
	PrioritizeRating bool     `json:"prioritizeRating"`
	PreferredSellers []string `json:"preferredSellers,omitempty"`
	AvoidSellers     []string `json:"avoidSellers,omitempty"`
}

// SearchRequest is the input of one aggregation.
type SearchRequest struct {
	ProductName string       `json:"productName"`
	Country     string       `json:"country"`
	MaxResults  int          `json:"maxResults"`
	PriceRange  *PriceRange  `json:"priceRange,omitempty"`
	Mode        string       `json:"mode,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// Insights summarises the ranked result set.
type Insights struct {
	PriceRange      PriceBounds `json:"priceRange"`
	AveragePrice    float64     `json:"averagePrice"`
	BestValue       *Product    `json:"bestValue,omitempty"`
	PremiumOption   *Product    `json:"premiumOption,omitempty"`
	Recommendations []string    `json:"recommendations"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// PriceBounds is the lowest and highest parsed price of a result set.
type PriceBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AggregationResult is the response envelope of one aggregation.
type AggregationResult struct {
	Products   []Product     `json:"products"`
	Query      string        `json:"searchQuery"`
	Country    string        `json:"country"`
	Total      int           `json:"totalResults"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMs  int64         `json:"searchTime"`
	Sources    []string      `json:"websites"`
	Insights   *Insights     `json:"insights,omitempty"`
	Confidence *int          `json:"confidence,omitempty"`
	Mode       string        `json:"searchMode"`
	Errors     []string      `json:"errors,omitempty"`
	Degraded   []string      `json:"degraded,omitempty"`
}

// Analysis is the ranking capability's verdict over a candidate list. Indices
// refer to positions in the list that was analysed and are not trusted until
// checked against its bounds.
type Analysis struct {
	RankedIndices   []int         `json:"rankedIndices"`
	PriceInsights   PriceInsights `json:"priceInsights"`
	Recommendations []string      `json:"recommendations"`
	Warnings        []string      `json:"warnings"`
	Confidence      int           `json:"confidence"`
}

// PriceInsights are the price statistics reported with an Analysis. The pick
// indices are -1 when the capability did not name one.
type PriceInsights struct {
	MinPrice           float64 `json:"minPrice"`
	MaxPrice           float64 `json:"maxPrice"`
	AveragePrice       float64 `json:"averagePrice"`
	BestValueIndex     int     `json:"bestValueIndex"`
	PremiumOptionIndex int     `json:"premiumOptionIndex"`
}

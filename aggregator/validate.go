package aggregator

import (
	"strings"

	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/models"
)

// Bounds on SearchRequest.MaxResults. Zero means DefaultResults.
const (
	MinResults     = 1
	MaxResults     = 50
	DefaultResults = 10
)

// Normalize validates req and returns it with the product name trimmed, the
// country upper-cased and the result count defaulted.
func Normalize(req models.SearchRequest) (models.SearchRequest, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	if req.ProductName == "" {
		return req, ErrEmptyProductName
	}

	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	if !isCountryCode(req.Country) {
		return req, ErrMalformedCountry
	}
	if !config.IsSupportedCountry(req.Country) {
		return req, ErrUnsupportedCountry
	}

	if req.MaxResults == 0 {
		req.MaxResults = DefaultResults
	}
	if req.MaxResults < MinResults || req.MaxResults > MaxResults {
		return req, ErrMaxResultsOutOfRange
	}

	if r := req.PriceRange; r != nil {
		if (r.Min != nil && *r.Min < 0) || (r.Max != nil && *r.Max < 0) {
			return req, ErrInvalidPriceRange
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return req, ErrInvalidPriceRange
		}
	}

	switch req.Mode {
	case "", models.ModeSearchEngine, models.ModeDirect:
	default:
		return req, ErrUnknownMode
	}
	return req, nil
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

package aggregator

import (
	"errors"
	"fmt"
)

// Terminal failures a caller can receive from Search.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidCountry = errors.New("invalid country")
	ErrNoResultsFound = errors.New("no results found")
)

// Validation failures. Each matches ErrInvalidRequest or ErrInvalidCountry
// under errors.Is.
var (
	ErrEmptyProductName     = fmt.Errorf("%w: product name is required", ErrInvalidRequest)
	ErrMalformedCountry     = fmt.Errorf("%w: country must be a 2-letter code", ErrInvalidRequest)
	ErrMaxResultsOutOfRange = fmt.Errorf("%w: max results must be between %d and %d", ErrInvalidRequest, MinResults, MaxResults)
	ErrInvalidPriceRange    = fmt.Errorf("%w: price range bounds must be non-negative and min <= max", ErrInvalidRequest)
	ErrUnknownMode          = fmt.Errorf("%w: unknown search mode", ErrInvalidRequest)
	ErrUnsupportedCountry   = fmt.Errorf("%w: country is not supported", ErrInvalidCountry)
)

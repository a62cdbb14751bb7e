package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
)

// DefaultConfidence is assumed when the model omits a confidence score.
const DefaultConfidence = 70

var (
	indexArrayRe = regexp.MustCompile(`\[[-\d,\s]*\]`)
	arrayRe      = regexp.MustCompile(`(?s)\[.*\]`)
	objectRe     = regexp.MustCompile(`(?s)\{.*\}`)
)

// Client runs the relevance, enhancement and analysis operations through a
// Completer.
type Client struct {
	completer Completer
	timeout   time.Duration
}

// NewClient wraps completer. A positive timeout bounds every call.
func NewClient(completer Completer, timeout time.Duration) *Client {
	return &Client{completer: completer, timeout: timeout}
}

func (c *Client) complete(ctx context.Context, op, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", &CapabilityError{Op: op, Err: err}
	}
	slog.Debug("model call completed",
		slog.String("op", op),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("reply_bytes", len(text)),
	)
	return text, nil
}

// FilterRelevant returns the products the model judges on-topic for query,
// in input order. Out-of-range indices in the reply are ignored; a reply
// without an index array is a *CapabilityError.
func (c *Client) FilterRelevant(ctx context.Context, query string, products []models.Product) ([]models.Product, error) {
	if len(products) == 0 {
		return nil, nil
	}

	text, err := c.complete(ctx, "relevance", relevancePrompt(query, products))
	if err != nil {
		return nil, err
	}

	match := indexArrayRe.FindString(text)
	if match == "" {
		return nil, &CapabilityError{Op: "relevance", Err: errors.New("reply has no index array")}
	}
	var indices []int
	if err := json.Unmarshal([]byte(match), &indices); err != nil {
		return nil, &CapabilityError{Op: "relevance", Err: fmt.Errorf("decode indices: %w", err)}
	}

	keep := make([]bool, len(products))
	for _, i := range indices {
		if i >= 0 && i < len(products) {
			keep[i] = true
		}
	}
	relevant := make([]models.Product, 0, len(indices))
	for i, p := range products {
		if keep[i] {
			relevant = append(relevant, p)
		}
	}
	return relevant, nil
}

// enhancedRecord is what the model may change on a product. Link, source and
// extraction time always come from the original.
type enhancedRecord struct {
	Name         string      `json:"productName"`
	Price        flexString  `json:"price"`
	Currency     string      `json:"currency"`
	Availability string      `json:"availability"`
	Rating       *flexNumber `json:"rating"`
	Seller       string      `json:"seller"`
	Shipping     string      `json:"shipping"`
}

// Enhance returns products with fields standardised by the model. The reply
// must hold one record per input with a name and price each; anything else
// is a *CapabilityError and the caller keeps its originals.
func (c *Client) Enhance(ctx context.Context, products []models.Product) ([]models.Product, error) {
	if len(products) == 0 {
		return nil, nil
	}

	prompt, err := enhancePrompt(products)
	if err != nil {
		return nil, &CapabilityError{Op: "enhance", Err: err}
	}
	text, err := c.complete(ctx, "enhance", prompt)
	if err != nil {
		return nil, err
	}

	match := arrayRe.FindString(stripFences(text))
	if match == "" {
		return nil, &CapabilityError{Op: "enhance", Err: errors.New("reply has no array")}
	}
	var records []enhancedRecord
	if err := json.Unmarshal([]byte(match), &records); err != nil {
		return nil, &CapabilityError{Op: "enhance", Err: fmt.Errorf("decode records: %w", err)}
	}
	if len(records) != len(products) {
		return nil, &CapabilityError{
			Op:  "enhance",
			Err: fmt.Errorf("reply has %d records, want %d", len(records), len(products)),
		}
	}

	enhanced := make([]models.Product, len(products))
	for i, r := range records {
		p := products[i]
		name := parser.Truncate(parser.CollapseSpace(r.Name), 200)
		price := parser.CleanPrice(string(r.Price))
		if name == "" || price == "" {
			return nil, &CapabilityError{Op: "enhance", Err: fmt.Errorf("record %d lost its name or price", i)}
		}
		p.Name, p.Price = name, price
		if v := strings.TrimSpace(r.Currency); v != "" {
			p.Currency = v
		}
		if v := parser.CollapseSpace(r.Availability); v != "" {
			p.Availability = v
		}
		if v := parser.CollapseSpace(r.Seller); v != "" {
			p.Seller = v
		}
		if v := parser.CollapseSpace(r.Shipping); v != "" {
			p.Shipping = v
		}
		if r.Rating != nil && *r.Rating >= 0 && *r.Rating <= 5 {
			rating := float64(*r.Rating)
			p.Rating = &rating
		}
		enhanced[i] = p
	}
	return enhanced, nil
}

type rawAnalysis struct {
	RankedIndices []int `json:"rankedIndices"`
	PriceInsights struct {
		MinPrice           float64 `json:"minPrice"`
		MaxPrice           float64 `json:"maxPrice"`
		AveragePrice       float64 `json:"averagePrice"`
		BestValueIndex     *int    `json:"bestValueIndex"`
		PremiumOptionIndex *int    `json:"premiumOptionIndex"`
	} `json:"priceInsights"`
	Recommendations []string `json:"recommendations"`
	Warnings        []string `json:"warnings"`
	Confidence      *float64 `json:"confidence"`
}

// Analyze asks the model to rank products for query. Indices in the result
// are as the model sent them; bounds checking is left to the caller.
// Confidence defaults to DefaultConfidence and is clamped to 0-100.
func (c *Client) Analyze(ctx context.Context, query string, products []models.Product, prefs *models.Preferences) (*models.Analysis, error) {
	text, err := c.complete(ctx, "analyze", analysisPrompt(query, products, prefs))
	if err != nil {
		return nil, err
	}

	match := objectRe.FindString(stripFences(text))
	if match == "" {
		return nil, &CapabilityError{Op: "analyze", Err: errors.New("reply has no object")}
	}
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, &CapabilityError{Op: "analyze", Err: fmt.Errorf("decode analysis: %w", err)}
	}
	if raw.RankedIndices == nil {
		return nil, &CapabilityError{Op: "analyze", Err: errors.New("reply has no rankedIndices")}
	}

	confidence := float64(DefaultConfidence)
	if raw.Confidence != nil && *raw.Confidence != 0 {
		confidence = *raw.Confidence
	}
	confidence = math.Min(math.Max(confidence, 0), 100)

	analysis := &models.Analysis{
		RankedIndices: raw.RankedIndices,
		PriceInsights: models.PriceInsights{
			MinPrice:           raw.PriceInsights.MinPrice,
			MaxPrice:           raw.PriceInsights.MaxPrice,
			AveragePrice:       raw.PriceInsights.AveragePrice,
			BestValueIndex:     indexOrNone(raw.PriceInsights.BestValueIndex),
			PremiumOptionIndex: indexOrNone(raw.PriceInsights.PremiumOptionIndex),
		},
		Recommendations: raw.Recommendations,
		Warnings:        raw.Warnings,
		Confidence:      int(math.Round(confidence)),
	}
	return analysis, nil
}

func indexOrNone(i *int) int {
	if i == nil {
		return -1
	}
	return *i
}

// stripFences removes a surrounding markdown code fence, which models add
// despite being asked for bare JSON.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexNumber accepts a JSON number or a numeric string; null leaves it unset.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexNumber(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
)

func product(name, price, source string) models.Product {
	return models.Product{Name: name, Price: price, Source: source, Link: "https://shop.test/" + name}
}

func names(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func equalNames(t *testing.T, got []models.Product, want ...string) {
	t.Helper()
	gotNames := names(got)
	if len(gotNames) != len(want) {
		t.Fatalf("names = %v, want %v", gotNames, want)
	}
	for i := range want {
		if gotNames[i] != want[i] {
			t.Fatalf("names = %v, want %v", gotNames, want)
		}
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestDedupe(t *testing.T) {
	in := []models.Product{
		product("Pixel 9", "$599", "A"),
		product("PIXEL 9", "$599", "A"),
		product("Pixel 9", "$599", "B"),
		product("Pixel 9", "$579", "A"),
		product("pixel 9", "$599", "A"),
	}

	once := Dedupe(in)
	equalNames(t, once, "Pixel 9", "Pixel 9", "Pixel 9")
	if once[1].Source != "B" || once[2].Price != "$579" {
		t.Fatalf("first occurrence must win in order: %+v", once)
	}

	twice := Dedupe(once)
	if len(twice) != len(once) {
		t.Fatalf("dedupe not idempotent: %d then %d", len(once), len(twice))
	}
	if len(Dedupe(nil)) != 0 {
		t.Fatal("dedupe of nil should be empty")
	}
}

func TestFilterByPrice(t *testing.T) {
	in := []models.Product{
		product("cheap", "$50.00", "A"),
		product("mid", "$150.00", "A"),
		product("dear", "$1,500.00", "A"),
		product("unknown", "See price in cart", "A"),
	}

	tests := []struct {
		name string
		r    *models.PriceRange
		want []string
	}{
		{"no range", nil, []string{"cheap", "mid", "dear", "unknown"}},
		{"empty range", &models.PriceRange{}, []string{"cheap", "mid", "dear", "unknown"}},
		{"min only", &models.PriceRange{Min: floatPtr(100)}, []string{"mid", "dear", "unknown"}},
		{"max only", &models.PriceRange{Max: floatPtr(150)}, []string{"cheap", "mid", "unknown"}},
		{"both inclusive", &models.PriceRange{Min: floatPtr(50), Max: floatPtr(150)}, []string{"cheap", "mid", "unknown"}},
		{"nothing priced fits", &models.PriceRange{Min: floatPtr(5000)}, []string{"unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equalNames(t, FilterByPrice(in, tt.r), tt.want...)
		})
	}
}

func TestFallbackRank(t *testing.T) {
	in := []models.Product{
		product("b", "$300.00", "A"),
		product("none", "Price available on site", "A"),
		product("a", "$100.00", "A"),
		product("c", "€200,00", "A"),
	}

	ranked, insights, confidence := FallbackRank(in)
	equalNames(t, ranked, "a", "c", "b", "none")
	if confidence != FallbackConfidence {
		t.Fatalf("confidence = %d", confidence)
	}
	if insights.PriceRange.Min != 100 || insights.PriceRange.Max != 300 || insights.AveragePrice != 200 {
		t.Fatalf("insights = %+v", insights)
	}
	if insights.BestValue.Name != "a" || insights.PremiumOption.Name != "b" {
		t.Fatalf("picks = %s / %s", insights.BestValue.Name, insights.PremiumOption.Name)
	}
	if len(insights.Warnings) != 0 {
		t.Fatalf("warnings = %v", insights.Warnings)
	}
}

func TestFallbackRankWithoutPrices(t *testing.T) {
	in := []models.Product{
		product("x", "call us", "A"),
		product("y", "Price available on site", "A"),
	}

	ranked, insights, confidence := FallbackRank(in)
	equalNames(t, ranked, "x", "y")
	if confidence != FallbackConfidenceNoPrice {
		t.Fatalf("confidence = %d", confidence)
	}
	if len(insights.Warnings) != 1 || insights.Recommendations[0] != "No valid prices found for ranking" {
		t.Fatalf("insights = %+v", insights)
	}
}

func TestApplyAnalysis(t *testing.T) {
	in := []models.Product{
		product("a", "$100.00", "A"),
		product("b", "$200.00", "A"),
		product("c", "$300.00", "A"),
	}

	analysis := &models.Analysis{
		RankedIndices: []int{2, 9, 2, -1, 0},
		PriceInsights: models.PriceInsights{BestValueIndex: 0, PremiumOptionIndex: 42},
		Confidence:    80,
	}
	ranked, insights, ok := ApplyAnalysis(in, analysis)
	if !ok {
		t.Fatal("analysis should apply")
	}
	equalNames(t, ranked, "c", "a", "b")
	if insights.BestValue.Name != "a" {
		t.Fatalf("best = %s", insights.BestValue.Name)
	}
	// Out of range premium falls back to the last ranked product.
	if insights.PremiumOption.Name != "b" {
		t.Fatalf("premium = %s", insights.PremiumOption.Name)
	}
	if insights.Recommendations == nil {
		t.Fatal("recommendations should never be nil")
	}

	if _, _, ok := ApplyAnalysis(in, &models.Analysis{RankedIndices: []int{7, -3}}); ok {
		t.Fatal("analysis with no valid index should not apply")
	}
}

type failingCapability struct{}

func (failingCapability) FilterRelevant(context.Context, string, []models.Product) ([]models.Product, error) {
	return nil, errors.New("relevance down")
}

func (failingCapability) Enhance(context.Context, []models.Product) ([]models.Product, error) {
	return nil, errors.New("enhance down")
}

func (failingCapability) Analyze(context.Context, string, []models.Product, *models.Preferences) (*models.Analysis, error) {
	return nil, errors.New("analyze down")
}

type scriptedCapability struct {
	keep      []int
	rename    bool
	ranking   []int
	gotPrefs  *models.Preferences
	analyzeIn int
}

func (c *scriptedCapability) FilterRelevant(_ context.Context, _ string, in []models.Product) ([]models.Product, error) {
	var out []models.Product
	for _, i := range c.keep {
		out = append(out, in[i])
	}
	return out, nil
}

func (c *scriptedCapability) Enhance(_ context.Context, in []models.Product) ([]models.Product, error) {
	out := make([]models.Product, len(in))
	copy(out, in)
	if c.rename {
		for i := range out {
			out[i].Name = "Clean " + out[i].Name
		}
	}
	return out, nil
}

func (c *scriptedCapability) Analyze(_ context.Context, _ string, in []models.Product, prefs *models.Preferences) (*models.Analysis, error) {
	c.gotPrefs = prefs
	c.analyzeIn = len(in)
	return &models.Analysis{RankedIndices: c.ranking, Confidence: 88}, nil
}

func candidates() []models.Product {
	return []models.Product{
		product("b", "$300.00", "A"),
		product("a", "$100.00", "A"),
		product("a", "$100.00", "A"),
		product("none", "Price available on site", "B"),
		product("c", "$200.00", "B"),
	}
}

func TestPipelineRunDegradesEveryStage(t *testing.T) {
	m := metrics.New()
	for _, capability := range []Capability{nil, failingCapability{}} {
		out := New(capability, m).Run(context.Background(), Request{Query: "phone", MaxResults: 3}, candidates())

		equalNames(t, out.Products, "a", "c", "b")
		if out.Confidence == nil || *out.Confidence > FallbackConfidence {
			t.Fatalf("confidence = %v, want <= %d", out.Confidence, FallbackConfidence)
		}
		want := []string{StageRelevance, StageEnhance, StageRank}
		if len(out.Degraded) != len(want) {
			t.Fatalf("degraded = %v, want %v", out.Degraded, want)
		}
		for i := range want {
			if out.Degraded[i] != want[i] {
				t.Fatalf("degraded = %v, want %v", out.Degraded, want)
			}
		}
	}
}

func TestPipelineRunWithCapability(t *testing.T) {
	capability := &scriptedCapability{keep: []int{0, 1, 3}, rename: true, ranking: []int{1, 0}}
	prefs := &models.Preferences{PrioritizeRating: true}
	req := Request{
		Query:       "phone",
		MaxResults:  10,
		PriceRange:  &models.PriceRange{Max: floatPtr(250)},
		Preferences: prefs,
	}

	out := New(capability, nil).Run(context.Background(), req, candidates())

	// Dedupe leaves b, a, none, c; relevance keeps b, a, c; the price filter
	// drops b; the ranking swaps the remaining two.
	equalNames(t, out.Products, "Clean c", "Clean a")
	if len(out.Degraded) != 0 {
		t.Fatalf("degraded = %v", out.Degraded)
	}
	if out.Confidence == nil || *out.Confidence != 88 {
		t.Fatalf("confidence = %v", out.Confidence)
	}
	if capability.gotPrefs != prefs || capability.analyzeIn != 2 {
		t.Fatalf("analyze saw prefs=%v n=%d", capability.gotPrefs, capability.analyzeIn)
	}
}

func TestPipelineRunEmptyRelevanceKeepsAll(t *testing.T) {
	capability := &scriptedCapability{keep: nil, ranking: []int{0, 1, 2, 3}}
	out := New(capability, nil).Run(context.Background(), Request{Query: "phone"}, candidates())

	if len(out.Products) != 4 {
		t.Fatalf("products = %d, want all 4 deduped candidates", len(out.Products))
	}
	if len(out.Degraded) != 1 || out.Degraded[0] != StageRelevance {
		t.Fatalf("degraded = %v", out.Degraded)
	}
	var relevance StageResult
	for _, s := range out.Stages {
		if s.Stage == StageRelevance {
			relevance = s
		}
	}
	if !errors.Is(relevance.Err, ErrEmptySelection) {
		t.Fatalf("relevance err = %v", relevance.Err)
	}
}

func TestPipelineRunEverythingFilteredOut(t *testing.T) {
	in := []models.Product{product("a", "$100.00", "A")}
	out := New(nil, nil).Run(context.Background(), Request{PriceRange: &models.PriceRange{Min: floatPtr(500)}}, in)
	if len(out.Products) != 0 || out.Insights != nil || out.Confidence != nil {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRunStepsPassesThroughOnFailure(t *testing.T) {
	in := []models.Product{product("a", "$1", "A"), product("b", "$2", "A")}
	drop := Step{Name: "drop", Run: func(_ context.Context, p []models.Product) ([]models.Product, error) {
		return p[:1], nil
	}}
	broken := Step{Name: "broken", Run: func(context.Context, []models.Product) ([]models.Product, error) {
		return nil, errors.New("boom")
	}}

	out, results := RunSteps(context.Background(), in, nil, broken, drop, broken)
	equalNames(t, out, "a")
	if len(results) != 3 || !results[0].Degraded || results[1].Degraded || !results[2].Degraded {
		t.Fatalf("results = %+v", results)
	}
	if results[1].In != 2 || results[1].Out != 1 {
		t.Fatalf("drop step counts = %+v", results[1])
	}
}

// Package pipeline turns collected candidates into the final ranked list:
// dedupe, relevance, enhancement, price filter and ranking, each model-backed
// stage falling back to a pass-through when the model is unavailable.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
)

// Stage names, as reported in AggregationResult.Degraded.
const (
	StageRelevance = "relevance"
	StageEnhance   = "enhance"
	StageRank      = "rank"
)

var (
	// ErrNoCapability means no model is configured for a stage.
	ErrNoCapability = errors.New("no capability configured")
	// ErrEmptySelection means the relevance stage would have dropped every
	// candidate.
	ErrEmptySelection = errors.New("relevance kept no candidates")
)

// Capability is the external model used by the model-backed stages.
type Capability interface {
	FilterRelevant(ctx context.Context, query string, products []models.Product) ([]models.Product, error)
	Enhance(ctx context.Context, products []models.Product) ([]models.Product, error)
	Analyze(ctx context.Context, query string, products []models.Product, prefs *models.Preferences) (*models.Analysis, error)
}

// Step transforms a candidate list. A failing step leaves the list as it was.
type Step struct {
	Name string
	Run  func(ctx context.Context, products []models.Product) ([]models.Product, error)
}

// StageResult is the outcome of one step.
type StageResult struct {
	Stage    string
	In, Out  int
	Degraded bool
	Err      error
}

// RunSteps applies steps in order, passing the input through unchanged when a
// step fails.
func RunSteps(ctx context.Context, products []models.Product, m *metrics.Metrics, steps ...Step) ([]models.Product, []StageResult) {
	results := make([]StageResult, 0, len(steps))
	for _, step := range steps {
		res := StageResult{Stage: step.Name, In: len(products)}
		out, err := step.Run(ctx, products)
		if err != nil {
			res.Degraded, res.Err, res.Out = true, err, len(products)
			m.IncDegraded(step.Name)
			slog.Warn("stage degraded, passing candidates through",
				slog.String("stage", step.Name),
				slog.Int("candidates", len(products)),
				slog.Any("error", err),
			)
			results = append(results, res)
			continue
		}
		products = out
		res.Out = len(out)
		results = append(results, res)
	}
	return products, results
}

// Request carries what the pipeline needs from the search request.
type Request struct {
	Query       string
	MaxResults  int
	PriceRange  *models.PriceRange
	Preferences *models.Preferences
}

// Outcome is the ranked, truncated result of a pipeline run.
type Outcome struct {
	Products   []models.Product
	Insights   *models.Insights
	Confidence *int
	Degraded   []string
	Stages     []StageResult
}

// Pipeline runs the post-collection stages. A nil capability degrades every
// model-backed stage.
type Pipeline struct {
	capability Capability
	metrics    *metrics.Metrics
}

// New builds a pipeline. capability may be nil.
func New(capability Capability, m *metrics.Metrics) *Pipeline {
	return &Pipeline{capability: capability, metrics: m}
}

// Run dedupes, filters, enhances, ranks and truncates candidates.
func (p *Pipeline) Run(ctx context.Context, req Request, candidates []models.Product) Outcome {
	products := Dedupe(candidates)

	products, stages := RunSteps(ctx, products, p.metrics,
		p.relevanceStep(req.Query),
		p.enhanceStep(),
		Step{Name: "price_filter", Run: func(_ context.Context, in []models.Product) ([]models.Product, error) {
			return FilterByPrice(in, req.PriceRange), nil
		}},
	)

	var out Outcome
	for _, s := range stages {
		if s.Degraded {
			out.Degraded = append(out.Degraded, s.Stage)
		}
	}

	if len(products) > 0 {
		ranked, insights, confidence, rankStage := p.rank(ctx, req, products)
		stages = append(stages, rankStage)
		if rankStage.Degraded {
			out.Degraded = append(out.Degraded, StageRank)
		}
		products = ranked
		out.Insights = insights
		out.Confidence = &confidence
	}

	if req.MaxResults > 0 && len(products) > req.MaxResults {
		products = products[:req.MaxResults]
	}
	out.Products = products
	out.Stages = stages
	return out
}

func (p *Pipeline) relevanceStep(query string) Step {
	return Step{Name: StageRelevance, Run: func(ctx context.Context, in []models.Product) ([]models.Product, error) {
		if p.capability == nil {
			return nil, ErrNoCapability
		}
		out, err := p.capability.FilterRelevant(ctx, query, in)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, ErrEmptySelection
		}
		return out, nil
	}}
}

func (p *Pipeline) enhanceStep() Step {
	return Step{Name: StageEnhance, Run: func(ctx context.Context, in []models.Product) ([]models.Product, error) {
		if p.capability == nil {
			return nil, ErrNoCapability
		}
		out, err := p.capability.Enhance(ctx, in)
		if err != nil {
			return nil, err
		}
		if len(out) != len(in) {
			return nil, errors.New("enhancement changed the candidate count")
		}
		return out, nil
	}}
}

func (p *Pipeline) rank(ctx context.Context, req Request, products []models.Product) ([]models.Product, *models.Insights, int, StageResult) {
	stage := StageResult{Stage: StageRank, In: len(products), Out: len(products)}

	err := ErrNoCapability
	if p.capability != nil {
		var analysis *models.Analysis
		analysis, err = p.capability.Analyze(ctx, req.Query, products, req.Preferences)
		if err == nil {
			if ranked, insights, ok := ApplyAnalysis(products, analysis); ok {
				return ranked, insights, analysis.Confidence, stage
			}
			err = errors.New("analysis ranked no valid index")
		}
	}

	stage.Degraded, stage.Err = true, err
	p.metrics.IncDegraded(StageRank)
	slog.Warn("ranking degraded to price order", slog.Any("error", err))
	ranked, insights, confidence := FallbackRank(products)
	return ranked, insights, confidence, stage
}

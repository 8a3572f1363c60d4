package pricing

import (
	"errors"
	"fmt"

	"github.com/use-agent/harvest/models"
)

// ErrUnknownModel is wrapped by Estimate when the model has no price.
var ErrUnknownModel = errors.New("model not in price table")

// DefaultProjectionSizes are the record counts Project reports by default.
var DefaultProjectionSizes = []int{100, 1000, 100000, 1000000}

// Estimate prices usage with table:
//
//	prompt_tokens*prompt_rate + completion_tokens*completion_rate
//
// It has no side effects. A model missing from table yields a ScrapeError
// with code UNKNOWN_MODEL wrapping ErrUnknownModel; whether that is fatal is
// the caller's decision.
func Estimate(usage models.UsageStats, table Table) (models.CostEstimate, error) {
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 {
		return models.CostEstimate{}, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("negative token counts (%d prompt, %d completion)", usage.PromptTokens, usage.CompletionTokens),
			nil,
		)
	}

	rate, ok := table.Lookup(usage.Model)
	if !ok {
		return models.CostEstimate{}, models.NewScrapeError(
			models.ErrCodeUnknownModel,
			fmt.Sprintf("no price for model %q", usage.Model),
			fmt.Errorf("%w: %s", ErrUnknownModel, usage.Model),
		)
	}

	if !validRate(rate.PromptRate) || !validRate(rate.CompletionRate) {
		return models.CostEstimate{}, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("price for model %q is not a finite non-negative rate", usage.Model),
			nil,
		)
	}

	cost := float64(usage.PromptTokens)*rate.PromptRate +
		float64(usage.CompletionTokens)*rate.CompletionRate

	return models.CostEstimate{Usage: usage, EstimatedCostUSD: cost}, nil
}

// Unpriced is the zero-cost placeholder for a model without a price.
func Unpriced(usage models.UsageStats) models.CostEstimate {
	return models.CostEstimate{Usage: usage}
}

// ProjectedCost is the cost of extracting Records records at the observed
// per-record cost.
type ProjectedCost struct {
	Records int     `json:"records"`
	CostUSD float64 `json:"cost_usd"`
}

// Projection scales one run's cost to larger volumes.
type Projection struct {
	PerRecordUSD float64         `json:"per_record_usd"`
	Projected    []ProjectedCost `json:"projected"`
}

// Project divides cost over records and scales it to each of sizes
// (DefaultProjectionSizes when nil). It fails when records is not positive.
func Project(cost models.CostEstimate, records int, sizes []int) (Projection, error) {
	if records <= 0 {
		return Projection{}, fmt.Errorf("cannot project cost over %d records", records)
	}
	if sizes == nil {
		sizes = DefaultProjectionSizes
	}

	per := cost.EstimatedCostUSD / float64(records)
	p := Projection{
		PerRecordUSD: per,
		Projected:    make([]ProjectedCost, 0, len(sizes)),
	}
	for _, n := range sizes {
		p.Projected = append(p.Projected, ProjectedCost{Records: n, CostUSD: per * float64(n)})
	}
	return p, nil
}

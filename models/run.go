package models

import "encoding/json"

// UsageStats is the token consumption reported by the extraction backend.
type UsageStats struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	Model            string `json:"model"`
}

// TotalTokens returns prompt plus completion tokens.
func (u UsageStats) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// CostEstimate is derived once from UsageStats and a price table and never
// mutated afterwards.
type CostEstimate struct {
	Usage            UsageStats
	EstimatedCostUSD float64
}

// costJSON is the flat artifact shape of a CostEstimate.
type costJSON struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Model            string  `json:"model"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// RecordViolation is a backend record that was dropped because it did not
// satisfy the schema.
type RecordViolation struct {
	Index int
	Err   error
}

// Extraction is the outcome of one structured-extraction call.
type Extraction struct {
	Records []Record
	Usage   UsageStats
	Dropped []RecordViolation
}

// RunResult is the complete, immutable outcome of one pipeline run.
type RunResult struct {
	RunID       string
	Records     []Record
	Cost        CostEstimate
	WrittenPath string
}

// Artifact is the on-disk JSON shape of a RunResult.
type Artifact struct {
	Records []Record     `json:"records"`
	Cost    CostEstimate `json:"cost"`
}

// MarshalJSON flattens the usage into the cost object.
func (c CostEstimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(costJSON{
		PromptTokens:     c.Usage.PromptTokens,
		CompletionTokens: c.Usage.CompletionTokens,
		Model:            c.Usage.Model,
		EstimatedCostUSD: c.EstimatedCostUSD,
	})
}

// UnmarshalJSON reads the flat cost object.
func (c *CostEstimate) UnmarshalJSON(data []byte) error {
	var raw costJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CostEstimate{
		Usage: UsageStats{
			PromptTokens:     raw.PromptTokens,
			CompletionTokens: raw.CompletionTokens,
			Model:            raw.Model,
		},
		EstimatedCostUSD: raw.EstimatedCostUSD,
	}
	return nil
}

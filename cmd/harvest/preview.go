package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/use-agent/harvest/pipeline"
	"github.com/use-agent/harvest/pricing"
)

// printOutcome writes the first n records, the cost and the cost projected
// to larger volumes.
func printOutcome(w io.Writer, out *pipeline.Outcome, n int) error {
	shown := out.Records
	if n >= 0 && len(shown) > n {
		shown = shown[:n]
	}
	if len(shown) > 0 {
		data, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return fmt.Errorf("preview records: %w", err)
		}
		fmt.Fprintf(w, "Records (%d of %d):\n%s\n\n", len(shown), len(out.Records), data)
	}

	fmt.Fprintf(w, "Run:       %s\n", out.RunID)
	fmt.Fprintf(w, "Records:   %d", len(out.Records))
	if len(out.Dropped) > 0 {
		fmt.Fprintf(w, " (%d dropped by schema validation)", len(out.Dropped))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Saved to:  %s\n", out.WrittenPath)
	if out.SnapshotPath != "" {
		fmt.Fprintf(w, "Snapshot:  %s\n", out.SnapshotPath)
	}

	u := out.Cost.Usage
	fmt.Fprintf(w, "Model:     %s\n", u.Model)
	fmt.Fprintf(w, "Tokens:    %d prompt + %d completion = %d\n", u.PromptTokens, u.CompletionTokens, u.TotalTokens())
	fmt.Fprintf(w, "Cost:      $%.6f\n", out.Cost.EstimatedCostUSD)

	proj, err := pricing.Project(out.Cost, len(out.Records), nil)
	if err != nil {
		// No records, nothing to project.
		return nil
	}
	fmt.Fprintf(w, "\nPer record: $%.8f\n", proj.PerRecordUSD)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "records\tprojected cost (USD)\t")
	for _, p := range proj.Projected {
		fmt.Fprintf(tw, "%d\t%.4f\t\n", p.Records, p.CostUSD)
	}
	return tw.Flush()
}

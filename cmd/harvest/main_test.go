package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
)

func TestLoadPrices_BuiltIn(t *testing.T) {
	table, err := loadPrices("")
	require.NoError(t, err)

	r, ok := table.Lookup("openai/gpt-4o-mini")
	require.True(t, ok)
	require.InDelta(t, 0.15e-6, r.PromptRate, 1e-15)
	require.InDelta(t, 0.60e-6, r.CompletionRate, 1e-15)
}

func TestExampleSchemasParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		_, err := models.LoadSchema(p)
		require.NoError(t, err, p)
	}
}

func TestBuildJob(t *testing.T) {
	schemaPath := filepath.Join(t.TempDir(), "cars.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`
name: cars
fields:
  - {name: name, type: string}
  - {name: price, type: Number}
`), 0o644))

	job, err := buildJob("https://example.com/cars", &runFlags{
		schema:       schemaPath,
		wait:         "delay:2s",
		mode:         "browser",
		runID:        "cars",
		scrollBottom: true,
		clickAll:     "button.more",
		headers:      map[string]string{"Accept-Language": "en"},
	})
	require.NoError(t, err)
	require.Equal(t, "cars", job.RunID)
	require.Equal(t, []string{"name", "price"}, job.Schema.Names())
	require.Equal(t, models.FieldNumber, job.Schema.Fields[1].Type)
	require.Equal(t, "delay:2s", job.Request.Wait.String())
	require.Equal(t, []models.Action{
		{Type: "click_all", Selector: "button.more"},
		{Type: "scroll_bottom"},
	}, job.Request.Actions)
	require.True(t, job.Scope.IsZero())

	job, err = buildJob("https://example.com/reviews", &runFlags{
		schema:    schemaPath,
		wait:      "networkidle",
		mode:      "browser",
		clickText: "Load more",
		maxClicks: 7,
		selector:  " ansrp-srp-tile-v3 ",
		exclude:   []string{".ad", "nav"},
	})
	require.NoError(t, err)
	require.Equal(t, []models.Action{
		{Type: "click_all", Selector: "button", Text: "Load more", MaxClicks: 7},
	}, job.Request.Actions)
	require.Equal(t, models.ContentScope{Selector: "ansrp-srp-tile-v3", ExcludeTags: []string{".ad", "nav"}}, job.Scope)

	_, err = buildJob("https://example.com", &runFlags{schema: schemaPath, wait: "networkidle", mode: "browser", maxClicks: -1})
	require.Error(t, err)

	_, err = buildJob("https://example.com", &runFlags{schema: schemaPath, wait: "sometime", mode: "browser"})
	require.Error(t, err)

	_, err = buildJob("https://example.com", &runFlags{schema: schemaPath, wait: "networkidle", mode: "ftp"})
	require.Error(t, err)
}

func TestApplyRunFlags(t *testing.T) {
	cfg := &config.Config{}
	applyRunFlags(cfg, &runFlags{outDir: "out", prices: "p.yaml", model: "gpt-x", allowUnpriced: true})
	require.Equal(t, "out", cfg.Output.Dir)
	require.Equal(t, "p.yaml", cfg.Pricing.TablePath)
	require.Equal(t, "gpt-x", cfg.LLM.Model)
	require.True(t, cfg.Pricing.AllowUnpriced)
}

func TestPrintOutcome(t *testing.T) {
	out := &pipeline.Outcome{
		RunResult: models.RunResult{
			RunID: "cars",
			Records: []models.Record{
				models.RecordOf("name", "Civic"),
				models.RecordOf("name", "Corolla"),
			},
			Cost: models.CostEstimate{
				Usage:            models.UsageStats{PromptTokens: 1000, CompletionTokens: 500, Model: "gpt-x"},
				EstimatedCostUSD: 0.025,
			},
			WrittenPath: "outputs/cars.json",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, out, 1))
	text := buf.String()
	require.Contains(t, text, "Records (1 of 2)")
	require.Contains(t, text, `"name": "Civic"`)
	require.NotContains(t, text, "Corolla")
	require.Contains(t, text, "Tokens:    1000 prompt + 500 completion = 1500")
	require.Contains(t, text, "Cost:      $0.025000")
	require.Contains(t, text, "Per record: $0.01250000")
	require.Contains(t, text, "12500.0000")

	buf.Reset()
	out.Records = nil
	require.NoError(t, printOutcome(&buf, out, 5))
	require.NotContains(t, buf.String(), "Per record")
}

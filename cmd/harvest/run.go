package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
)

type runFlags struct {
	schema        string
	instruction   string
	wait          string
	mode          string
	runID         string
	outDir        string
	prices        string
	model         string
	allowUnpriced bool
	snapshot      bool
	preview       int
	headers       map[string]string
	userAgent     string
	stealth       bool
	blockAds      bool
	scrollBottom  bool
	clickAll      string
	clickText     string
	maxClicks     int
	selector      string
	include       []string
	exclude       []string
	timeout       time.Duration
}

var runOpts runFlags

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.schema, "schema", "s", "", "YAML or JSON schema file (required)")
	f.StringVarP(&runOpts.instruction, "instruction", "i", "", "extraction instruction sent with the page")
	f.StringVar(&runOpts.wait, "wait", "networkidle", `wait policy: "networkidle", "delay:<duration>" or "selector:<css>"`)
	f.StringVar(&runOpts.mode, "mode", "browser", `fetch mode for URLs: "browser" or "http"`)
	f.StringVar(&runOpts.runID, "run-id", "", "artifact name (generated when empty)")
	f.StringVarP(&runOpts.outDir, "out", "o", "", "output directory (default $HARVEST_OUTPUT_DIR or outputs)")
	f.StringVar(&runOpts.prices, "prices", "", "price table file (default $HARVEST_PRICES_FILE or the built-in table)")
	f.StringVar(&runOpts.model, "model", "", "extraction model (default $HARVEST_LLM_MODEL)")
	f.BoolVar(&runOpts.allowUnpriced, "allow-unpriced", false, "report zero cost for models missing from the price table")
	f.BoolVar(&runOpts.snapshot, "snapshot", false, "also save the rendered HTML as <run_id>.html")
	f.IntVar(&runOpts.preview, "preview", 5, "number of records to print")
	f.StringToStringVarP(&runOpts.headers, "header", "H", nil, "extra request header as name=value (repeatable)")
	f.StringVar(&runOpts.userAgent, "user-agent", "", "override the browser user agent")
	f.BoolVar(&runOpts.stealth, "stealth", false, "inject stealth scripts before navigation")
	f.BoolVar(&runOpts.blockAds, "block-ads", false, "block known ad and tracker hosts")
	f.BoolVar(&runOpts.scrollBottom, "scroll-bottom", false, "scroll to the bottom until the page stops growing")
	f.StringVar(&runOpts.clickAll, "click-all", "", `CSS selector clicked repeatedly, e.g. a "load more" button`)
	f.StringVar(&runOpts.clickText, "click-text", "", `only click elements whose text matches this regex, e.g. "Load more" (implies --click-all button)`)
	f.IntVar(&runOpts.maxClicks, "max-clicks", 0, "cap on --click-all clicks and --scroll-bottom rounds (default 50)")
	f.StringVar(&runOpts.selector, "selector", "", "CSS selector for the elements holding the records; the rest of the page is ignored")
	f.StringSliceVar(&runOpts.include, "include", nil, "CSS selectors kept before extraction (repeatable or comma-separated)")
	f.StringSliceVar(&runOpts.exclude, "exclude", nil, "CSS selectors removed before extraction (repeatable or comma-separated)")
	f.DurationVar(&runOpts.timeout, "timeout", 0, "overall run timeout (0 means none)")
	_ = runCmd.MarkFlagRequired("schema")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <url|file> --schema <schema.yaml>",
	Short: "Render a page, extract records, estimate the cost and save the artifact.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		applyRunFlags(cfg, &runOpts)
		initLogger(cfg.Log)

		job, err := buildJob(args[0], &runOpts)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if runOpts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runOpts.timeout)
			defer cancel()
		}

		c, err := buildComponents(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		slog.Info("run starting", "source", describeSource(job.Request), "schema", job.Schema.Name, "model", cfg.LLM.Model)
		out, err := c.newPipeline().Run(ctx, job)
		if err != nil {
			return err
		}
		return printOutcome(cmd.OutOrStdout(), out, runOpts.preview)
	},
}

// applyRunFlags overrides environment configuration with explicit flags.
func applyRunFlags(cfg *config.Config, f *runFlags) {
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	if f.prices != "" {
		cfg.Pricing.TablePath = f.prices
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.allowUnpriced {
		cfg.Pricing.AllowUnpriced = true
	}
}

func buildJob(source string, f *runFlags) (pipeline.Job, error) {
	schema, err := models.LoadSchema(f.schema)
	if err != nil {
		return pipeline.Job{}, err
	}

	wait, err := models.ParseWaitPolicy(f.wait)
	if err != nil {
		return pipeline.Job{}, err
	}

	if f.maxClicks < 0 {
		return pipeline.Job{}, fmt.Errorf("--max-clicks must not be negative")
	}
	var actions []models.Action
	clickSel := strings.TrimSpace(f.clickAll)
	if clickSel == "" && f.clickText != "" {
		clickSel = "button"
	}
	if clickSel != "" {
		actions = append(actions, models.Action{
			Type:      "click_all",
			Selector:  clickSel,
			Text:      f.clickText,
			MaxClicks: f.maxClicks,
		})
	}
	if f.scrollBottom {
		actions = append(actions, models.Action{Type: "scroll_bottom", MaxClicks: f.maxClicks})
	}

	req := models.RenderRequest{
		Source:    source,
		Wait:      wait,
		Mode:      models.FetchMode(f.mode),
		Actions:   actions,
		Headers:   f.headers,
		UserAgent: f.userAgent,
		Stealth:   f.stealth,
		BlockAds:  f.blockAds,
	}
	if err := req.Validate(); err != nil {
		return pipeline.Job{}, err
	}

	return pipeline.Job{
		RunID:        f.runID,
		Request:      req,
		Schema:       schema,
		Instruction:  f.instruction,
		SaveSnapshot: f.snapshot,
		Scope: models.ContentScope{
			Selector:    strings.TrimSpace(f.selector),
			IncludeTags: f.include,
			ExcludeTags: f.exclude,
		},
	}, nil
}

func describeSource(req models.RenderRequest) string {
	if req.IsURL() {
		return fmt.Sprintf("%s (%s)", req.Source, req.Mode)
	}
	return req.Source
}

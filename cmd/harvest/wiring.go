package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/llm"
	"github.com/use-agent/harvest/pipeline"
	"github.com/use-agent/harvest/pricing"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/sink"
	"github.com/use-agent/harvest/webhook"
)

//go:embed prices.yaml
var defaultPrices []byte

// components are the long-lived pieces a pipeline is assembled from.
type components struct {
	renderer  *scraper.Renderer
	extractor *llm.Client
	sink      *sink.FileSink
	notifier  *webhook.Notifier
	options   pipeline.Options
}

// loadPrices reads the table at path, or the built-in table when path is
// empty.
func loadPrices(path string) (pricing.Table, error) {
	if path == "" {
		return pricing.ParseTable(defaultPrices)
	}
	return pricing.LoadTable(path)
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	prices, err := loadPrices(cfg.Pricing.TablePath)
	if err != nil {
		return nil, fmt.Errorf("price table: %w", err)
	}

	fileSink := sink.NewFileSink(cfg.Output.Dir)
	if cfg.ObjectStore.Enabled() {
		mirror, err := sink.NewObjectMirror(cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		bctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = mirror.EnsureBucket(bctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		fileSink.Mirror = mirror
		slog.Info("artifact mirror enabled", "endpoint", cfg.ObjectStore.Endpoint, "bucket", cfg.ObjectStore.Bucket)
	}

	c := &components{
		renderer:  scraper.NewRenderer(cfg.Browser, cfg.Renderer),
		extractor: llm.NewClient(cfg.LLM),
		sink:      fileSink,
		notifier:  webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret),
		options: pipeline.Options{
			Prices:              prices,
			AllowUnpricedModels: cfg.Pricing.AllowUnpriced,
		},
	}
	if c.notifier != nil {
		c.options.Notifier = c.notifier
	}
	return c, nil
}

func (c *components) newPipeline() *pipeline.Pipeline {
	return pipeline.New(c.renderer, c.extractor, c.sink, c.options)
}

// Close releases the browser and waits for pending webhook deliveries.
func (c *components) Close() {
	c.renderer.Close()
	if c.notifier != nil {
		c.notifier.Wait()
	}
}

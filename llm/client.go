package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Response formats.
const (
	FormatJSONSchema = "json_schema"
	FormatJSONObject = "json_object"
)

const defaultInstruction = "Extract every entity on the page as a record with the listed fields."

// Client is the structured extractor. It prepares page content, sends it to
// an OpenAI-compatible chat completion endpoint and validates the returned
// records against the schema. It is safe for concurrent use.
type Client struct {
	api     openai.Client
	cfg     config.LLMConfig
	cleaner *cleaner.Cleaner
}

// NewClient creates a client from cfg. Extra request options are appended
// after the ones derived from cfg.
func NewClient(cfg config.LLMConfig, opts ...option.RequestOption) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = FormatJSONSchema
	}

	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		base = append(base, option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}))
	}

	return &Client{
		api:     openai.NewClient(append(base, opts...)...),
		cfg:     cfg,
		cleaner: cleaner.NewCleaner(),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Extract sends html, the schema and an instruction to the backend and
// returns the records that satisfy the schema. Records that do not are
// reported in Extraction.Dropped rather than failing the call. The configured
// default content scope applies.
func (c *Client) Extract(ctx context.Context, html string, schema models.Schema, instruction string) (*models.Extraction, error) {
	return c.extract(ctx, html, "", schema, instruction, c.defaultScope())
}

// ExtractPage is Extract for a rendered page; links in the content are
// resolved against the page's final URL. An empty scope falls back to the
// configured default.
func (c *Client) ExtractPage(ctx context.Context, page *models.RenderedPage, schema models.Schema, instruction string, scope models.ContentScope) (*models.Extraction, error) {
	source := ""
	if page.Request.IsURL() {
		source = page.FinalURL
	}
	return c.extract(ctx, page.HTML, source, schema, instruction, scope.Or(c.defaultScope()))
}

func (c *Client) defaultScope() models.ContentScope {
	return models.ContentScope{
		Selector:    c.cfg.ContentSelector,
		IncludeTags: c.cfg.IncludeTags,
		ExcludeTags: c.cfg.ExcludeTags,
	}
}

func (c *Client) extract(ctx context.Context, html, sourceURL string, schema models.Schema, instruction string, scope models.ContentScope) (*models.Extraction, error) {
	if err := schema.Validate(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}
	if c.cfg.APIKey == "" {
		return nil, models.NewScrapeError(models.ErrCodeBackendUnavailable, "no API key configured for the extraction backend", nil)
	}

	prepared, err := c.cleaner.Prepare(html, sourceURL, cleaner.Options{
		Format:      c.cfg.ContentFormat,
		Mode:        c.cfg.ExtractMode,
		Selector:    scope.Selector,
		IncludeTags: scope.IncludeTags,
		ExcludeTags: scope.ExcludeTags,
		MaxTokens:   c.cfg.MaxContentTokens,
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(instruction) == "" {
		instruction = defaultInstruction
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(schema)),
			openai.UserMessage(instruction + "\n\nPage content:\n" + prepared.Content),
		},
		Model:          openai.ChatModel(c.cfg.Model),
		ResponseFormat: c.responseFormat(schema),
		Temperature:    openai.Float(0),
	}

	slog.Debug("sending extraction request",
		"model", c.cfg.Model, "format", c.cfg.ResponseFormat,
		"contentTokens", prepared.Tokens, "fields", len(schema.Fields),
	)

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	usage := models.UsageStats{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Model:            c.cfg.Model,
	}

	if len(resp.Choices) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeMalformedResponse, "backend returned no choices", nil)
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, models.NewScrapeError(models.ErrCodeMalformedResponse, "backend refused: "+msg.Refusal, nil)
	}

	raws, err := decodeRecords(msg.Content, schema.Names())
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeMalformedResponse, err.Error(), err)
	}

	out := &models.Extraction{
		Records: make([]models.Record, 0, len(raws)),
		Usage:   usage,
	}
	for i, raw := range raws {
		rec, err := coerceRecord(raw, schema)
		if err != nil {
			violation := models.NewScrapeError(
				models.ErrCodeSchemaViolation,
				fmt.Sprintf("record %d: %v", i, err),
				err,
			)
			slog.Warn("dropping record", "index", i, "error", violation.Message)
			out.Dropped = append(out.Dropped, models.RecordViolation{Index: i, Err: violation})
			continue
		}
		out.Records = append(out.Records, rec)
	}

	slog.Info("extraction complete",
		"records", len(out.Records), "dropped", len(out.Dropped),
		"promptTokens", usage.PromptTokens, "completionTokens", usage.CompletionTokens,
	)
	return out, nil
}

func (c *Client) responseFormat(schema models.Schema) openai.ChatCompletionNewParamsResponseFormatUnion {
	if c.cfg.ResponseFormat == FormatJSONObject {
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        schemaName(schema),
				Description: openai.String("Records extracted from a web page"),
				Schema:      responseSchema(schema),
				Strict:      openai.Bool(true),
			},
		},
	}
}

// classifyError maps client failures to BACKEND_UNAVAILABLE, keeping the
// HTTP status when the backend answered.
func classifyError(err error) *models.ScrapeError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("backend returned HTTP %d", apiErr.StatusCode)
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			msg += " (check the API key)"
		case http.StatusTooManyRequests:
			msg += " (rate limited)"
		}
		return models.NewScrapeError(models.ErrCodeBackendUnavailable, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeBackendUnavailable, "backend request timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeBackendUnavailable, "backend request failed", err)
}

package cleaner

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/use-agent/harvest/models"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatText     = "text"
)

// Extraction modes.
const (
	ModeRaw         = "raw"
	ModeReadability = "readability"
)

// Options selects how a rendered page is reduced before extraction.
type Options struct {
	// Format is "markdown" (default), "html" or "text".
	Format string

	// Mode is "raw" (default, whole page) or "readability" (main content).
	Mode string

	// Selector narrows the page to the matching elements first.
	Selector string

	IncludeTags []string
	ExcludeTags []string

	// MaxTokens truncates the prepared content; 0 disables truncation.
	MaxTokens int
}

// Prepared is page content ready to be sent to an extraction backend.
type Prepared struct {
	Content        string
	Title          string
	OriginalTokens int
	Tokens         int
	Truncated      bool
}

// Cleaner reduces rendered HTML to the content an extraction backend needs.
// The markdown converter is built once and shared; Cleaner is safe for
// concurrent use.
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner returns a Cleaner with a configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// Prepare runs selector narrowing, tag filtering, optional readability and
// format conversion, in that order. sourceURL may be empty for static files.
func (c *Cleaner) Prepare(rawHTML, sourceURL string, opts Options) (*Prepared, error) {
	out := &Prepared{OriginalTokens: EstimateTokens(rawHTML)}
	html := rawHTML

	if sel := strings.TrimSpace(opts.Selector); sel != "" {
		narrowed, matched, err := narrowToSelector(html, sel)
		if err != nil {
			return nil, models.NewScrapeError(
				models.ErrCodeInvalidInput,
				fmt.Sprintf("invalid css selector %q", sel),
				err,
			)
		}
		if matched == 0 {
			slog.Warn("selector matched nothing, using the whole page", "selector", sel, "url", sourceURL)
		}
		html = narrowed
	}

	html = FilterContent(html, opts.IncludeTags, opts.ExcludeTags)

	switch opts.Mode {
	case "", ModeRaw:
	case ModeReadability:
		html, out.Title = mainContent(html, sourceURL)
	default:
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown extract mode %q", opts.Mode),
			nil,
		)
	}

	switch opts.Format {
	case "", FormatMarkdown:
		md, err := ToMarkdown(c.mdConverter, html, sourceURL)
		if err != nil {
			slog.Warn("markdown conversion failed, sending plain text",
				"url", sourceURL, "error", err,
			)
			md = PlainText(html)
		}
		out.Content = md
	case FormatHTML:
		out.Content = html
	case FormatText:
		out.Content = PlainText(html)
	default:
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown content format %q", opts.Format),
			nil,
		)
	}

	out.Content, out.Truncated = TruncateTokens(out.Content, opts.MaxTokens)
	if out.Truncated {
		slog.Warn("content truncated before extraction",
			"url", sourceURL, "maxTokens", opts.MaxTokens, "originalTokens", out.OriginalTokens,
		)
	}
	out.Tokens = EstimateTokens(out.Content)
	return out, nil
}

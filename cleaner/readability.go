package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the shortest readability text accepted before the
// whole page is used instead.
const minContentLength = 50

// mainContent runs Mozilla Readability over rawHTML and returns the main
// content HTML and the article title. Listing pages often trip readability
// up, so any failure or a too-short result falls back to rawHTML.
func mainContent(rawHTML, sourceURL string) (content, title string) {
	base := &nurl.URL{Scheme: "file", Path: "/"}
	if sourceURL != "" {
		u, err := nurl.Parse(sourceURL)
		if err != nil {
			slog.Warn("readability: invalid source URL, using whole page",
				"url", sourceURL, "error", err,
			)
			return rawHTML, ""
		}
		base = u
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil {
		slog.Warn("readability: extraction failed, using whole page",
			"url", sourceURL, "error", err,
		)
		return rawHTML, ""
	}

	if n := len(strings.TrimSpace(article.TextContent)); n < minContentLength {
		slog.Debug("readability: extracted content too short, using whole page",
			"url", sourceURL, "length", n,
		)
		return rawHTML, article.Title
	}
	return article.Content, article.Title
}

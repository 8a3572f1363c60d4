package cleaner

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// narrowToSelector keeps only the elements matching selector, such as the
// listing tiles of a results page, joined in document order. It also returns
// how many elements matched; with no matches the page is returned unchanged.
func narrowToSelector(page, selector string) (string, int, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return "", 0, err
	}

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", 0, err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return page, 0, nil
	}

	var sb strings.Builder
	for i, node := range matches {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if err := html.Render(&sb, node); err != nil {
			return "", 0, err
		}
	}
	return sb.String(), len(matches), nil
}

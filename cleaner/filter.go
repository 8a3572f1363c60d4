package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseTags never carry extractable data.
var noiseTags = []string{"script", "style", "noscript", "template", "svg", "iframe"}

// FilterContent drops the elements matched by excludeTags, then narrows the
// document to the elements matched by includeTags. When no include selector
// matches, the document is kept whole. Parse or render failures return html
// unchanged.
func FilterContent(html string, includeTags, excludeTags []string) string {
	if len(includeTags) == 0 && len(excludeTags) == 0 {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	for _, sel := range excludeTags {
		doc.Find(sel).Remove()
	}

	kept := doc.Selection
	if len(includeTags) > 0 {
		if m := doc.Find(strings.Join(includeTags, ", ")); m.Length() > 0 {
			kept = m
		}
	}

	var out strings.Builder
	for i := range kept.Nodes {
		frag, err := goquery.OuterHtml(kept.Eq(i))
		if err != nil {
			return html
		}
		out.WriteString(frag)
	}
	return out.String()
}

// PlainText returns the visible text of an HTML fragment with runs of
// whitespace collapsed.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find(strings.Join(noiseTags, ", ")).Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			lines = append(lines, strings.Join(f, " "))
		}
	}
	return strings.Join(lines, "\n")
}

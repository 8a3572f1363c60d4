package cleaner

import (
	"strings"
	"testing"

	"github.com/use-agent/harvest/models"
)

const listingHTML = `<html><head><title>Used cars</title><style>.x{color:red}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<div class="listing"><h2>Civic</h2><span class="price">$21,000</span><span class="miles">15,000 mi</span></div>
<div class="listing"><h2>Corolla</h2><span class="price">$19,500</span><span class="miles">22,000 mi</span></div>
<script>window.tracking = true;</script>
<footer>Copyright</footer>
</body></html>`

func TestPrepare_Formats(t *testing.T) {
	c := NewCleaner()

	tests := []struct {
		name       string
		opts       Options
		wantHas    []string
		wantHasNot []string
	}{
		{
			name:       "markdown default",
			opts:       Options{},
			wantHas:    []string{"## Civic", "$21,000", "Corolla"},
			wantHasNot: []string{"window.tracking", "color:red"},
		},
		{
			name:       "text",
			opts:       Options{Format: FormatText},
			wantHas:    []string{"Civic", "$19,500"},
			wantHasNot: []string{"<h2>", "window.tracking"},
		},
		{
			name:    "html",
			opts:    Options{Format: FormatHTML},
			wantHas: []string{`<span class="price">$21,000</span>`},
		},
		{
			name:       "selector narrows",
			opts:       Options{Format: FormatText, Selector: ".listing"},
			wantHas:    []string{"Civic", "Corolla"},
			wantHasNot: []string{"Home", "Copyright"},
		},
		{
			name:       "exclude tags",
			opts:       Options{Format: FormatText, ExcludeTags: []string{"nav", "footer"}},
			wantHas:    []string{"Civic"},
			wantHasNot: []string{"Home", "Copyright"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Prepare(listingHTML, "https://cars.example.com/used", tt.opts)
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
			for _, s := range tt.wantHas {
				if !strings.Contains(got.Content, s) {
					t.Errorf("content missing %q:\n%s", s, got.Content)
				}
			}
			for _, s := range tt.wantHasNot {
				if strings.Contains(got.Content, s) {
					t.Errorf("content should not contain %q:\n%s", s, got.Content)
				}
			}
			if got.OriginalTokens != EstimateTokens(listingHTML) {
				t.Errorf("OriginalTokens = %d", got.OriginalTokens)
			}
			if got.Tokens != EstimateTokens(got.Content) {
				t.Errorf("Tokens = %d, want %d", got.Tokens, EstimateTokens(got.Content))
			}
		})
	}
}

func TestPrepare_InvalidOptions(t *testing.T) {
	c := NewCleaner()
	tests := []struct {
		name string
		opts Options
	}{
		{"bad selector", Options{Selector: "div[["}},
		{"bad format", Options{Format: "pdf"}},
		{"bad mode", Options{Mode: "pruning"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Prepare(listingHTML, "", tt.opts)
			if code := models.CodeOf(err); code != models.ErrCodeInvalidInput {
				t.Errorf("code = %q, want %q (err: %v)", code, models.ErrCodeInvalidInput, err)
			}
		})
	}
}

func TestPrepare_Truncates(t *testing.T) {
	c := NewCleaner()
	got, err := c.Prepare(listingHTML, "", Options{Format: FormatHTML, MaxTokens: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Truncated {
		t.Error("expected truncation")
	}
	if got.Tokens > 10 {
		t.Errorf("Tokens = %d, want <= 10", got.Tokens)
	}
}

func TestTruncateTokens(t *testing.T) {
	tests := []struct {
		text      string
		max       int
		want      string
		truncated bool
	}{
		{"abcdefghi", 0, "abcdefghi", false},
		{"abcdefghi", 3, "abcdefghi", false},
		{"abcdefghijkl", 2, "abcdef", true},
		{"日本語のテキストです", 2, "日本語のテキ", true},
	}
	for _, tt := range tests {
		got, truncated := TruncateTokens(tt.text, tt.max)
		if got != tt.want || truncated != tt.truncated {
			t.Errorf("TruncateTokens(%q, %d) = (%q, %v), want (%q, %v)",
				tt.text, tt.max, got, truncated, tt.want, tt.truncated)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcdef", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<div>  Civic \n\n <b>2019</b></div><script>x()</script>")
	if got != "Civic\n2019" {
		t.Errorf("PlainText = %q", got)
	}
}

func TestFilterContent(t *testing.T) {
	tests := []struct {
		name       string
		include    []string
		exclude    []string
		wantHas    []string
		wantHasNot []string
	}{
		{
			name:       "exclude only",
			exclude:    []string{"nav", "footer"},
			wantHas:    []string{"Civic", "Corolla"},
			wantHasNot: []string{"Home", "Copyright"},
		},
		{
			name:       "include narrows",
			include:    []string{".price"},
			wantHas:    []string{"$21,000", "$19,500"},
			wantHasNot: []string{"Civic", "miles"},
		},
		{
			name:    "include without match keeps document",
			include: []string{".missing"},
			wantHas: []string{"Civic", "Copyright"},
		},
		{
			name:       "bad exclude selector does not cancel others",
			exclude:    []string{"[[", "footer"},
			wantHas:    []string{"Civic"},
			wantHasNot: []string{"Copyright"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterContent(listingHTML, tt.include, tt.exclude)
			for _, s := range tt.wantHas {
				if !strings.Contains(got, s) {
					t.Errorf("missing %q in %q", s, got)
				}
			}
			for _, s := range tt.wantHasNot {
				if strings.Contains(got, s) {
					t.Errorf("unexpected %q in %q", s, got)
				}
			}
		})
	}

	if got := FilterContent(listingHTML, nil, nil); got != listingHTML {
		t.Error("no selectors should return the input unchanged")
	}
}

package models

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// WaitKind enumerates the conditions a renderer waits for before it
// captures the DOM.
type WaitKind string

const (
	WaitNetworkIdle     WaitKind = "networkidle"
	WaitFixedDelay      WaitKind = "delay"
	WaitSelectorVisible WaitKind = "selector"
)

// WaitPolicy describes when a rendered page counts as settled.
// Only the field matching Kind is meaningful.
// It encodes as text ("delay:10s") in JSON and YAML.
type WaitPolicy struct {
	Kind     WaitKind
	Delay    time.Duration
	Selector string
}

// NetworkIdle returns a policy that waits until in-flight requests drain.
func NetworkIdle() WaitPolicy { return WaitPolicy{Kind: WaitNetworkIdle} }

// FixedDelay returns a policy that sleeps for d after navigation.
func FixedDelay(d time.Duration) WaitPolicy { return WaitPolicy{Kind: WaitFixedDelay, Delay: d} }

// SelectorVisible returns a policy that waits for selector to become visible.
func SelectorVisible(selector string) WaitPolicy {
	return WaitPolicy{Kind: WaitSelectorVisible, Selector: selector}
}

// ParseWaitPolicy parses "networkidle", "delay:<duration>" or
// "selector:<css>". The empty string means networkidle.
func ParseWaitPolicy(s string) (WaitPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(WaitNetworkIdle)) {
		return NetworkIdle(), nil
	}

	kind, arg, ok := strings.Cut(s, ":")
	if !ok {
		return WaitPolicy{}, fmt.Errorf("unknown wait policy %q", s)
	}
	arg = strings.TrimSpace(arg)

	switch WaitKind(strings.ToLower(strings.TrimSpace(kind))) {
	case WaitFixedDelay:
		d, err := time.ParseDuration(arg)
		if err != nil {
			return WaitPolicy{}, fmt.Errorf("wait policy %q: %w", s, err)
		}
		if d < 0 {
			return WaitPolicy{}, fmt.Errorf("wait policy %q: negative delay", s)
		}
		return FixedDelay(d), nil
	case WaitSelectorVisible:
		if arg == "" {
			return WaitPolicy{}, fmt.Errorf("wait policy %q: empty selector", s)
		}
		return SelectorVisible(arg), nil
	default:
		return WaitPolicy{}, fmt.Errorf("unknown wait policy %q", s)
	}
}

// String renders the policy in the form accepted by ParseWaitPolicy.
func (w WaitPolicy) String() string {
	switch w.Kind {
	case WaitFixedDelay:
		return "delay:" + w.Delay.String()
	case WaitSelectorVisible:
		return "selector:" + w.Selector
	default:
		return string(WaitNetworkIdle)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (w WaitPolicy) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WaitPolicy) UnmarshalText(b []byte) error {
	p, err := ParseWaitPolicy(string(b))
	if err != nil {
		return err
	}
	*w = p
	return nil
}

// FetchMode selects how a URL source is loaded.
type FetchMode string

const (
	// FetchBrowser renders the page in headless Chromium (default).
	FetchBrowser FetchMode = "browser"
	// FetchHTTP performs a single HTTP GET with no JavaScript execution.
	FetchHTTP FetchMode = "http"
)

// Action is a post-load browser interaction, run in order after the wait
// policy is satisfied.
type Action struct {
	// Type is one of "click", "click_all", "scroll_bottom", "wait", "execute_js".
	Type string `json:"type" yaml:"type"`

	// Selector is the CSS selector for click, click_all and wait.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Text restricts click targets to elements whose text matches this
	// regular expression (e.g. "Load more").
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Milliseconds is the pause for wait, and the pause after every click
	// for click_all.
	Milliseconds int `json:"milliseconds,omitempty" yaml:"milliseconds,omitempty"`

	// MaxClicks caps click_all clicks and scroll_bottom rounds. Default: 50.
	MaxClicks int `json:"max_clicks,omitempty" yaml:"max_clicks,omitempty"`

	// Code is the JavaScript function body for execute_js.
	Code string `json:"code,omitempty" yaml:"code,omitempty"`
}

// RenderRequest is an immutable description of what to render.
type RenderRequest struct {
	// Source is an http(s) URL, a file:// URL or a local file path.
	Source string `json:"source"`

	// Wait is ignored for file sources and http mode.
	Wait WaitPolicy `json:"wait,omitempty"`

	// Mode selects browser rendering or a plain HTTP fetch for URL sources.
	Mode FetchMode `json:"mode,omitempty"`

	Actions   []Action          `json:"actions,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Stealth   bool              `json:"stealth,omitempty"`
	BlockAds  bool              `json:"block_ads,omitempty"`
}

// IsURL reports whether Source names a remote page.
func (r RenderRequest) IsURL() bool {
	lower := strings.ToLower(r.Source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// FilePath returns the local path for file sources.
func (r RenderRequest) FilePath() (string, error) {
	if r.IsURL() {
		return "", fmt.Errorf("source %q is not a file", r.Source)
	}
	if strings.HasPrefix(strings.ToLower(r.Source), "file://") {
		u, err := url.Parse(r.Source)
		if err != nil {
			return "", fmt.Errorf("parse file url: %w", err)
		}
		return filepath.FromSlash(u.Path), nil
	}
	return r.Source, nil
}

// Validate checks the request for obviously unusable input.
func (r RenderRequest) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return NewScrapeError(ErrCodeInvalidInput, "render source is required", nil)
	}
	switch r.Mode {
	case "", FetchBrowser, FetchHTTP:
	default:
		return NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("unknown fetch mode %q", r.Mode), nil)
	}
	if r.Wait.Kind == WaitSelectorVisible && strings.TrimSpace(r.Wait.Selector) == "" {
		return NewScrapeError(ErrCodeInvalidInput, "selector wait policy requires a selector", nil)
	}
	return nil
}

// RenderedPage is the settled HTML snapshot produced by a renderer.
type RenderedPage struct {
	HTML       string
	Request    RenderRequest
	RenderedAt time.Time
	FinalURL   string
	Title      string
}

// ContentScope narrows a rendered page before it is sent for extraction.
type ContentScope struct {
	// Selector keeps only the elements it matches, e.g. one listing tile.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	IncludeTags []string `json:"include_tags,omitempty" yaml:"include_tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty" yaml:"exclude_tags,omitempty"`
}

// IsZero reports whether the scope keeps the whole page.
func (s ContentScope) IsZero() bool {
	return strings.TrimSpace(s.Selector) == "" && len(s.IncludeTags) == 0 && len(s.ExcludeTags) == 0
}

// Or returns s, or fallback when s is empty.
func (s ContentScope) Or(fallback ContentScope) ContentScope {
	if s.IsZero() {
		return fallback
	}
	return s
}

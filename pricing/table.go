// Package pricing turns backend token usage into an estimated USD cost.
package pricing

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rate is the USD price of a single token.
type Rate struct {
	PromptRate     float64 `json:"prompt_rate" yaml:"prompt_rate"`
	CompletionRate float64 `json:"completion_rate" yaml:"completion_rate"`
}

// Table maps a model name to its per-token rates. It is read-only once
// loaded.
type Table map[string]Rate

// Lookup finds the rate for model. An exact match wins; otherwise the name
// is retried without a "provider/" prefix, so "openai/gpt-4o-mini" prices
// as "gpt-4o-mini".
func (t Table) Lookup(model string) (Rate, bool) {
	if r, ok := t[model]; ok {
		return r, true
	}
	if i := strings.LastIndexByte(model, '/'); i >= 0 {
		r, ok := t[model[i+1:]]
		return r, ok
	}
	return Rate{}, false
}

// Models returns the priced model names, sorted.
func (t Table) Models() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rateEntry accepts either per-token or per-million rates.
type rateEntry struct {
	PromptRate           *float64 `yaml:"prompt_rate"`
	CompletionRate       *float64 `yaml:"completion_rate"`
	PromptPerMillion     *float64 `yaml:"prompt_per_million"`
	CompletionPerMillion *float64 `yaml:"completion_per_million"`
}

type tableFile struct {
	Models map[string]rateEntry `yaml:"models"`
}

// ParseTable decodes a YAML or JSON price table:
//
//	models:
//	  gpt-4o-mini:
//	    prompt_per_million: 0.15
//	    completion_per_million: 0.60
//	  gpt-x:
//	    prompt_rate: 0.00001
//	    completion_rate: 0.00003
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode price table: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("price table has no models")
	}

	t := make(Table, len(f.Models))
	for name, e := range f.Models {
		prompt, err := pick(name, "prompt", e.PromptRate, e.PromptPerMillion)
		if err != nil {
			return nil, err
		}
		completion, err := pick(name, "completion", e.CompletionRate, e.CompletionPerMillion)
		if err != nil {
			return nil, err
		}
		t[strings.TrimSpace(name)] = Rate{PromptRate: prompt, CompletionRate: completion}
	}
	return t, nil
}

func pick(model, kind string, perToken, perMillion *float64) (float64, error) {
	var v float64
	switch {
	case perToken != nil && perMillion != nil:
		return 0, fmt.Errorf("model %q: set %s_rate or %s_per_million, not both", model, kind, kind)
	case perToken != nil:
		v = *perToken
	case perMillion != nil:
		v = *perMillion / 1_000_000
	default:
		return 0, fmt.Errorf("model %q: missing %s rate", model, kind)
	}
	if !validRate(v) {
		return 0, fmt.Errorf("model %q: %s rate must be a finite non-negative number, got %v", model, kind, v)
	}
	return v, nil
}

// LoadTable reads a price table file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}
	return ParseTable(data)
}

func validRate(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/titanous/json5"
)

// wrapperKeys are the object keys backends put the record array under.
var wrapperKeys = []string{recordsKey, "content", "items", "results", "data"}

// decodeRecords turns a backend message into raw record values. It accepts
// a bare array, an object wrapping the array under one of wrapperKeys, or a
// single record object, optionally inside markdown code fences. Strict JSON
// is tried first, then JSON5 for trailing commas and single quotes.
func decodeRecords(content string, fieldNames []string) ([]any, error) {
	body := stripFences(content)
	if body == "" {
		return nil, fmt.Errorf("empty response")
	}

	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		if err5 := json5.Unmarshal([]byte(body), &v); err5 != nil {
			return nil, fmt.Errorf("response is not JSON: %w", err)
		}
	}

	switch val := v.(type) {
	case []any:
		return val, nil
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := val[key]; ok {
				if arr, ok := inner.([]any); ok {
					return arr, nil
				}
			}
		}
		for _, name := range fieldNames {
			if _, ok := val[name]; ok {
				return []any{val}, nil
			}
		}
		return nil, fmt.Errorf("response object has no record array")
	default:
		return nil, fmt.Errorf("response is a JSON %T, not an object or array", v)
	}
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line.
		if tag := strings.TrimSpace(s[:i]); !strings.ContainsAny(tag, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

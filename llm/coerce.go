package llm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/harvest/models"
)

// nullMarkers read as "absent" for optional fields.
var nullMarkers = map[string]struct{}{
	"":     {},
	"-":    {},
	"n/a":  {},
	"na":   {},
	"none": {},
	"null": {},
}

// numberNoise is stripped from numeric strings before parsing. Commas are
// handled by dropThousandsSeparators.
var numberNoise = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "",
	" ", "", "\u00a0", "", "_", "",
)

// dropThousandsSeparators removes commas used as thousands separators. A
// comma in the fraction or a comma group that is not three digits long
// ("1.234,56", "12,5") is a decimal comma and is refused.
func dropThousandsSeparators(s string) (string, bool) {
	intPart, frac, hasDot := strings.Cut(s, ".")
	if strings.Contains(frac, ",") {
		return "", false
	}
	groups := strings.Split(intPart, ",")
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	out := strings.Join(groups, "")
	if hasDot {
		out += "." + frac
	}
	return out, true
}

// coerceRecord builds a Record holding exactly the schema's fields, in schema
// order. Keys the schema does not declare are discarded. A missing or
// uncoercible required field fails the whole record.
func coerceRecord(raw any, schema models.Schema) (models.Record, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return models.Record{}, fmt.Errorf("record is a JSON %s, not an object", jsonKind(raw))
	}

	rec := models.NewRecord()
	for _, f := range schema.Fields {
		v, present := obj[f.Name]
		if f.Optional && (!present || isNullMarker(v)) {
			rec.Set(f.Name, nil)
			continue
		}
		if !present || v == nil {
			return models.Record{}, fmt.Errorf("missing required field %q", f.Name)
		}
		cv, err := coerceValue(v, f.Type)
		if err != nil {
			return models.Record{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		rec.Set(f.Name, cv)
	}
	return rec, nil
}

func isNullMarker(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, marker := nullMarkers[strings.ToLower(strings.TrimSpace(s))]
	return marker
}

// coerceValue converts v to the Go representation of t: string, float64,
// bool or []string.
func coerceValue(v any, t models.FieldType) (any, error) {
	switch t {
	case models.FieldString:
		return toString(v)
	case models.FieldNumber:
		return toNumber(v)
	case models.FieldBoolean:
		return toBool(v)
	case models.FieldStringList:
		return toStringList(v)
	default:
		return nil, fmt.Errorf("unsupported field type %q", t)
	}
}

func toString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("cannot use JSON %s as string", jsonKind(v))
	}
}

func toNumber(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("non-finite number")
		}
		return val, nil
	case string:
		s, ok := dropThousandsSeparators(numberNoise.Replace(strings.TrimSpace(val)))
		if !ok {
			return 0, fmt.Errorf("ambiguous decimal separator in %q", val)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("cannot parse %q as number", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot use JSON %s as number", jsonKind(v))
	}
}

func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y":
			return true, nil
		case "false", "no", "n":
			return false, nil
		}
		return false, fmt.Errorf("cannot parse %q as boolean", val)
	case float64:
		switch val {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
		return false, fmt.Errorf("cannot use %v as boolean", val)
	default:
		return false, fmt.Errorf("cannot use JSON %s as boolean", jsonKind(v))
	}
}

func toStringList(v any) ([]string, error) {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, err := toString(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{val}, nil
	default:
		return nil, fmt.Errorf("cannot use JSON %s as string list", jsonKind(v))
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

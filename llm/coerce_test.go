package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/harvest/models"
)

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		typ     models.FieldType
		want    any
		wantErr bool
	}{
		{"number passthrough", 21000.0, models.FieldNumber, 21000.0, false},
		{"dollar string", "$27,584", models.FieldNumber, 27584.0, false},
		{"euro decimals", "€ 1,299.50", models.FieldNumber, 1299.5, false},
		{"negative", "-3", models.FieldNumber, -3.0, false},
		{"negative thousands", "-1,234", models.FieldNumber, -1234.0, false},
		{"decimal comma after dot", "1.234,56", models.FieldNumber, nil, true},
		{"decimal comma alone", "12,5", models.FieldNumber, nil, true},
		{"units are not numbers", "15,000 mi", models.FieldNumber, nil, true},
		{"bool as number", true, models.FieldNumber, nil, true},
		{"string passthrough", "Civic", models.FieldString, "Civic", false},
		{"number as string", 2019.0, models.FieldString, "2019", false},
		{"bool as string", false, models.FieldString, "false", false},
		{"object as string", map[string]any{}, models.FieldString, nil, true},
		{"yes", "Yes", models.FieldBoolean, true, false},
		{"no", "no", models.FieldBoolean, false, false},
		{"one", 1.0, models.FieldBoolean, true, false},
		{"maybe", "maybe", models.FieldBoolean, nil, true},
		{"list", []any{"a", 1.0}, models.FieldStringList, []string{"a", "1"}, false},
		{"single string list", "a", models.FieldStringList, []string{"a"}, false},
		{"nested list", []any{[]any{}}, models.FieldStringList, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceValue(tt.in, tt.typ)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoerceRecord_OptionalNulls(t *testing.T) {
	schema := models.MustSchema("",
		models.Field{Name: "title", Type: models.FieldString},
		models.Field{Name: "price", Type: models.FieldNumber, Optional: true},
	)
	for _, v := range []any{nil, "", "N/A", " none "} {
		rec, err := coerceRecord(map[string]any{"title": "x", "price": v}, schema)
		if err != nil {
			t.Fatalf("price=%v: %v", v, err)
		}
		if got, ok := rec.Get("price"); !ok || got != nil {
			t.Errorf("price=%v: got (%v, %v), want explicit null", v, got, ok)
		}
	}

	if _, err := coerceRecord(map[string]any{"price": 1.0}, schema); err == nil {
		t.Error("missing required field must fail the record")
	}
	if _, err := coerceRecord([]any{"x"}, schema); err == nil {
		t.Error("non-object record must fail")
	}
}

func TestDecodeRecords(t *testing.T) {
	names := []string{"name", "price"}
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"name":"a"},{"name":"b"}]`, 2, false},
		{"records wrapper", `{"records":[{"name":"a"}]}`, 1, false},
		{"content wrapper", `{"content":[{"name":"a"},{"name":"b"},{"name":"c"}]}`, 3, false},
		{"single record", `{"name":"a","price":1}`, 1, false},
		{"fenced", "```json\n[{\"name\":\"a\"}]\n```", 1, false},
		{"fence without tag", "```\n[]\n```", 0, false},
		{"json5 trailing comma", `{records: [{name: 'a',},],}`, 1, false},
		{"empty", "  ", 0, true},
		{"prose", "no data here", 0, true},
		{"unrelated object", `{"error":"nope"}`, 0, true},
		{"scalar", `42`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecords(tt.in, names)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestResponseSchema(t *testing.T) {
	schema := models.MustSchema("car listings",
		models.Field{Name: "name", Type: models.FieldString, Description: "Model name"},
		models.Field{Name: "price", Type: models.FieldNumber, Optional: true},
	)
	b, err := json.Marshal(responseSchema(schema))
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	for _, want := range []string{
		`"required":["records"]`,
		`"required":["name","price"]`,
		`"additionalProperties":false`,
		`"anyOf":[{"type":"number"},{"type":"null"}]`,
		`"description":"Model name"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("schema missing %s:\n%s", want, got)
		}
	}

	if name := schemaName(schema); name != "car_listings" {
		t.Errorf("schemaName = %q", name)
	}
}

func TestSystemPrompt(t *testing.T) {
	p := systemPrompt(models.MustSchema("",
		models.Field{Name: "tags", Type: models.FieldStringList, Optional: true},
	))
	if !strings.Contains(p, "- tags (list of strings, optional)") {
		t.Errorf("prompt does not describe the field:\n%s", p)
	}
}

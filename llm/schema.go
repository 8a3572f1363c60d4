package llm

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/use-agent/harvest/models"
)

// recordsKey wraps the record array; structured outputs require an object
// at the root.
const recordsKey = "records"

// responseSchema builds the strict JSON schema sent with json_schema
// requests: {"records": [ {<field>: <type>, ...} ]}. Every field is
// required, optional ones are nullable instead.
func responseSchema(s models.Schema) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	for _, f := range s.Fields {
		fs := fieldSchema(f.Type)
		if f.Description != "" {
			fs.Description = f.Description
		}
		if f.Optional {
			fs = &jsonschema.Schema{
				Description: fs.Description,
				AnyOf:       []*jsonschema.Schema{withoutDescription(fs), {Type: "null"}},
			}
		}
		props.Set(f.Name, fs)
	}

	record := &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             s.Names(),
		AdditionalProperties: jsonschema.FalseSchema,
	}

	root := jsonschema.NewProperties()
	root.Set(recordsKey, &jsonschema.Schema{
		Type:        "array",
		Description: "Every entity found in the content, in page order.",
		Items:       record,
	})

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           root,
		Required:             []string{recordsKey},
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func fieldSchema(t models.FieldType) *jsonschema.Schema {
	switch t {
	case models.FieldNumber:
		return &jsonschema.Schema{Type: "number"}
	case models.FieldBoolean:
		return &jsonschema.Schema{Type: "boolean"}
	case models.FieldStringList:
		return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
	default:
		return &jsonschema.Schema{Type: "string"}
	}
}

func withoutDescription(s *jsonschema.Schema) *jsonschema.Schema {
	c := *s
	c.Description = ""
	return &c
}

// schemaName turns a schema name into an identifier accepted by the
// response_format API ([a-zA-Z0-9_-], at most 64 chars).
func schemaName(s models.Schema) string {
	name := s.Name
	if name == "" {
		name = "records"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

// systemPrompt describes the fields and the output contract.
func systemPrompt(s models.Schema) string {
	var b strings.Builder
	b.WriteString("You are a structured data extraction assistant. ")
	b.WriteString("Find every entity in the provided page content and return one record per entity.\n\n")
	b.WriteString("Fields:\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, typeHint(f.Type))
		if f.Optional {
			b.WriteString(", optional")
		}
		b.WriteString(")")
		if f.Description != "" {
			b.WriteString(": " + f.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString(`
Rules:
- Return ONLY a JSON object of the form {"records": [...]}, no markdown fences or explanation.
- Every record has exactly the fields listed above.
- Numbers are plain JSON numbers without currency symbols, units or thousands separators.
- Use null for an optional field that is not present. Never invent values.
- Keep the order in which entities appear on the page.`)
	return b.String()
}

func typeHint(t models.FieldType) string {
	switch t {
	case models.FieldStringList:
		return "list of strings"
	default:
		return string(t)
	}
}

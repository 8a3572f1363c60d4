package models

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldType is the declared type of an extracted field.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldBoolean    FieldType = "boolean"
	FieldStringList FieldType = "string_list"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldStringList:
		return true
	}
	return false
}

// Field is one named, typed column of an ExtractionSchema.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`

	// Optional fields may be absent from a backend record; they are then
	// stored as an explicit null instead of failing the record.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Schema is the ordered list of fields to extract for every entity on a
// page. It is defined once per use case and treated as read-only.
type Schema struct {
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// NewSchema builds and validates a schema from fields.
func NewSchema(name string, fields ...Field) (Schema, error) {
	s := Schema{Name: name, Fields: fields}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on invalid input.
func MustSchema(name string, fields ...Field) Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that the schema has at least one field, that names are
// unique and non-empty, and that every type is known.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("schema: at least one field is required")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("schema: field %d has an empty name", i)
		}
		if name != f.Name {
			return fmt.Errorf("schema: field %q has surrounding whitespace", f.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema: duplicate field %q", name)
		}
		seen[name] = struct{}{}
		if !f.Type.Valid() {
			return fmt.Errorf("schema: field %q has unsupported type %q", name, f.Type)
		}
	}
	return nil
}

// Names returns the field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ParseSchema decodes a YAML or JSON schema document and validates it.
func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	for i := range s.Fields {
		s.Fields[i].Type = FieldType(strings.ToLower(string(s.Fields[i].Type)))
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// LoadSchema reads and parses a schema file.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(data)
}

package models

import (
	"bytes"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one extracted entity: field name to scalar value, in schema
// order. A nil value is an explicit null.
type Record struct {
	values *orderedmap.OrderedMap[string, any]
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{values: orderedmap.New[string, any]()}
}

// RecordOf builds a record from alternating key/value pairs. It is meant
// for fixtures and tests.
func RecordOf(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("models: RecordOf needs key/value pairs")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Set assigns a value, keeping the original position of existing keys.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = orderedmap.New[string, any]()
	}
	r.values.Set(key, value)
}

// Get returns the value for key.
func (r Record) Get(key string) (any, bool) {
	if r.values == nil {
		return nil, false
	}
	return r.values.Get(key)
}

// Keys returns the field names in order.
func (r Record) Keys() []string {
	if r.values == nil {
		return nil
	}
	keys := make([]string, 0, r.values.Len())
	for pair := r.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of fields.
func (r Record) Len() int {
	if r.values == nil {
		return 0
	}
	return r.values.Len()
}

// Map returns an unordered copy of the record.
func (r Record) Map() map[string]any {
	m := make(map[string]any, r.Len())
	if r.values == nil {
		return m
	}
	for pair := r.values.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = pair.Value
	}
	return m
}

// MarshalJSON writes the fields in insertion order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("{}"), nil
	}
	return r.values.MarshalJSON()
}

// UnmarshalJSON keeps the key order found in the document.
func (r *Record) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("record: null is not an object")
	}
	m := orderedmap.New[string, any]()
	if err := m.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	r.values = m
	return nil
}

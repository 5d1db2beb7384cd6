package structured

import (
	"fmt"

	gojson "github.com/goccy/go-json"
)

// Record is a document that passed validation. Enum values are in canonical
// casing and every required field is present.
type Record struct {
	root   *Node
	schema *Schema
	raw    []byte
}

func newRecord(root *Node, schema *Schema) *Record {
	raw, _ := root.MarshalJSON()
	return &Record{root: root, schema: schema, raw: raw}
}

// Schema returns the schema the record was validated against.
func (r *Record) Schema() *Schema { return r.schema }

// Node returns a copy of the validated document.
func (r *Record) Node() *Node { return r.root.Clone() }

// JSON returns the canonical JSON encoding of the record.
func (r *Record) JSON() []byte {
	return append([]byte(nil), r.raw...)
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.JSON(), nil
}

// Map returns the record as plain Go values.
func (r *Record) Map() map[string]any {
	m, _ := r.root.Interface().(map[string]any)
	return m
}

// Decode unmarshals the record into a strongly typed value.
func (r *Record) Decode(v any) error {
	if err := gojson.Unmarshal(r.JSON(), v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeRecord decodes a record into a new T.
func DecodeRecord[T any](r *Record) (*T, error) {
	var out T
	if err := r.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

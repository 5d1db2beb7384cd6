package structured

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaType represents the declared type of a schema node.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
)

// Schema is the declarative contract describing the expected output shape.
// It drives schema-guided generation (JSONSchema), normalization and validation.
//
// Besides the usual constraints an object schema can carry drift hints:
// property aliases, envelope wrapper names and a primary key.
type Schema struct {
	Title       string
	Description string
	Type        SchemaType

	// Enum lists permitted values of a string field in canonical casing.
	Enum []string

	// Object
	Properties []*Property
	// PrimaryKey names the property a bare string is wrapped into when the
	// model returns a string where this object was expected.
	PrimaryKey string
	// Wrappers are extra envelope keys accepted around the root document.
	Wrappers []string
	// AdditionalProperties allows keys not declared in Properties.
	AdditionalProperties bool

	// Array
	Items    *Schema
	MinItems *int
	MaxItems *int

	// String
	MinLength *int
	MaxLength *int

	// Number
	Minimum *float64
	Maximum *float64

	index map[string]int
}

// Property is a named field of an object schema.
type Property struct {
	Name     string
	Schema   *Schema
	Required bool
	// Aliases are alternate key spellings observed in model output.
	Aliases []string
}

// NewObjectSchema creates an object schema.
func NewObjectSchema() *Schema { return &Schema{Type: TypeObject} }

// NewStringSchema creates a string schema.
func NewStringSchema() *Schema { return &Schema{Type: TypeString} }

// NewEnumSchema creates a string-enum schema.
func NewEnumSchema(values ...string) *Schema {
	return &Schema{Type: TypeString, Enum: append([]string(nil), values...)}
}

// NewNumberSchema creates a number schema.
func NewNumberSchema() *Schema { return &Schema{Type: TypeNumber} }

// NewIntegerSchema creates an integer schema.
func NewIntegerSchema() *Schema { return &Schema{Type: TypeInteger} }

// NewBooleanSchema creates a boolean schema.
func NewBooleanSchema() *Schema { return &Schema{Type: TypeBoolean} }

// NewArraySchema creates an array schema.
func NewArraySchema(items *Schema) *Schema { return &Schema{Type: TypeArray, Items: items} }

// AddProperty adds an optional property. Re-adding a name replaces its schema.
func (s *Schema) AddProperty(name string, schema *Schema) *Schema {
	if p, ok := s.Property(name); ok {
		p.Schema = schema
		return s
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[name] = len(s.Properties)
	s.Properties = append(s.Properties, &Property{Name: name, Schema: schema})
	return s
}

// AddRequired marks properties as required.
func (s *Schema) AddRequired(names ...string) *Schema {
	for _, name := range names {
		if p, ok := s.Property(name); ok {
			p.Required = true
		}
	}
	return s
}

// WithAliases registers alternate spellings for a property.
func (s *Schema) WithAliases(name string, aliases ...string) *Schema {
	if p, ok := s.Property(name); ok {
		p.Aliases = append(p.Aliases, aliases...)
	}
	return s
}

func (s *Schema) WithTitle(title string) *Schema             { s.Title = title; return s }
func (s *Schema) WithDescription(d string) *Schema           { s.Description = d; return s }
func (s *Schema) WithPrimaryKey(name string) *Schema         { s.PrimaryKey = name; return s }
func (s *Schema) WithWrappers(names ...string) *Schema       { s.Wrappers = append(s.Wrappers, names...); return s }
func (s *Schema) WithAdditionalProperties(allow bool) *Schema { s.AdditionalProperties = allow; return s }
func (s *Schema) WithMinItems(n int) *Schema                 { s.MinItems = &n; return s }
func (s *Schema) WithMaxItems(n int) *Schema                 { s.MaxItems = &n; return s }
func (s *Schema) WithMinLength(n int) *Schema                { s.MinLength = &n; return s }
func (s *Schema) WithMaxLength(n int) *Schema                { s.MaxLength = &n; return s }
func (s *Schema) WithMinimum(f float64) *Schema              { s.Minimum = &f; return s }
func (s *Schema) WithMaximum(f float64) *Schema              { s.Maximum = &f; return s }

// Property looks up a property by canonical name.
func (s *Schema) Property(name string) (*Property, bool) {
	if s == nil {
		return nil, false
	}
	// Schemas are shared across concurrent runs; lookups never write.
	if len(s.index) == len(s.Properties) {
		if i, ok := s.index[name]; ok && s.Properties[i].Name == name {
			return s.Properties[i], true
		}
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// RequiredNames returns required property names in declaration order.
func (s *Schema) RequiredNames() []string {
	var out []string
	for _, p := range s.Properties {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// IsEnum reports whether the schema is a string enum.
func (s *Schema) IsEnum() bool {
	return s != nil && s.Type == TypeString && len(s.Enum) > 0
}

// CanonicalEnum maps a candidate value to its canonical enum member using
// trimmed, case-insensitive matching.
func (s *Schema) CanonicalEnum(v string) (string, bool) {
	needle := strings.TrimSpace(v)
	for _, e := range s.Enum {
		if e == needle {
			return e, true
		}
	}
	for _, e := range s.Enum {
		if strings.EqualFold(e, needle) {
			return e, true
		}
	}
	return "", false
}

// Check verifies the descriptor itself is well formed.
func (s *Schema) Check() error {
	var errs []error
	s.check("", &errs)
	return errors.Join(errs...)
}

func (s *Schema) check(path string, errs *[]error) {
	where := path
	if where == "" {
		where = "$"
	}
	if s == nil {
		*errs = append(*errs, fmt.Errorf("%s: nil schema", where))
		return
	}
	switch s.Type {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean:
	case TypeObject:
		seen := make(map[string]bool)
		for _, p := range s.Properties {
			if p.Name == "" {
				*errs = append(*errs, fmt.Errorf("%s: property with empty name", where))
				continue
			}
			if seen[p.Name] {
				*errs = append(*errs, fmt.Errorf("%s: duplicate property %q", where, p.Name))
			}
			seen[p.Name] = true
			p.Schema.check(joinPath(path, p.Name), errs)
		}
		if s.PrimaryKey != "" {
			if p, ok := s.Property(s.PrimaryKey); !ok || p.Schema == nil || p.Schema.Type != TypeString {
				*errs = append(*errs, fmt.Errorf("%s: primary key %q must be a string property", where, s.PrimaryKey))
			}
		}
	case TypeArray:
		if s.Items == nil {
			*errs = append(*errs, fmt.Errorf("%s: array schema without items", where))
		} else {
			s.Items.check(path+"[]", errs)
		}
	default:
		*errs = append(*errs, fmt.Errorf("%s: unknown type %q", where, s.Type))
	}
	if len(s.Enum) > 0 && s.Type != TypeString {
		*errs = append(*errs, fmt.Errorf("%s: enum is only supported on strings", where))
	}
}

// JSONSchema renders the descriptor as a plain JSON Schema document for
// schema-guided generation.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": string(s.Type)}
	if s.Title != "" {
		out["title"] = s.Title
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = append([]string(nil), s.Enum...)
	}
	switch s.Type {
	case TypeObject:
		props := make(map[string]any, len(s.Properties))
		for _, p := range s.Properties {
			props[p.Name] = p.Schema.JSONSchema()
		}
		out["properties"] = props
		if req := s.RequiredNames(); len(req) > 0 {
			out["required"] = req
		}
		out["additionalProperties"] = s.AdditionalProperties
	case TypeArray:
		out["items"] = s.Items.JSONSchema()
		if s.MinItems != nil {
			out["minItems"] = *s.MinItems
		}
		if s.MaxItems != nil {
			out["maxItems"] = *s.MaxItems
		}
	case TypeString:
		if s.MinLength != nil {
			out["minLength"] = *s.MinLength
		}
		if s.MaxLength != nil {
			out["maxLength"] = *s.MaxLength
		}
	case TypeNumber, TypeInteger:
		if s.Minimum != nil {
			out["minimum"] = *s.Minimum
		}
		if s.Maximum != nil {
			out["maximum"] = *s.Maximum
		}
	}
	return out
}

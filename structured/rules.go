package structured

import (
	"fmt"
	"strings"
)

// Rule names recorded in NormalizationStep.Rule.
const (
	RuleEnvelopeUnwrap = "envelope_unwrap"
	RuleFieldRename    = "field_rename"
	RuleNullPrune      = "null_prune"
	RuleEnumCoerce     = "enum_coerce"
	RuleShapeCoerce    = "shape_coerce"
	RuleExampleRepair  = "example_repair"
	RuleEnumFilter     = "enum_filter"
)

// NormalizationStep records one applied repair. Diagnostics only.
type NormalizationStep struct {
	Rule        string `json:"rule"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
}

// StepLog collects the steps of one normalization.
type StepLog struct {
	steps []NormalizationStep
}

// Add appends a step.
func (l *StepLog) Add(rule, path, format string, args ...any) {
	l.steps = append(l.steps, NormalizationStep{
		Rule:        rule,
		Path:        path,
		Description: fmt.Sprintf(format, args...),
	})
}

// Steps returns the collected steps.
func (l *StepLog) Steps() []NormalizationStep { return l.steps }

// Len returns the number of collected steps.
func (l *StepLog) Len() int { return len(l.steps) }

// RootRule repairs the document as a whole and may replace it.
type RootRule interface {
	Name() string
	ApplyRoot(doc *Node, schema *Schema, log *StepLog) *Node
}

// Rule repairs one object node described by an object schema, in place.
// Implementations must be idempotent and guarded by a precondition.
type Rule interface {
	Name() string
	Apply(obj *Node, schema *Schema, path string, log *StepLog)
}

// =============================================================================
// Envelope unwrap
// =============================================================================

// EnvelopeUnwrap replaces {"<wrapper>": {...}} with the inner object while the
// root has exactly one key, that key is not a schema property and it matches a
// wrapper convention: the schema title in any case, its lowerCamel form, or a
// configured wrapper name.
type EnvelopeUnwrap struct {
	Wrappers []string
}

func (EnvelopeUnwrap) Name() string { return RuleEnvelopeUnwrap }

func (r EnvelopeUnwrap) ApplyRoot(doc *Node, schema *Schema, log *StepLog) *Node {
	if schema == nil || schema.Type != TypeObject {
		return doc
	}
	for doc.IsObject() && doc.Len() == 1 {
		key := doc.Keys()[0]
		if _, isProp := schema.Property(key); isProp || !r.matches(key, schema) {
			break
		}
		inner, _ := doc.Get(key)
		if !inner.IsObject() {
			break
		}
		log.Add(RuleEnvelopeUnwrap, "", "unwrapped envelope %q", key)
		doc = inner
	}
	return doc
}

func (r EnvelopeUnwrap) matches(key string, schema *Schema) bool {
	candidates := make([]string, 0, len(r.Wrappers)+len(schema.Wrappers)+2)
	if schema.Title != "" {
		candidates = append(candidates, schema.Title, lowerCamel(schema.Title))
	}
	candidates = append(candidates, schema.Wrappers...)
	candidates = append(candidates, r.Wrappers...)
	for _, c := range candidates {
		if c != "" && strings.EqualFold(key, c) {
			return true
		}
	}
	return false
}

// =============================================================================
// Field rename
// =============================================================================

// FieldRename moves values from alternate key spellings to the canonical
// property name. A canonical key holding null counts as absent.
type FieldRename struct{}

func (FieldRename) Name() string { return RuleFieldRename }

func (FieldRename) Apply(obj *Node, schema *Schema, path string, log *StepLog) {
	table := aliasTable(schema)
	if len(table) == 0 {
		return
	}
	for _, p := range schema.Properties {
		for _, alt := range alternatesFor(p, table) {
			if !obj.Has(alt) {
				continue
			}
			if cur, ok := obj.Get(p.Name); ok {
				if !cur.IsNull() {
					break
				}
				obj.Delete(p.Name)
			}
			obj.Rename(alt, p.Name)
			log.Add(RuleFieldRename, joinPath(path, p.Name), "renamed %q to %q", alt, p.Name)
			break
		}
	}
}

// =============================================================================
// Null-optional pruning
// =============================================================================

// NullPrune removes optional properties whose value is null. Required nulls
// are left for validation.
type NullPrune struct{}

func (NullPrune) Name() string { return RuleNullPrune }

func (NullPrune) Apply(obj *Node, schema *Schema, path string, log *StepLog) {
	for _, p := range schema.Properties {
		if p.Required {
			continue
		}
		if v, ok := obj.Get(p.Name); ok && v.IsNull() {
			obj.Delete(p.Name)
			log.Add(RuleNullPrune, joinPath(path, p.Name), "removed null optional field")
		}
	}
}

// =============================================================================
// Enum scalar coercion
// =============================================================================

// EnumCoerce maps string-enum values to their canonical casing. Unknown
// values are dropped from optional fields and left in required ones.
type EnumCoerce struct{}

func (EnumCoerce) Name() string { return RuleEnumCoerce }

func (EnumCoerce) Apply(obj *Node, schema *Schema, path string, log *StepLog) {
	for _, p := range schema.Properties {
		if !p.Schema.IsEnum() {
			continue
		}
		v, ok := obj.Get(p.Name)
		if !ok {
			continue
		}
		s, isStr := v.Str()
		if !isStr {
			continue
		}
		fieldPath := joinPath(path, p.Name)
		if canon, ok := p.Schema.CanonicalEnum(s); ok {
			if canon != s {
				obj.Set(p.Name, NewString(canon))
				log.Add(RuleEnumCoerce, fieldPath, "normalized %q to %q", s, canon)
			}
			continue
		}
		if !p.Required {
			obj.Delete(p.Name)
			log.Add(RuleEnumCoerce, fieldPath, "dropped value %q outside permitted set", s)
		}
	}
}

// =============================================================================
// Shape coercion
// =============================================================================

// ShapeCoerce wraps a bare string received for an object property as
// {primaryKey: string}, only when the object schema declares a primary key
// and requires nothing else.
type ShapeCoerce struct{}

func (ShapeCoerce) Name() string { return RuleShapeCoerce }

func (ShapeCoerce) Apply(obj *Node, schema *Schema, path string, log *StepLog) {
	for _, p := range schema.Properties {
		if !singleKeyVariant(p.Schema) {
			continue
		}
		v, ok := obj.Get(p.Name)
		if !ok {
			continue
		}
		s, isStr := v.Str()
		if !isStr {
			continue
		}
		obj.Set(p.Name, NewObject().Set(p.Schema.PrimaryKey, NewString(s)))
		log.Add(RuleShapeCoerce, joinPath(path, p.Name), "wrapped string as {%q: ...}", p.Schema.PrimaryKey)
	}
}

func singleKeyVariant(s *Schema) bool {
	if s == nil || s.Type != TypeObject || s.PrimaryKey == "" {
		return false
	}
	pk, ok := s.Property(s.PrimaryKey)
	if !ok || pk.Schema == nil || pk.Schema.Type != TypeString {
		return false
	}
	for _, name := range s.RequiredNames() {
		if name != s.PrimaryKey {
			return false
		}
	}
	return true
}

// =============================================================================
// Nested-example repair
// =============================================================================

// ExampleRepair drops plain-string elements from arrays of objects when at
// least one object element remains. Arrays that arrive empty are left as-is;
// only an optional array emptied by this rule is removed.
type ExampleRepair struct{}

func (ExampleRepair) Name() string { return RuleExampleRepair }

func (ExampleRepair) Apply(obj *Node, schema *Schema, path string, log *StepLog) {
	for _, p := range schema.Properties {
		if p.Schema == nil || p.Schema.Type != TypeArray || p.Schema.Items == nil || p.Schema.Items.Type != TypeObject {
			continue
		}
		v, ok := obj.Get(p.Name)
		if !ok || !v.IsArray() {
			continue
		}
		fieldPath := joinPath(path, p.Name)
		items := v.Items()
		kept := make([]*Node, 0, len(items))
		objects := 0
		for _, it := range items {
			if it.IsObject() {
				objects++
			}
			if !it.IsString() {
				kept = append(kept, it)
			}
		}
		dropped := len(items) - len(kept)
		if objects == 0 || dropped == 0 {
			continue
		}
		if len(kept) == 0 && !p.Required {
			obj.Delete(p.Name)
			log.Add(RuleExampleRepair, fieldPath, "removed optional array emptied by repair")
			continue
		}
		v.SetItems(kept)
		log.Add(RuleExampleRepair, fieldPath, "dropped %d string element(s)", dropped)
	}
}

// =============================================================================
// Enum-array filtering
// =============================================================================

// EnumFilter canonicalizes members of string-enum arrays and removes members
// outside the permitted set. An optional array emptied by filtering is removed.
type EnumFilter struct{}

func (EnumFilter) Name() string { return RuleEnumFilter }

func (EnumFilter) Apply(obj *Node, schema *Schema, path string, log *StepLog) {
	for _, p := range schema.Properties {
		if p.Schema == nil || p.Schema.Type != TypeArray || !p.Schema.Items.IsEnum() {
			continue
		}
		v, ok := obj.Get(p.Name)
		if !ok || !v.IsArray() {
			continue
		}
		fieldPath := joinPath(path, p.Name)
		items := v.Items()
		kept := make([]*Node, 0, len(items))
		var dropped []string
		changed := false
		for _, it := range items {
			s, isStr := it.Str()
			if !isStr {
				dropped = append(dropped, it.String())
				continue
			}
			canon, ok := p.Schema.Items.CanonicalEnum(s)
			if !ok {
				dropped = append(dropped, s)
				continue
			}
			if canon != s {
				changed = true
				it = NewString(canon)
			}
			kept = append(kept, it)
		}
		if len(dropped) == 0 && !changed {
			continue
		}
		if len(kept) == 0 && !p.Required {
			obj.Delete(p.Name)
			log.Add(RuleEnumFilter, fieldPath, "removed field: no permitted members in %v", dropped)
			continue
		}
		v.SetItems(kept)
		if len(dropped) > 0 {
			log.Add(RuleEnumFilter, fieldPath, "removed members %v outside permitted set", dropped)
		} else {
			log.Add(RuleEnumFilter, fieldPath, "normalized member casing")
		}
	}
}

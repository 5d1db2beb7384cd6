package structured

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/lessonpipe/types"
)

// Issue codes reported by the Validator.
const (
	IssueRequired     = "required"
	IssueNull         = "null"
	IssueType         = "type"
	IssueEnum         = "enum"
	IssueMinLength    = "min_length"
	IssueMaxLength    = "max_length"
	IssueMinimum      = "minimum"
	IssueMaximum      = "maximum"
	IssueMinItems     = "min_items"
	IssueMaxItems     = "max_items"
	IssueUnknownField = "unknown_field"
)

// ValidationResult is exactly one of a Record or a non-empty issue list.
type ValidationResult struct {
	Record *Record
	Issues []types.Issue
}

// Valid reports whether validation produced a record.
func (r *ValidationResult) Valid() bool {
	return r != nil && r.Record != nil
}

// Err returns a *ValidationError for a failed result, nil otherwise.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Issues: r.Issues}
}

// ValidationError carries every schema violation of a document.
type ValidationError struct {
	Issues []types.Issue `json:"issues"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "validation failed"
	case 1:
		return e.Issues[0].String()
	}
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.String()
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Issues), strings.Join(msgs, "; "))
}

// Validator checks a normalized document against a Schema and collects every
// violation. It is a pure function of (document, schema) and never mutates
// either.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate validates doc against schema. Issues are ordered by schema
// property order, then by sorted unknown key.
func (v *Validator) Validate(doc *Node, schema *Schema) *ValidationResult {
	var issues []types.Issue
	v.validateValue(doc, schema, "", &issues)
	if len(issues) > 0 {
		return &ValidationResult{Issues: issues}
	}
	return &ValidationResult{Record: newRecord(canonicalize(doc, schema), schema)}
}

func (v *Validator) validateValue(n *Node, s *Schema, path string, issues *[]types.Issue) {
	if s == nil {
		return
	}
	if !typeMatches(n, s.Type) {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueType,
			Expected: string(s.Type), Actual: describeKind(n),
		})
		return
	}
	switch s.Type {
	case TypeString:
		v.validateString(n, s, path, issues)
	case TypeNumber, TypeInteger:
		v.validateNumber(n, s, path, issues)
	case TypeObject:
		v.validateObject(n, s, path, issues)
	case TypeArray:
		v.validateArray(n, s, path, issues)
	}
}

func (v *Validator) validateString(n *Node, s *Schema, path string, issues *[]types.Issue) {
	str, _ := n.Str()
	if len(s.Enum) > 0 {
		found := false
		for _, e := range s.Enum {
			if e == str {
				found = true
				break
			}
		}
		if !found {
			*issues = append(*issues, types.Issue{
				Path: path, Code: IssueEnum,
				Expected: "one of [" + strings.Join(s.Enum, ", ") + "]",
				Actual:   strconv.Quote(str),
			})
		}
	}
	length := utf8.RuneCountInString(str)
	if s.MinLength != nil && length < *s.MinLength {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueMinLength,
			Expected: fmt.Sprintf("length >= %d", *s.MinLength),
			Actual:   fmt.Sprintf("length %d", length),
		})
	}
	if s.MaxLength != nil && length > *s.MaxLength {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueMaxLength,
			Expected: fmt.Sprintf("length <= %d", *s.MaxLength),
			Actual:   fmt.Sprintf("length %d", length),
		})
	}
}

// maxSafeInteger 是 float64 能精确表示的最大整数 (2^53-1)
const maxSafeInteger = 1<<53 - 1

func (v *Validator) validateNumber(n *Node, s *Schema, path string, issues *[]types.Issue) {
	f, _ := n.Float64()
	lit, _ := n.NumberLiteral()
	if s.Type == TypeInteger && math.Abs(f) > maxSafeInteger {
		code, expected := IssueMaximum, fmt.Sprintf("<= %d", int64(maxSafeInteger))
		if f < 0 {
			code, expected = IssueMinimum, fmt.Sprintf(">= %d", -int64(maxSafeInteger))
		}
		*issues = append(*issues, types.Issue{Path: path, Code: code, Expected: expected, Actual: lit})
		return
	}
	if s.Minimum != nil && f < *s.Minimum {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueMinimum,
			Expected: fmt.Sprintf(">= %s", formatFloat(*s.Minimum)),
			Actual:   lit,
		})
	}
	if s.Maximum != nil && f > *s.Maximum {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueMaximum,
			Expected: fmt.Sprintf("<= %s", formatFloat(*s.Maximum)),
			Actual:   lit,
		})
	}
}

func (v *Validator) validateObject(n *Node, s *Schema, path string, issues *[]types.Issue) {
	for _, p := range s.Properties {
		fieldPath := joinPath(path, p.Name)
		val, ok := n.Get(p.Name)
		switch {
		case !ok:
			if p.Required {
				*issues = append(*issues, types.Issue{
					Path: fieldPath, Code: IssueRequired,
					Expected: "required field", Actual: "missing",
				})
			}
		case val.IsNull():
			if p.Required {
				*issues = append(*issues, types.Issue{
					Path: fieldPath, Code: IssueNull,
					Expected: describeSchema(p.Schema), Actual: "null",
				})
			}
		default:
			v.validateValue(val, p.Schema, fieldPath, issues)
		}
	}

	if s.AdditionalProperties {
		return
	}
	var unknown []string
	for _, k := range n.Keys() {
		if _, ok := s.Property(k); !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		*issues = append(*issues, types.Issue{
			Path: joinPath(path, k), Code: IssueUnknownField,
			Expected: "no additional fields", Actual: "unexpected field",
		})
	}
}

func (v *Validator) validateArray(n *Node, s *Schema, path string, issues *[]types.Issue) {
	count := n.Len()
	if s.MinItems != nil && count < *s.MinItems {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueMinItems,
			Expected: fmt.Sprintf("at least %d items", *s.MinItems),
			Actual:   fmt.Sprintf("%d items", count),
		})
	}
	if s.MaxItems != nil && count > *s.MaxItems {
		*issues = append(*issues, types.Issue{
			Path: path, Code: IssueMaxItems,
			Expected: fmt.Sprintf("at most %d items", *s.MaxItems),
			Actual:   fmt.Sprintf("%d items", count),
		})
	}
	for i, it := range n.Items() {
		v.validateValue(it, s.Items, indexPath(path, i), issues)
	}
}

// typeMatches reports whether n has the JSON kind t requires.
func typeMatches(n *Node, t SchemaType) bool {
	switch t {
	case TypeString:
		return n.Kind() == KindString
	case TypeBoolean:
		return n.Kind() == KindBool
	case TypeNumber:
		_, ok := n.Float64()
		return ok
	case TypeInteger:
		f, ok := n.Float64()
		return ok && !math.IsInf(f, 0) && f == math.Trunc(f)
	case TypeObject:
		return n.Kind() == KindObject
	case TypeArray:
		return n.Kind() == KindArray
	}
	return false
}

func describeKind(n *Node) string {
	if n.Kind() == KindNumber {
		if lit, _ := n.NumberLiteral(); lit != "" {
			return "number " + lit
		}
	}
	if s, ok := n.Str(); ok {
		return "string " + strconv.Quote(headRunes(s, 40))
	}
	return n.Kind().String()
}

func describeSchema(s *Schema) string {
	if s == nil {
		return "value"
	}
	if s.IsEnum() {
		return "one of [" + strings.Join(s.Enum, ", ") + "]"
	}
	return string(s.Type)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// canonicalize returns a copy of a valid document with integer literals
// rewritten in plain form ("2.0" -> "2") so they decode into Go integers.
func canonicalize(n *Node, s *Schema) *Node {
	c := n.Clone()
	canonicalizeInPlace(c, s)
	return c
}

func canonicalizeInPlace(n *Node, s *Schema) {
	if s == nil {
		return
	}
	switch s.Type {
	case TypeInteger:
		if f, ok := n.Float64(); ok && math.Abs(f) <= maxSafeInteger {
			n.num = strconv.FormatInt(int64(f), 10)
		}
	case TypeObject:
		for _, p := range s.Properties {
			if val, ok := n.Get(p.Name); ok {
				canonicalizeInPlace(val, p.Schema)
			}
		}
	case TypeArray:
		for _, it := range n.Items() {
			canonicalizeInPlace(it, s.Items)
		}
	}
}

package structured

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Kind is the JSON kind of a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Node is the untyped intermediate document: a tagged union of
// Null | Bool | Number | String | Array<Node> | Map<String,Node>.
// Objects keep key insertion order. Numbers keep their literal text.
//
// A Node tree is owned by a single run and is not safe for concurrent use.
type Node struct {
	kind  Kind
	b     bool
	num   string
	str   string
	items []*Node
	keys  []string
	props map[string]*Node
}

// NewNull returns a null node.
func NewNull() *Node { return &Node{kind: KindNull} }

// NewBool returns a boolean node.
func NewBool(b bool) *Node { return &Node{kind: KindBool, b: b} }

// NewNumber returns a number node from its JSON literal text.
func NewNumber(literal string) *Node { return &Node{kind: KindNumber, num: literal} }

// NewInt returns a number node holding an integer.
func NewInt(n int64) *Node { return NewNumber(strconv.FormatInt(n, 10)) }

// NewFloat returns a number node holding a float.
func NewFloat(f float64) *Node { return NewNumber(strconv.FormatFloat(f, 'g', -1, 64)) }

// NewString returns a string node.
func NewString(s string) *Node { return &Node{kind: KindString, str: s} }

// NewArray returns an array node.
func NewArray(items ...*Node) *Node {
	return &Node{kind: KindArray, items: append([]*Node{}, items...)}
}

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{kind: KindObject, props: make(map[string]*Node)}
}

// Kind returns the node kind. A nil node reports KindNull.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

func (n *Node) IsNull() bool   { return n.Kind() == KindNull }
func (n *Node) IsObject() bool { return n.Kind() == KindObject }
func (n *Node) IsArray() bool  { return n.Kind() == KindArray }
func (n *Node) IsString() bool { return n.Kind() == KindString }

// Bool returns the boolean value.
func (n *Node) Bool() (bool, bool) {
	if n.Kind() != KindBool {
		return false, false
	}
	return n.b, true
}

// Str returns the string value.
func (n *Node) Str() (string, bool) {
	if n.Kind() != KindString {
		return "", false
	}
	return n.str, true
}

// NumberLiteral returns the JSON literal of a number node.
func (n *Node) NumberLiteral() (string, bool) {
	if n.Kind() != KindNumber {
		return "", false
	}
	return n.num, true
}

// Float64 returns the numeric value.
func (n *Node) Float64() (float64, bool) {
	if n.Kind() != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.num, 64)
	return f, err == nil
}

// Len returns the number of array items or object keys.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindArray:
		return len(n.items)
	case KindObject:
		return len(n.keys)
	}
	return 0
}

// Items returns the array elements. The slice must not be modified; use SetItems.
func (n *Node) Items() []*Node {
	if n.Kind() != KindArray {
		return nil
	}
	return n.items
}

// SetItems replaces the array elements.
func (n *Node) SetItems(items []*Node) {
	if n.Kind() != KindArray {
		return
	}
	n.items = items
}

// Keys returns object keys in insertion order.
func (n *Node) Keys() []string {
	if n.Kind() != KindObject {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Get returns the value under key.
func (n *Node) Get(key string) (*Node, bool) {
	if n.Kind() != KindObject {
		return nil, false
	}
	v, ok := n.props[key]
	return v, ok
}

// Has reports whether the object has key.
func (n *Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Set stores value under key. Existing keys keep their position.
func (n *Node) Set(key string, value *Node) *Node {
	if n.Kind() != KindObject {
		return n
	}
	if value == nil {
		value = NewNull()
	}
	if _, ok := n.props[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.props[key] = value
	return n
}

// Delete removes key and reports whether it was present.
func (n *Node) Delete(key string) bool {
	if n.Kind() != KindObject {
		return false
	}
	if _, ok := n.props[key]; !ok {
		return false
	}
	delete(n.props, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
	return true
}

// Rename moves the value under from to to, keeping its position.
// It is a no-op when from is absent or to already exists.
func (n *Node) Rename(from, to string) bool {
	if n.Kind() != KindObject || from == to {
		return false
	}
	v, ok := n.props[from]
	if !ok || n.Has(to) {
		return false
	}
	delete(n.props, from)
	n.props[to] = v
	for i, k := range n.keys {
		if k == from {
			n.keys[i] = to
			break
		}
	}
	return true
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return NewNull()
	}
	c := &Node{kind: n.kind, b: n.b, num: n.num, str: n.str}
	switch n.kind {
	case KindArray:
		c.items = make([]*Node, len(n.items))
		for i, it := range n.items {
			c.items[i] = it.Clone()
		}
	case KindObject:
		c.keys = append([]string(nil), n.keys...)
		c.props = make(map[string]*Node, len(n.props))
		for k, v := range n.props {
			c.props[k] = v.Clone()
		}
	}
	return c
}

// Equal reports structural equality. Object key order is ignored; numbers
// compare by value.
func (n *Node) Equal(o *Node) bool {
	if n.Kind() != o.Kind() {
		return false
	}
	switch n.Kind() {
	case KindNull:
		return true
	case KindBool:
		return n.b == o.b
	case KindNumber:
		if n.num == o.num {
			return true
		}
		a, okA := n.Float64()
		b, okB := o.Float64()
		return okA && okB && a == b
	case KindString:
		return n.str == o.str
	case KindArray:
		if len(n.items) != len(o.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(n.keys) != len(o.keys) {
			return false
		}
		for k, v := range n.props {
			ov, ok := o.props[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes the node, objects in key insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.b))
	case KindNumber:
		buf.WriteString(n.num)
	case KindString:
		s, err := gojson.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := gojson.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := n.props[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// String returns the compact JSON text, for logs and diagnostics.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid node: %v>", err)
	}
	return string(b)
}

// Interface converts the node to plain Go values: map[string]any, []any,
// gojson.Number, string, bool or nil.
func (n *Node) Interface() any {
	switch n.Kind() {
	case KindBool:
		return n.b
	case KindNumber:
		return gojson.Number(n.num)
	case KindString:
		return n.str
	case KindArray:
		out := make([]any, len(n.items))
		for i, it := range n.items {
			out[i] = it.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			out[k] = n.props[k].Interface()
		}
		return out
	}
	return nil
}

// FromValue builds a node from plain Go values as produced by JSON decoding.
// Map keys are inserted in sorted order.
func FromValue(v any) (*Node, error) {
	switch vv := v.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(vv), nil
	case string:
		return NewString(vv), nil
	case gojson.Number:
		return NewNumber(string(vv)), nil
	case float64:
		return NewFloat(vv), nil
	case int:
		return NewInt(int64(vv)), nil
	case int64:
		return NewInt(vv), nil
	case []any:
		items := make([]*Node, len(vv))
		for i, it := range vv {
			c, err := FromValue(it)
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		return NewArray(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			c, err := FromValue(vv[k])
			if err != nil {
				return nil, err
			}
			obj.Set(k, c)
		}
		return obj, nil
	case *Node:
		return vv.Clone(), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// =============================================================================
// Parsing
// =============================================================================

// ErrInvalidJSON is returned by Parse for text that is not exactly one JSON document.
var ErrInvalidJSON = errors.New("invalid JSON document")

// Parse parses exactly one JSON document into a Node tree.
// Duplicate object keys keep the last value.
func Parse(data []byte) (*Node, error) {
	if len(bytes.TrimSpace(data)) == 0 || !gojson.Valid(data) {
		return nil, ErrInvalidJSON
	}
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return root, nil
}

func parseValue(dec *gojson.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *gojson.Decoder, tok gojson.Token) (*Node, error) {
	switch v := tok.(type) {
	case gojson.Delim:
		switch v {
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", kt)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArray()
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr.items = append(arr.items, val)
			}
			if _, err := dec.Token(); err != nil { // ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return NewString(v), nil
	case bool:
		return NewBool(v), nil
	case gojson.Number:
		return NewNumber(string(v)), nil
	case float64:
		return NewFloat(v), nil
	case nil:
		return NewNull(), nil
	}
	return nil, fmt.Errorf("unexpected token %T", tok)
}

// =============================================================================
// Paths
// =============================================================================

// joinPath joins path segments in dotted form: "a.b[0].c".
func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

func indexPath(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}

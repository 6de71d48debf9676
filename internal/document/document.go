// Package document holds the in-memory tree every input format is parsed into.
//
// A Node is exactly one of:
//   - a scalar (nil, bool, string, int64, float64)
//   - a collection (ordered list of nodes)
//   - an object (ordered list of uniquely keyed fields)
//
// Object fields keep insertion order. Every downstream engine (flattening,
// classification, decomposition, grouping) relies on that order to produce
// deterministic column and row sequences.
//
// Nodes are immutable once constructed; there are no exported setters.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the variant tag of a Node.
type Kind uint8

const (
	KindScalar Kind = iota
	KindCollection
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindCollection:
		return "collection"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Field is one key/value member of an object node.
type Field struct {
	Key   string
	Value *Node
}

// Node is a tagged document value. The zero value and a nil *Node both read as
// a null scalar.
type Node struct {
	kind   Kind
	value  any
	items  []*Node
	fields []Field
	index  map[string]int
}

// Null returns a null scalar.
func Null() *Node { return &Node{kind: KindScalar} }

// Scalar wraps a scalar value.
//
// Edge cases:
//   - Integer types are widened to int64, float32 to float64.
//   - json.Number becomes int64 when it parses as an integer, float64 otherwise.
//   - Any other non-scalar type is stored as its fmt.Sprint text.
func Scalar(v any) *Node {
	return &Node{kind: KindScalar, value: normalizeScalar(v)}
}

// Collection builds a collection node from items in order. nil items read as null.
func Collection(items ...*Node) *Node {
	cp := make([]*Node, len(items))
	for i, it := range items {
		if it == nil {
			it = Null()
		}
		cp[i] = it
	}
	return &Node{kind: KindCollection, items: cp}
}

// Object builds an object node from fields in order.
//
// Duplicate keys keep the position of their first occurrence and the value of
// their last occurrence (the usual JSON decoder behavior).
func Object(fields ...Field) *Node {
	n := &Node{kind: KindObject, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		v := f.Value
		if v == nil {
			v = Null()
		}
		if i, ok := n.index[f.Key]; ok {
			n.fields[i].Value = v
			continue
		}
		n.index[f.Key] = len(n.fields)
		n.fields = append(n.fields, Field{Key: f.Key, Value: v})
	}
	return n
}

// F is shorthand for building a Field.
func F(key string, v *Node) Field { return Field{Key: key, Value: v} }

// Kind reports the variant of n.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindScalar
	}
	return n.kind
}

func (n *Node) IsScalar() bool     { return n.Kind() == KindScalar }
func (n *Node) IsCollection() bool { return n.Kind() == KindCollection }
func (n *Node) IsObject() bool     { return n.Kind() == KindObject }

// IsNull reports whether n is a null scalar.
func (n *Node) IsNull() bool { return n == nil || (n.kind == KindScalar && n.value == nil) }

// Value returns the scalar payload, or nil for non-scalars.
func (n *Node) Value() any {
	if n == nil || n.kind != KindScalar {
		return nil
	}
	return n.value
}

// Items returns the collection members. Callers must not modify the slice.
func (n *Node) Items() []*Node {
	if n == nil || n.kind != KindCollection {
		return nil
	}
	return n.items
}

// Fields returns the object members in insertion order. Callers must not
// modify the slice.
func (n *Node) Fields() []Field {
	if n == nil || n.kind != KindObject {
		return nil
	}
	return n.fields
}

// Keys returns object keys in insertion order.
func (n *Node) Keys() []string {
	fs := n.Fields()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Key
	}
	return out
}

// Get returns the value stored under key on an object node.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.kind != KindObject {
		return nil, false
	}
	i, ok := n.index[key]
	if !ok {
		return nil, false
	}
	return n.fields[i].Value, true
}

// Len is the number of items or fields; scalars have length 0.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindCollection:
		return len(n.items)
	case KindObject:
		return len(n.fields)
	default:
		return 0
	}
}

// ToAny converts n into plain Go values: map[string]any, []any and scalars.
// Field order is lost in the map form.
func (n *Node) ToAny() any {
	switch n.Kind() {
	case KindCollection:
		out := make([]any, len(n.items))
		for i, it := range n.items {
			out[i] = it.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.fields))
		for _, f := range n.fields {
			out[f.Key] = f.Value.ToAny()
		}
		return out
	default:
		return n.Value()
	}
}

// MarshalJSON encodes n with object fields in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.Kind() {
	case KindCollection:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case KindObject:
		buf.WriteByte('{')
		for i, f := range n.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	default:
		v := n.Value()
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			buf.WriteString("null")
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("document: encode scalar: %w", err)
		}
		buf.Write(b)
		return nil
	}
}

// FromAny converts decoded Go values into a Node.
//
// Edge cases:
//   - map[string]any has no inherent order; keys are sorted so the result is
//     deterministic. Parsers that care about source order build Nodes directly.
//   - A *Node is returned unchanged.
func FromAny(v any) *Node {
	switch t := v.(type) {
	case *Node:
		if t == nil {
			return Null()
		}
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = Field{Key: k, Value: FromAny(t[k])}
		}
		return Object(fields...)
	case []any:
		items := make([]*Node, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Collection(items...)
	case []map[string]any:
		items := make([]*Node, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Collection(items...)
	default:
		return Scalar(v)
	}
}

func normalizeScalar(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint:
		if uint64(t) <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		return NumberFromString(string(t))
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// NumberFromString parses a numeric literal into int64 when it is integral and
// fits, float64 otherwise. Unparseable input is returned as the original string.
func NumberFromString(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

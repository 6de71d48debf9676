package document

// ContainsCollection reports whether n is a collection or has one anywhere
// beneath it.
func ContainsCollection(n *Node) bool {
	switch n.Kind() {
	case KindCollection:
		return true
	case KindObject:
		for _, f := range n.fields {
			if ContainsCollection(f.Value) {
				return true
			}
		}
	}
	return false
}

// SingleKey returns the only field of an object with exactly one key.
func SingleKey(n *Node) (Field, bool) {
	if n.Kind() != KindObject || len(n.fields) != 1 {
		return Field{}, false
	}
	return n.fields[0], true
}

// WrapsCollection reports whether n is a single-key object whose value is a
// collection, e.g. {"Meter": [...]}. It returns that field.
func WrapsCollection(n *Node) (Field, bool) {
	f, ok := SingleKey(n)
	if !ok || !f.Value.IsCollection() {
		return Field{}, false
	}
	return f, true
}

// DirectCollections returns the collection-valued fields of an object, in order.
func DirectCollections(n *Node) []Field {
	var out []Field
	for _, f := range n.Fields() {
		if f.Value.IsCollection() {
			out = append(out, f)
		}
	}
	return out
}

// HasComposite reports whether an object has at least one object- or
// collection-valued field.
func HasComposite(n *Node) bool {
	for _, f := range n.Fields() {
		if !f.Value.IsScalar() {
			return true
		}
	}
	return false
}

// UnwrapEnvelope skips a single-key envelope object when its value is, or
// transitively contains, a collection. Anything else is returned unchanged.
//
// Example:
//
//	{"Profiles": {"Profile": [...]}} -> {"Profile": [...]}
//	{"meta": {"version": 1}}          -> unchanged
func UnwrapEnvelope(n *Node) (*Node, bool) {
	f, ok := SingleKey(n)
	if !ok {
		return n, false
	}
	if f.Value.IsCollection() || (f.Value.IsObject() && ContainsCollection(f.Value)) {
		return f.Value, true
	}
	return n, false
}

// CountLeaves counts the scalar leaves of n, nulls included. Empty objects and
// collections contribute nothing.
func CountLeaves(n *Node) int {
	switch n.Kind() {
	case KindCollection:
		total := 0
		for _, it := range n.items {
			total += CountLeaves(it)
		}
		return total
	case KindObject:
		total := 0
		for _, f := range n.fields {
			total += CountLeaves(f.Value)
		}
		return total
	default:
		return 1
	}
}

// ScalarOrJSON returns the value of a scalar node, or the compact JSON text of
// a composite one.
func ScalarOrJSON(n *Node) any {
	if n.IsScalar() {
		return n.Value()
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return nil
	}
	return string(b)
}

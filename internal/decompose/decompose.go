// Package decompose splits a document with sibling collections into one parent
// table and child tables linked by synthetic integer keys.
package decompose

import (
	"docnorm/internal/document"
	"docnorm/internal/flatten"
	"docnorm/internal/structure"
	"docnorm/internal/table"
)

const (
	// DefaultParentName names the parent table when the root collection has no
	// key (a bare or unwrapped array) or none was found.
	DefaultParentName = "parent"

	// ScalarColumn holds a child element that is not an object.
	ScalarColumn = "value"
)

// Hierarchy is one parent table plus its child tables, children in first
// encounter order.
type Hierarchy struct {
	Parent   table.Table
	Children []table.Table
}

// Tables returns the parent followed by the children.
func (h Hierarchy) Tables() []table.Table {
	out := make([]table.Table, 0, 1+len(h.Children))
	out = append(out, h.Parent)
	return append(out, h.Children...)
}

// Decompose builds the parent/child tables of n.
//
// The root collection is located after unwrapping a root envelope: the
// unwrapped value itself when it is a collection (named after the envelope
// key, {"users": [...]} -> users), else its first collection-valued property,
// else the first collection found one level inside one of its object
// properties. Only a collection holding at least one object element
// qualifies.
//
// Every element i of the root collection yields one parent row with _id = i.
// An object element contributes:
//   - scalar properties as columns;
//   - object properties without collection members flattened as key.sub;
//   - collection properties, single-key wrappers around a collection (keyed by
//     the inner key) and collection members of an object property become
//     child collections.
//
// Any other element is stored under "value".
//
// Child rows get a per-table sequential _id and _parent_id = i. Object
// elements keep their scalar top-level properties only; other elements are
// stored under "value". A child whose table name equals the parent's gets
// the "_child" suffix.
//
// When no qualifying root collection exists the parent holds one row, the
// flattened unwrapped document, and there are no children. An analysis that
// found no collection at all skips the search.
func Decompose(n *document.Node, a structure.Analysis) Hierarchy {
	v, unwrapped := document.UnwrapEnvelope(n)
	h := Hierarchy{Parent: table.Table{Name: DefaultParentName, Kind: table.KindParent}}

	var (
		root    []*document.Node
		rootKey string
	)
	if a.RootArray != "" || len(a.NestedArrays) > 0 {
		root, rootKey = findRoot(v)
	}
	if unwrapped && v.IsCollection() {
		env, _ := document.SingleKey(n)
		rootKey = env.Key
	}
	if len(root) == 0 {
		h.Parent.Rows = []table.Row{flatten.Record(v)}
		return h
	}

	if name := table.SnakeCase(rootKey); name != "" {
		h.Parent.Name = name
	}

	children := newChildSet(h.Parent.Name)
	h.Parent.Rows = make([]table.Row, 0, len(root))
	for i, item := range root {
		id := int64(i)
		if !item.IsObject() {
			h.Parent.Rows = append(h.Parent.Rows, table.Row{
				table.IDColumn: id,
				ScalarColumn:   document.ScalarOrJSON(item),
			})
			continue
		}
		row, arrays := splitElement(item)
		row[table.IDColumn] = id
		h.Parent.Rows = append(h.Parent.Rows, row)

		for _, f := range arrays {
			children.append(f.Key, id, f.Value.Items())
		}
	}
	h.Children = children.tables()
	return h
}

func findRoot(v *document.Node) ([]*document.Node, string) {
	switch v.Kind() {
	case document.KindCollection:
		if hasObject(v) {
			return v.Items(), ""
		}
	case document.KindObject:
		for _, f := range v.Fields() {
			if f.Value.IsCollection() {
				if hasObject(f.Value) {
					return f.Value.Items(), f.Key
				}
				continue
			}
			if !f.Value.IsObject() {
				continue
			}
			if inner := document.DirectCollections(f.Value); len(inner) > 0 && hasObject(inner[0].Value) {
				return inner[0].Value.Items(), inner[0].Key
			}
		}
	}
	return nil, ""
}

func hasObject(coll *document.Node) bool {
	for _, it := range coll.Items() {
		if it.IsObject() {
			return true
		}
	}
	return false
}

// splitElement partitions a root element into its parent row and its child
// collections. A child key seen twice keeps its first position and its last
// collection.
func splitElement(item *document.Node) (table.Row, []document.Field) {
	row := table.Row{}
	var arrays []document.Field
	put := func(key string, coll *document.Node) {
		for j := range arrays {
			if arrays[j].Key == key {
				arrays[j].Value = coll
				return
			}
		}
		arrays = append(arrays, document.F(key, coll))
	}

	for _, f := range item.Fields() {
		switch f.Value.Kind() {
		case document.KindCollection:
			put(f.Key, f.Value)
		case document.KindObject:
			if w, ok := document.WrapsCollection(f.Value); ok {
				put(w.Key, w.Value)
				continue
			}
			inner := document.DirectCollections(f.Value)
			if len(inner) == 0 {
				flattenObject(row, f.Key, f.Value)
				continue
			}
			for _, c := range inner {
				put(c.Key, c.Value)
			}
		default:
			row[f.Key] = f.Value.Value()
		}
	}
	return row, arrays
}

// flattenObject writes the scalars of obj under prefix.key columns, descending
// into nested objects and skipping collections.
func flattenObject(row table.Row, prefix string, obj *document.Node) {
	for _, f := range obj.Fields() {
		col := prefix + "." + f.Key
		switch f.Value.Kind() {
		case document.KindObject:
			flattenObject(row, col, f.Value)
		case document.KindScalar:
			row[col] = f.Value.Value()
		}
	}
}

type childSet struct {
	parent string
	order  []*table.Table
	byKey  map[string]*table.Table
}

func newChildSet(parent string) *childSet {
	return &childSet{parent: parent, byKey: map[string]*table.Table{}}
}

// append adds the elements of one child collection owned by parent id. Tables
// are keyed by their snake_case name so "Tags" and "tags" share one table.
func (c *childSet) append(key string, parentID int64, items []*document.Node) {
	name := table.SnakeCase(key)
	if name == c.parent {
		name += "_child"
	}
	t, ok := c.byKey[name]
	if !ok {
		t = &table.Table{Name: name, Kind: table.KindChild}
		c.byKey[name] = t
		c.order = append(c.order, t)
	}
	for _, it := range items {
		row := table.Row{}
		if it.IsObject() {
			for _, f := range it.Fields() {
				if f.Value.IsScalar() {
					row[f.Key] = f.Value.Value()
				}
			}
		} else {
			row[ScalarColumn] = document.ScalarOrJSON(it)
		}
		row[table.IDColumn] = int64(len(t.Rows))
		row[table.ParentIDColumn] = parentID
		t.Rows = append(t.Rows, row)
	}
}

func (c *childSet) tables() []table.Table {
	out := make([]table.Table, len(c.order))
	for i, t := range c.order {
		out[i] = *t
	}
	return out
}

// Package flatten reduces a document to its leaf paths and regroups those
// paths into table rows.
//
// Path syntax: "." descends into an object key, "[i]" into a collection index,
// e.g. Profile[0].Meters.Meter[1].Service. A scalar root has the empty path.
package flatten

import (
	"strconv"

	"docnorm/internal/document"
	"docnorm/internal/table"
)

// Leaf is one scalar (or null) of a document together with its path.
type Leaf struct {
	Path  string
	Value any
}

// Flatten returns every leaf of n in document order.
//
// Edge cases:
//   - A scalar or null root yields one leaf with the empty path.
//   - Nulls are leaves; they are never descended into.
//   - Empty objects and collections yield no leaves.
//   - Keys containing "." or "[" are not escaped; such paths are ambiguous
//     when split again.
func Flatten(n *document.Node) []Leaf {
	var out []Leaf
	walk(n, "", &out)
	return out
}

func walk(n *document.Node, path string, out *[]Leaf) {
	switch n.Kind() {
	case document.KindObject:
		for _, f := range n.Fields() {
			key := f.Key
			if path != "" {
				key = path + "." + f.Key
			}
			walk(f.Value, key, out)
		}
	case document.KindCollection:
		for i, it := range n.Items() {
			walk(it, path+"["+strconv.Itoa(i)+"]", out)
		}
	default:
		*out = append(*out, Leaf{Path: path, Value: n.Value()})
	}
}

// FlattenMap is Flatten as a path -> value map. When two leaves share a path
// the later one wins.
func FlattenMap(n *document.Node) map[string]any {
	leaves := Flatten(n)
	out := make(map[string]any, len(leaves))
	for _, l := range leaves {
		out[l.Path] = l.Value
	}
	return out
}

// RowsDocument turns rows back into a document, {"rows": [{...}, ...]}, with
// each row's keys in default column order. Re-flattening and re-tabulating it
// reproduces the rows when no column name contains "." or "[".
func RowsDocument(rows []table.Row) *document.Node {
	items := make([]*document.Node, len(rows))
	for i, r := range rows {
		cols := make([]string, 0, len(r))
		for k := range r {
			cols = append(cols, k)
		}
		table.OrderColumns(cols)
		fields := make([]document.Field, len(cols))
		for j, c := range cols {
			fields[j] = document.F(c, document.Scalar(r[c]))
		}
		items[i] = document.Object(fields...)
	}
	return document.Object(document.F("rows", document.Collection(items...)))
}

// Package grouped normalizes documents with a single collection path into one
// table whose rows fan out to the deepest collection.
package grouped

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"docnorm/internal/document"
	"docnorm/internal/flatten"
	"docnorm/internal/table"
)

const (
	indexSuffix = "_Index"
	valueSuffix = "_Value"
)

// GroupByDeepestArray turns n into rows, one per element of the deepest
// collection reached along each branch.
//
// Every collection element at name p adds a p_Index column to the context
// inherited from its ancestors (a bare root collection uses "_Index"). Object
// elements are flattened under singular(p).key columns, nested objects
// extending the prefix; their own collections then fan out into further rows
// that replace the element row and carry it as context. Scalar elements are
// recorded under p_Value.
//
// A root envelope is unwrapped first. A document that yields no rows becomes
// one row {"Value": <the unwrapped value>} with composites as JSON text.
//
// Documents with more than one collection inside a single element should be
// checked with Ambiguities first; the rows produced for them interleave the
// unrelated collections.
func GroupByDeepestArray(n *document.Node) []table.Row {
	v, _ := document.UnwrapEnvelope(n)
	rows := group(v, "", table.Row{})
	if len(rows) == 0 {
		return []table.Row{{flatten.RootValueColumn: document.ScalarOrJSON(v)}}
	}
	return rows
}

func group(v *document.Node, name string, ctx table.Row) []table.Row {
	var rows []table.Row
	switch v.Kind() {
	case document.KindCollection:
		for i, item := range v.Items() {
			elemCtx := ctx.Clone()
			elemCtx[name+indexSuffix] = int64(i)

			switch item.Kind() {
			case document.KindObject:
				row := elemCtx.Clone()
				flattenProps(row, "", item, name)
				if nested := fanOut(item, row); len(nested) > 0 {
					rows = append(rows, nested...)
				} else {
					rows = append(rows, row)
				}
			case document.KindCollection:
				rows = append(rows, group(item, name, elemCtx)...)
			default:
				elemCtx[name+valueSuffix] = item.Value()
				rows = append(rows, elemCtx)
			}
		}

	case document.KindObject:
		if !document.HasComposite(v) {
			row := ctx.Clone()
			flattenProps(row, "", v, "")
			if len(row) > 0 {
				rows = append(rows, row)
			}
			break
		}
		for _, f := range v.Fields() {
			if !f.Value.IsScalar() {
				rows = append(rows, group(f.Value, f.Key, ctx)...)
			}
		}
	}
	return rows
}

// fanOut groups every collection reachable from obj through nested objects,
// using row as the inherited context.
func fanOut(obj *document.Node, row table.Row) []table.Row {
	var rows []table.Row
	for _, f := range obj.Fields() {
		switch f.Value.Kind() {
		case document.KindCollection:
			rows = append(rows, group(f.Value, f.Key, row)...)
		case document.KindObject:
			rows = append(rows, fanOut(f.Value, row)...)
		}
	}
	return rows
}

func flattenProps(row table.Row, prefix string, obj *document.Node, arrayName string) {
	for _, f := range obj.Fields() {
		col := f.Key
		switch {
		case prefix != "":
			col = prefix + "." + f.Key
		case arrayName != "":
			col = Singular(arrayName) + "." + f.Key
		}
		switch f.Value.Kind() {
		case document.KindObject:
			flattenProps(row, col, f.Value, arrayName)
		case document.KindScalar:
			row[col] = f.Value.Value()
		}
	}
}

// Singular strips one trailing "s" from names longer than two characters
// (Meters -> Meter, ids -> id, as -> as).
func Singular(name string) string {
	if strings.HasSuffix(name, "s") && utf8.RuneCountInString(name) > 2 {
		return name[:len(name)-1]
	}
	return name
}

// Ambiguities lists the paths of collection elements that reach more than one
// collection through their own properties and nested objects. Grouping such an
// element concatenates rows of unrelated collections. Paths use the leaf path
// syntax, with the envelope key when the root was unwrapped.
func Ambiguities(n *document.Node) []string {
	v, unwrapped := document.UnwrapEnvelope(n)
	path := ""
	if unwrapped {
		env, _ := document.SingleKey(n)
		path = env.Key
	}
	var out []string
	ambiguities(v, path, &out)
	return out
}

func ambiguities(v *document.Node, path string, out *[]string) {
	switch v.Kind() {
	case document.KindCollection:
		for i, item := range v.Items() {
			p := path + "[" + strconv.Itoa(i) + "]"
			switch item.Kind() {
			case document.KindObject:
				colls := reachableCollections(item, p, nil)
				if len(colls) > 1 {
					*out = append(*out, p)
				}
				for _, c := range colls {
					ambiguities(c.Value, c.Key, out)
				}
			case document.KindCollection:
				ambiguities(item, p, out)
			}
		}
	case document.KindObject:
		for _, f := range v.Fields() {
			if f.Value.IsScalar() {
				continue
			}
			p := f.Key
			if path != "" {
				p = path + "." + f.Key
			}
			ambiguities(f.Value, p, out)
		}
	}
}

// reachableCollections returns the collections below obj reached through
// object properties only, keyed by their path.
func reachableCollections(obj *document.Node, path string, acc []document.Field) []document.Field {
	for _, f := range obj.Fields() {
		p := path + "." + f.Key
		switch f.Value.Kind() {
		case document.KindCollection:
			acc = append(acc, document.F(p, f.Value))
		case document.KindObject:
			acc = reachableCollections(f.Value, p, acc)
		}
	}
	return acc
}

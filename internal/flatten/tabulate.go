package flatten

import (
	"strconv"
	"strings"

	"docnorm/internal/document"
	"docnorm/internal/table"
)

// RootValueColumn names the column of a leaf whose path is empty (a scalar
// document).
const RootValueColumn = "Value"

// SplitPath splits a leaf path into segments on "." and "[" boundaries.
// Index segments keep their brackets; empty segments are dropped.
//
// Example:
//
//	"Profile[0].Meters.Meter[1].ID" -> [Profile [0] Meters Meter [1] ID]
func SplitPath(path string) []string {
	raw := strings.FieldsFunc(path, func(r rune) bool { return r == '.' || r == '[' })
	out := raw[:0]
	for _, p := range raw {
		if strings.HasSuffix(p, "]") {
			p = "[" + p
		}
		out = append(out, p)
	}
	return out
}

// IsIndexSegment reports whether seg is a pure collection index like "[3]".
func IsIndexSegment(seg string) bool {
	if len(seg) < 3 || seg[0] != '[' || seg[len(seg)-1] != ']' {
		return false
	}
	_, err := strconv.Atoi(seg[1 : len(seg)-1])
	return err == nil && seg[1] != '-' && seg[1] != '+'
}

// Tabulate groups leaves into rows.
//
// When no leaf path crosses a collection, the leaves describe a single record:
// the result is exactly one row whose columns are the full leaf paths
// ({"a":{"b":{"c":5}}} -> {"a.b.c": 5}).
//
// Otherwise the last path segment of each leaf is its metric and the segments
// before it are its prefix. Leaves with an identical prefix land in the same
// row, rows ordered by first appearance.
//
// Column naming policy for that case:
//   - Single root (every non-empty prefix starts with the same segment): the
//     column is the prefix without its first segment and without index
//     segments, joined with the metric by ".", e.g. Profile.Meters.Meter.Service.
//   - Otherwise the column is the metric alone, and Key1..KeyN columns carry
//     the raw prefix segments.
//
// The policy is not injective. Two leaves of one row that map to the same
// column resolve last-write-wins.
func Tabulate(leaves []Leaf) []table.Row {
	if len(leaves) == 0 {
		return nil
	}
	if !crossesCollection(leaves) {
		return []table.Row{singleRecord(leaves)}
	}

	type split struct {
		prefix []string
		metric string
		value  any
	}

	splits := make([]split, len(leaves))
	roots := map[string]struct{}{}
	for i, l := range leaves {
		parts := SplitPath(l.Path)
		s := split{value: l.Value, metric: RootValueColumn}
		if len(parts) > 0 {
			s.prefix = parts[:len(parts)-1]
			s.metric = parts[len(parts)-1]
		}
		if len(s.prefix) > 0 {
			roots[s.prefix[0]] = struct{}{}
		}
		splits[i] = s
	}
	singleRoot := len(roots) == 1

	var (
		order  []string
		groups = map[string]table.Row{}
		prefix = map[string][]string{}
	)
	for _, s := range splits {
		key := strings.Join(s.prefix, "|")
		row, ok := groups[key]
		if !ok {
			row = table.Row{}
			groups[key] = row
			prefix[key] = s.prefix
			order = append(order, key)
		}
		row[columnName(s.prefix, s.metric, singleRoot)] = s.value
	}

	rows := make([]table.Row, 0, len(order))
	for _, key := range order {
		row := groups[key]
		if !singleRoot {
			for i, seg := range prefix[key] {
				row["Key"+strconv.Itoa(i+1)] = seg
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func columnName(prefix []string, metric string, singleRoot bool) string {
	if !singleRoot || len(prefix) <= 1 {
		return metric
	}
	parts := make([]string, 0, len(prefix))
	for _, seg := range prefix[1:] {
		if !IsIndexSegment(seg) {
			parts = append(parts, seg)
		}
	}
	parts = append(parts, metric)
	return strings.Join(parts, ".")
}

func crossesCollection(leaves []Leaf) bool {
	for _, l := range leaves {
		for _, seg := range SplitPath(l.Path) {
			if IsIndexSegment(seg) {
				return true
			}
		}
	}
	return false
}

func singleRecord(leaves []Leaf) table.Row {
	row := make(table.Row, len(leaves))
	for _, l := range leaves {
		col := l.Path
		if col == "" {
			col = RootValueColumn
		}
		row[col] = l.Value
	}
	return row
}

// Record flattens n into a single row keyed by full leaf paths. A document
// without leaves ({} or []) becomes {"Value": <its JSON text>}.
func Record(n *document.Node) table.Row {
	leaves := Flatten(n)
	if len(leaves) == 0 {
		return table.Row{RootValueColumn: document.ScalarOrJSON(n)}
	}
	return singleRecord(leaves)
}

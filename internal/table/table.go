// Package table holds the row/table model produced by normalization.
//
// Rows are heterogeneous: two rows of the same table may carry different
// column sets. A table's columns are the union over all of its rows.
package table

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Synthetic linkage columns of hierarchical results.
const (
	IDColumn       = "_id"
	ParentIDColumn = "_parent_id"
)

// Row maps column name to scalar value (nil, bool, string, int64, float64).
type Row map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Kind classifies a table within a normalization result.
type Kind string

const (
	KindFlat   Kind = "flat"
	KindParent Kind = "parent"
	KindChild  Kind = "child"
)

// Table is a named, ordered sequence of rows.
type Table struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Rows []Row  `json:"rows"`
}

// Columns returns the union of keys across all rows, in default order.
func (t Table) Columns() []string {
	return Columns(t.Rows)
}

// Clone deep-copies the row slice so callers may reorder or extend it.
func (t Table) Clone() Table {
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Clone()
	}
	return Table{Name: t.Name, Kind: t.Kind, Rows: rows}
}

// Columns returns the union of keys across rows, ordered by OrderColumns.
func Columns(rows []Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	OrderColumns(cols)
	return cols
}

var (
	keyColumnRE = regexp.MustCompile(`^Key(\d+)$`)
	spaceRunRE  = regexp.MustCompile(`\s+`)
)

// OrderColumns sorts cols in place: "_Index"-suffixed columns first, then
// KeyN columns by N, then everything else in byte order.
func OrderColumns(cols []string) {
	sort.SliceStable(cols, func(i, j int) bool {
		return columnLess(cols[i], cols[j])
	})
}

func columnLess(a, b string) bool {
	ai, bi := strings.HasSuffix(a, "_Index"), strings.HasSuffix(b, "_Index")
	if ai != bi {
		return ai
	}
	an, aKey := keyNumber(a)
	bn, bKey := keyNumber(b)
	switch {
	case aKey && bKey:
		if an != bn {
			return an < bn
		}
		return a < b
	case aKey:
		return true
	case bKey:
		return false
	default:
		return a < b
	}
}

func keyNumber(s string) (int, bool) {
	m := keyColumnRE.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SnakeCase converts camelCase/PascalCase keys to snake_case table names:
// "_" before every upper-case ASCII letter, lower-cased, one leading "_"
// removed, whitespace runs collapsed to "_".
//
// Example:
//
//	"MeterReadings" -> "meter_readings"
//	"userID"        -> "user_i_d"
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	out := strings.ToLower(b.String())
	out = strings.TrimPrefix(out, "_")
	return spaceRunRE.ReplaceAllString(out, "_")
}

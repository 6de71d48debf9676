package storage

import (
	"strconv"
	"strings"

	"docnorm/internal/table"
)

// ColumnType is the portable column type inferred from table values. Backends
// map it to their own dialect.
type ColumnType string

const (
	TypeNumeric ColumnType = "NUMERIC"
	TypeBoolean ColumnType = "BOOLEAN"
	TypeText    ColumnType = "TEXT"
)

// TableSpec describes one table to (re)create.
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// ColumnSpec is one column of a TableSpec.
type ColumnSpec struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// InferColumns derives a column spec for every column of t, in default column
// order. Per column, all non-null values are scanned: NUMERIC if any is a
// number, else BOOLEAN if any is a bool, else TEXT. A column holding only
// nulls is TEXT.
func InferColumns(t table.Table) []ColumnSpec {
	cols := t.Columns()
	out := make([]ColumnSpec, len(cols))
	for i, c := range cols {
		out[i] = ColumnSpec{Name: c, Type: inferType(t.Rows, c)}
	}
	return out
}

func inferType(rows []table.Row, col string) ColumnType {
	var sawBool bool
	for _, r := range rows {
		switch r[col].(type) {
		case int, int64, float64:
			return TypeNumeric
		case bool:
			sawBool = true
		}
	}
	if sawBool {
		return TypeBoolean
	}
	return TypeText
}

// SpecFor builds the TableSpec of t.
func SpecFor(t table.Table) TableSpec {
	return TableSpec{Name: t.Name, Columns: InferColumns(t)}
}

// Values aligns rows with columns and coerces each cell to its column type;
// missing cells become nil.
func Values(rows []table.Row, columns []ColumnSpec) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(columns))
		for j, c := range columns {
			vals[j] = Coerce(r[c.Name], c.Type)
		}
		out[i] = vals
	}
	return out
}

// Coerce converts a table scalar to a value storable in a column of type ct.
//
// Rules:
//   - nil stays nil.
//   - NUMERIC: numbers pass; bools become 1/0; numeric strings are parsed;
//     any other string becomes nil.
//   - BOOLEAN: bools pass; strings accepted by strconv.ParseBool are parsed;
//     anything else becomes nil.
//   - TEXT: strings pass; other scalars are formatted.
func Coerce(v any, ct ColumnType) any {
	if v == nil {
		return nil
	}
	switch ct {
	case TypeNumeric:
		switch t := v.(type) {
		case int64, float64:
			return t
		case int:
			return int64(t)
		case bool:
			if t {
				return int64(1)
			}
			return int64(0)
		case string:
			s := strings.TrimSpace(t)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return nil
	case TypeBoolean:
		switch t := v.(type) {
		case bool:
			return t
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b
			}
		}
		return nil
	default:
		switch t := v.(type) {
		case string:
			return t
		case bool:
			return strconv.FormatBool(t)
		case int64:
			return strconv.FormatInt(t, 10)
		case int:
			return strconv.Itoa(t)
		case float64:
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
		return nil
	}
}

// BatchRows splits rows so that no statement carries more than maxParams
// bind parameters. Each chunk has at least one row.
func BatchRows(rows [][]any, columns, maxParams int) [][][]any {
	per := len(rows)
	if columns > 0 && maxParams > 0 {
		per = maxParams / columns
	}
	if per < 1 {
		per = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

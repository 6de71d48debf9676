package storage

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"docnorm/internal/table"
)

// QueryResult is the tabular result of Repository.Query, shaped like view
// rows so it can be rendered and exported the same way.
type QueryResult struct {
	Columns []string
	Rows    []table.Row
}

// ScanRows drains a database/sql result set into a QueryResult. Values are
// converted with NormalizeValue. Duplicate column names keep the last value
// per row.
func ScanRows(rows *sql.Rows) (QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}
	res := QueryResult{Columns: cols}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, err
		}
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[c] = NormalizeValue(vals[i])
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

// NormalizeValue converts a driver value to a table scalar (nil, bool,
// string, int64, float64).
//
// Backends must not assume a particular driver type for a column; this keeps
// query results consistent across backends.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return t
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, again := dv.(driver.Valuer); again {
			return fmt.Sprint(dv)
		}
		return NormalizeValue(dv)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return fmt.Sprint(v)
	}
}

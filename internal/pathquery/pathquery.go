// Package pathquery evaluates JSONPath expressions against a document and
// shapes the matches as table rows.
package pathquery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"docnorm/internal/document"
	"docnorm/internal/metrics"
	"docnorm/internal/table"
)

// Column names of rows built from non-object matches.
const (
	IndexColumn = "index"
	ValueColumn = "value"
)

// ErrPath is matched by every expression failure returned from Evaluate.
var ErrPath = errors.New("invalid path expression")

// Error reports an expression that could not be parsed.
type Error struct {
	Expr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("JSONPath query error: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPath) true for every *Error.
func (e *Error) Is(target error) bool { return target == ErrPath }

// Evaluate runs expr against n.
//
// Match shaping:
//   - no match: zero rows;
//   - an object match becomes one row; nested objects are flattened under
//     dotted names and nested collections are kept as JSON text;
//   - any other match becomes {index, value}, index being its position in the
//     match list and composites JSON text.
//
// A single object match therefore yields one row, a list of objects one row
// each.
func Evaluate(n *document.Node, expr string) (rows []table.Row, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(err, time.Since(start)) }()

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &Error{Expr: expr, Err: errors.New("empty expression")}
	}
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, &Error{Expr: expr, Err: err}
	}
	if n == nil {
		return nil, nil
	}

	matches := x.Get(n.ToAny())
	rows = make([]table.Row, 0, len(matches))
	for i, m := range matches {
		node := document.FromAny(m)
		if node.IsObject() {
			row := table.Row{}
			flattenObject(row, "", node)
			rows = append(rows, row)
			continue
		}
		rows = append(rows, table.Row{IndexColumn: int64(i), ValueColumn: document.ScalarOrJSON(node)})
	}
	return rows, nil
}

func flattenObject(row table.Row, prefix string, obj *document.Node) {
	for _, f := range obj.Fields() {
		key := f.Key
		if prefix != "" {
			key = prefix + "." + f.Key
		}
		if f.Value.IsObject() && f.Value.Len() > 0 {
			flattenObject(row, key, f.Value)
			continue
		}
		row[key] = document.ScalarOrJSON(f.Value)
	}
}

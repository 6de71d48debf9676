// Package export renders rows as CSV, JSON or a Markdown table.
//
// Cells are rendered with the same string coercion the view engine filters
// on, so an exported value reads exactly as it matched.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"docnorm/internal/table"
	"docnorm/internal/view"
)

// Format names an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat maps a user-supplied name to a Format ("md" is accepted).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("export: unknown format %q", s)
	}
}

// Write renders rows in format f.
func Write(w io.Writer, f Format, columns []string, rows []table.Row) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, columns, rows)
	case FormatJSON:
		return WriteJSON(w, columns, rows)
	case FormatMarkdown:
		return WriteMarkdown(w, columns, rows)
	default:
		return fmt.Errorf("export: unknown format %q", f)
	}
}

func columnsOr(columns []string, rows []table.Row) []string {
	if len(columns) > 0 {
		return columns
	}
	return table.Columns(rows)
}

// WriteCSV writes a header line and one line per row. Every field is quoted
// and embedded quotes are doubled. A missing cell is written as "undefined",
// a null one as "null".
func WriteCSV(w io.Writer, columns []string, rows []table.Row) error {
	columns = columnsOr(columns, rows)
	bw := bufio.NewWriter(w)

	fields := make([]string, len(columns))
	for i, c := range columns {
		fields[i] = csvQuote(c)
	}
	bw.WriteString(strings.Join(fields, ","))
	bw.WriteByte('\n')

	for _, r := range rows {
		for i, c := range columns {
			v, ok := r[c]
			fields[i] = csvQuote(view.Stringify(v, ok))
		}
		bw.WriteString(strings.Join(fields, ","))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteJSON writes rows as an indented JSON array of objects whose keys follow
// columns. Missing cells are omitted.
func WriteJSON(w io.Writer, columns []string, rows []table.Row) error {
	columns = columnsOr(columns, rows)
	bw := bufio.NewWriter(w)

	if len(rows) == 0 {
		bw.WriteString("[]\n")
		return bw.Flush()
	}

	bw.WriteString("[\n")
	for i, r := range rows {
		bw.WriteString("  {")
		first := true
		for _, c := range columns {
			v, ok := r[c]
			if !ok {
				continue
			}
			key, err := json.Marshal(c)
			if err != nil {
				return err
			}
			val, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("export: column %s: %w", c, err)
			}
			if first {
				bw.WriteString("\n")
				first = false
			} else {
				bw.WriteString(",\n")
			}
			bw.WriteString("    ")
			bw.Write(key)
			bw.WriteString(": ")
			bw.Write(val)
		}
		if !first {
			bw.WriteString("\n  ")
		}
		bw.WriteString("}")
		if i < len(rows)-1 {
			bw.WriteString(",")
		}
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

// WriteMarkdown writes a GitHub flavored Markdown table. "|" is escaped,
// newlines become spaces, and null or missing cells are empty.
func WriteMarkdown(w io.Writer, columns []string, rows []table.Row) error {
	columns = columnsOr(columns, rows)
	bw := bufio.NewWriter(w)

	seps := make([]string, len(columns))
	for i := range seps {
		seps[i] = "---"
	}
	bw.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	bw.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	cells := make([]string, len(columns))
	for _, r := range rows {
		for i, c := range columns {
			v, ok := r[c]
			if !ok || v == nil {
				cells[i] = ""
				continue
			}
			s := view.Stringify(v, true)
			s = strings.ReplaceAll(s, "|", `\|`)
			cells[i] = strings.ReplaceAll(s, "\n", " ")
		}
		bw.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return bw.Flush()
}

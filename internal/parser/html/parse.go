// Package html turns an HTML page into a document. It is never chosen by
// format detection; callers ask for it explicitly.
//
// Two modes:
//   - table mode (default): every <table> becomes a collection of row objects
//     keyed by its header cells.
//   - record mode: when Options.Mappings is set, each element matched by
//     RecordSelector becomes one object built from CSS-selector mappings.
package html

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"docnorm/internal/document"
)

// Options selects the extraction mode.
type Options struct {
	// RecordSelector scopes mappings in record mode. Empty means the whole
	// document is one record.
	RecordSelector string `json:"record_selector,omitempty" mapstructure:"record_selector"`

	// Mappings switches to record mode when non-empty.
	Mappings []Mapping `json:"mappings,omitempty" mapstructure:"mappings"`
}

// Parse reads HTML from r.
//
// Result shape:
//   - table mode, one table:     {"rows": [...]}
//   - table mode, many tables:   {"tables": [{"rows": [...]}, ...]}
//   - table mode, no tables:     {"rows": []}
//   - record mode:               {"records": [...]}
//
// Errors:
//   - Returns an error if the markup cannot be read or a mapping regex is invalid.
func Parse(ctx context.Context, r io.Reader, opt Options) (*document.Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("html: parse: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(opt.Mappings) > 0 {
		recs, err := extractRecords(doc.Selection, opt.RecordSelector, opt.Mappings)
		if err != nil {
			return nil, err
		}
		return document.Object(document.F("records", document.Collection(recs...))), nil
	}

	var tables []*document.Node
	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		// Nested tables are picked up on their own.
		tables = append(tables, tableRows(tbl))
	})

	switch len(tables) {
	case 0:
		return document.Object(document.F("rows", document.Collection())), nil
	case 1:
		return document.Object(document.F("rows", tables[0])), nil
	default:
		wrapped := make([]*document.Node, len(tables))
		for i, t := range tables {
			wrapped[i] = document.Object(document.F("rows", t))
		}
		return document.Object(document.F("tables", document.Collection(wrapped...))), nil
	}
}

// tableRows converts one <table>. The first row containing <th> cells supplies
// the headers; without one, columns are named column_1..column_N.
func tableRows(tbl *goquery.Selection) *document.Node {
	var headers []string
	var rows []*document.Node

	trs := tbl.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		// Skip rows that belong to a nested table.
		return tr.Closest("table").IsSelection(tbl)
	})

	trs.Each(func(_ int, tr *goquery.Selection) {
		ths := tr.ChildrenFiltered("th")
		tds := tr.ChildrenFiltered("td")
		if headers == nil && ths.Length() > 0 && tds.Length() == 0 {
			ths.Each(func(i int, th *goquery.Selection) {
				h := cellText(th)
				if h == "" {
					h = "column_" + strconv.Itoa(i+1)
				}
				headers = append(headers, h)
			})
			return
		}

		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		fields := make([]document.Field, 0, cells.Length())
		cells.Each(func(i int, cell *goquery.Selection) {
			name := "column_" + strconv.Itoa(i+1)
			if i < len(headers) {
				name = headers[i]
			}
			fields = append(fields, document.F(name, document.Scalar(cellText(cell))))
		})
		rows = append(rows, document.Object(fields...))
	})

	return document.Collection(rows...)
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

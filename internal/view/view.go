// Package view filters, searches and sorts normalized tables for display.
//
// Views never mutate the input rows. For parent tables with children, filters
// and search propagate upward: a parent row is visible when one of its linked
// child rows (by _parent_id) matches.
package view

import (
	"cmp"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"docnorm/internal/table"
)

// Logger is the minimal logging interface used by the view engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// DefaultRegexCacheSize bounds the compiled regex cache when the Engine does
// not set one.
const DefaultRegexCacheSize = 128

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortSpec selects the single sort column. An empty Column disables sorting.
type SortSpec struct {
	Column    string    `json:"column" mapstructure:"column"`
	Direction Direction `json:"direction" mapstructure:"direction"`
}

// Query is one view request.
type Query struct {
	Filters []Predicate `json:"filters" mapstructure:"filters"`
	Search  string      `json:"search" mapstructure:"search"`

	// Columns selects and orders the visible columns, which are also the
	// columns searched. Empty means every column of the table.
	Columns []string `json:"columns" mapstructure:"columns"`

	Sort SortSpec `json:"sort" mapstructure:"sort"`
}

// View is the result of Apply.
type View struct {
	Columns     []string
	Rows        []table.Row
	Diagnostics []string
}

// Engine applies queries. The zero value is ready to use and safe for
// concurrent use.
type Engine struct {
	Logger Logger

	// RegexCacheSize caps the compiled regex cache (DefaultRegexCacheSize when
	// <= 0).
	RegexCacheSize int

	once  sync.Once
	cache *lru.Cache[string, compiled]
}

func (e *Engine) init() {
	e.once.Do(func() {
		size := e.RegexCacheSize
		if size <= 0 {
			size = DefaultRegexCacheSize
		}
		c, err := lru.New[string, compiled](size)
		if err != nil {
			panic(fmt.Sprintf("view: regex cache: %v", err))
		}
		e.cache = c
	})
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

// evaluator carries per-Apply state; cases.Caser is not safe for concurrent use.
type evaluator struct {
	cache       *lru.Cache[string, compiled]
	folder      cases.Caser
	badPatterns map[string]struct{}
	diags       []string
	logf        func(format string, v ...any)
}

func (ev *evaluator) fold(s string) string { return ev.folder.String(s) }

func (ev *evaluator) diagf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	ev.diags = append(ev.diags, msg)
	ev.logf("stage=view %s", msg)
}

// Apply filters, searches and sorts t. children are the child tables linked to
// t when t is a parent table; pass nil otherwise.
//
// Filters are ANDed. Search is a case-insensitive substring match ORed across
// the selected columns (and across the non-underscore columns of linked child
// rows), ANDed with the filters. Sorting is stable.
func (e *Engine) Apply(t table.Table, children []table.Table, q Query) View {
	e.init()
	ev := &evaluator{
		cache:       e.cache,
		folder:      cases.Fold(),
		badPatterns: map[string]struct{}{},
		logf:        e.logger(),
	}

	cols := q.Columns
	if len(cols) == 0 {
		cols = t.Columns()
	} else {
		cols = append([]string(nil), cols...)
	}

	links := linkChildren(children)
	search := ev.fold(q.Search)

	rows := make([]table.Row, 0, len(t.Rows))
	for i, r := range t.Rows {
		linked := links[parentKey(r, i)]
		if !ev.passesFilters(r, linked, q.Filters) {
			continue
		}
		if search != "" && !ev.matchesSearch(r, linked, cols, search) {
			continue
		}
		rows = append(rows, r)
	}

	if q.Sort.Column != "" {
		sortRows(rows, q.Sort)
	}
	return View{Columns: cols, Rows: rows, Diagnostics: ev.diags}
}

func (ev *evaluator) passesFilters(r table.Row, linked []table.Row, filters []Predicate) bool {
	for _, p := range filters {
		if p.vacuous() {
			continue
		}
		v, ok := r[p.Column]
		if ev.match(p, v, ok) {
			continue
		}
		if !anyChild(linked, func(c table.Row) bool {
			cv, ok := c[p.Column]
			return ok && ev.match(p, cv, true)
		}) {
			return false
		}
	}
	return true
}

func (ev *evaluator) matchesSearch(r table.Row, linked []table.Row, cols []string, term string) bool {
	for _, c := range cols {
		v, ok := r[c]
		if strings.Contains(ev.fold(Stringify(v, ok)), term) {
			return true
		}
	}
	return anyChild(linked, func(c table.Row) bool {
		for k, v := range c {
			if strings.HasPrefix(k, "_") {
				continue
			}
			if strings.Contains(ev.fold(Stringify(v, true)), term) {
				return true
			}
		}
		return false
	})
}

func anyChild(rows []table.Row, fn func(table.Row) bool) bool {
	for _, r := range rows {
		if fn(r) {
			return true
		}
	}
	return false
}

// linkChildren indexes every child row by its _parent_id.
func linkChildren(children []table.Table) map[string][]table.Row {
	if len(children) == 0 {
		return nil
	}
	out := map[string][]table.Row{}
	for _, c := range children {
		for _, r := range c.Rows {
			pid, ok := r[table.ParentIDColumn]
			if !ok {
				continue
			}
			k := idKey(pid)
			out[k] = append(out[k], r)
		}
	}
	return out
}

// parentKey is the row's _id, or its position when it has none.
func parentKey(r table.Row, pos int) string {
	if id, ok := r[table.IDColumn]; ok {
		return idKey(id)
	}
	return idKey(int64(pos))
}

// idKey normalizes ids so 3, int64(3) and 3.0 link together.
func idKey(v any) string {
	switch v.(type) {
	case int, int64, float64:
		return formatNumber(ToNumber(v, true))
	}
	return Stringify(v, true)
}

// ChildRows returns, per child table, the rows linked to parentID. Tables with
// no linked rows are omitted.
func ChildRows(children []table.Table, parentID any) []table.Table {
	want := idKey(parentID)
	var out []table.Table
	for _, c := range children {
		var rows []table.Row
		for _, r := range c.Rows {
			if pid, ok := r[table.ParentIDColumn]; ok && idKey(pid) == want {
				rows = append(rows, r)
			}
		}
		if len(rows) > 0 {
			out = append(out, table.Table{Name: c.Name, Kind: c.Kind, Rows: rows})
		}
	}
	return out
}

// sortRows sorts in place by one column. When every non-null cell of the
// column is a string, strings compare lower-cased and nulls sort as 0.
// Otherwise cells rank as numbers (numeric strings included, compared as
// numbers), then remaining strings (lower-cased), then cells with no numeric
// value. Equal keys keep their input order.
func sortRows(rows []table.Row, s SortSpec) {
	lower := cases.Lower(language.Und)
	textual := allStrings(rows, s.Column)

	keyed := make([]sortKey, len(rows))
	for i, r := range rows {
		v, ok := r[s.Column]
		keyed[i] = newSortKey(lower, v, ok, textual)
		keyed[i].row = r
	}
	desc := s.Direction == Desc
	sort.SliceStable(keyed, func(i, j int) bool {
		c := keyed[i].compare(keyed[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	for i := range keyed {
		rows[i] = keyed[i].row
	}
}

const (
	rankNumber = iota
	rankText
	rankNone
)

type sortKey struct {
	rank int
	num  float64
	text string
	row  table.Row
}

func newSortKey(lower cases.Caser, v any, present, textual bool) sortKey {
	if s, ok := v.(string); ok {
		if textual {
			return sortKey{rank: rankText, text: lower.String(s)}
		}
		if n := ToNumber(s, true); !math.IsNaN(n) {
			return sortKey{rank: rankNumber, num: n}
		}
		return sortKey{rank: rankText, text: lower.String(s)}
	}
	if n := ToNumber(v, present); !math.IsNaN(n) {
		return sortKey{rank: rankNumber, num: n}
	}
	return sortKey{rank: rankNone}
}

func (k sortKey) compare(o sortKey) int {
	if k.rank != o.rank {
		return cmp.Compare(k.rank, o.rank)
	}
	switch k.rank {
	case rankNumber:
		return cmp.Compare(k.num, o.num)
	case rankText:
		return strings.Compare(k.text, o.text)
	}
	return 0
}

func allStrings(rows []table.Row, col string) bool {
	for _, r := range rows {
		switch r[col].(type) {
		case nil, string:
		default:
			return false
		}
	}
	return true
}

// Package normalize routes a parsed document to the flattener, the grouped
// normalizer or the hierarchical decomposer and returns the resulting tables.
package normalize

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docnorm/internal/decompose"
	"docnorm/internal/document"
	"docnorm/internal/flatten"
	"docnorm/internal/grouped"
	"docnorm/internal/metrics"
	"docnorm/internal/parser"
	"docnorm/internal/structure"
	"docnorm/internal/table"

	"github.com/google/uuid"
)

// FlatTableName names the single table of flat and grouped results.
const FlatTableName = "json_data"

// Logger is the minimal logging interface used by Normalize.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Mode selects how single-collection documents are tabulated.
type Mode string

const (
	// ModeGrouped fans rows out to the deepest collection (default).
	ModeGrouped Mode = "grouped"
	// ModeFlattened groups leaf paths by prefix, ignoring the classifier's
	// route.
	ModeFlattened Mode = "flattened"
)

// ParseMode maps a user-supplied name to a Mode; "" means ModeGrouped.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeGrouped):
		return ModeGrouped, nil
	case string(ModeFlattened), "flat":
		return ModeFlattened, nil
	default:
		return "", fmt.Errorf("normalize: unknown mode %q", s)
	}
}

// Options controls Normalize and Convert.
type Options struct {
	Mode   Mode
	Parser parser.Options
	Logger Logger

	// Yield, when set, is called with the name of each stage before it runs.
	// Hosts use it to keep a control loop responsive on large documents.
	Yield func(stage string)
}

func (o Options) logger() func(format string, v ...any) {
	if o.Logger == nil {
		return log.New(discardWriter{}, "", 0).Printf
	}
	return o.Logger.Printf
}

// Result is the table set derived from one document. All tables of a result
// are built before it is returned; none is mutated afterwards.
type Result struct {
	RunID    string
	Route    structure.Route
	Analysis structure.Analysis

	// Parent is the only table of flat and grouped results.
	Parent   table.Table
	Children []table.Table

	// Diagnostics are non-fatal findings, e.g. a re-routed ambiguous document.
	Diagnostics []string
}

// Tables lists the parent followed by the children.
func (r *Result) Tables() []table.Table {
	out := make([]table.Table, 0, 1+len(r.Children))
	out = append(out, r.Parent)
	return append(out, r.Children...)
}

// Table returns the table called name.
func (r *Result) Table(name string) (table.Table, bool) {
	for _, t := range r.Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return table.Table{}, false
}

// Hierarchical reports whether the result has parent/child linkage.
func (r *Result) Hierarchical() bool { return r.Route == structure.RouteHierarchical }

// Normalize classifies n and builds its tables.
//
// Routing:
//   - no collection anywhere: one flat row of full leaf paths;
//   - sibling collections: parent and child tables;
//   - a single collection path: grouped rows, unless some element holds more
//     than one collection, in which case the document is decomposed and a
//     diagnostic names the offending paths;
//   - ModeFlattened: leaf paths grouped by prefix regardless of route.
//
// Every document yields at least one row. ctx is checked between stages;
// cancellation returns ctx.Err() and no result.
func Normalize(ctx context.Context, n *document.Node, opt Options) (*Result, error) {
	if n == nil {
		return nil, fmt.Errorf("normalize: nil document")
	}
	mode := opt.Mode
	if mode == "" {
		mode = ModeGrouped
	}
	logf := opt.logger()
	start := time.Now()

	res := &Result{RunID: uuid.NewString()}

	if err := checkpoint(ctx, opt, "classify"); err != nil {
		return nil, err
	}
	t0 := time.Now()
	res.Analysis = structure.Classify(n)
	res.Route = structure.RouteFor(res.Analysis, n)
	metrics.RecordStage("classify", nil, time.Since(t0))
	logf("stage=classify run=%s route=%s nested_arrays=%d duration=%s",
		res.RunID, res.Route, len(res.Analysis.NestedArrays), durMS(t0))

	if mode == ModeFlattened {
		res.Route = structure.RouteFlat
	} else if res.Route == structure.RouteGrouped {
		if paths := grouped.Ambiguities(n); len(paths) > 0 {
			res.Route = structure.RouteHierarchical
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf(
				"multiple sibling collections inside %s; decomposed into parent and child tables", strings.Join(paths, ", ")))
			logf("stage=classify run=%s rerouted=hierarchical ambiguous=%d", res.RunID, len(paths))
		}
	}

	stage := stageName(res.Route)
	if err := checkpoint(ctx, opt, stage); err != nil {
		return nil, err
	}
	t1 := time.Now()
	switch res.Route {
	case structure.RouteHierarchical:
		h := decompose.Decompose(n, res.Analysis)
		res.Parent, res.Children = h.Parent, h.Children
	case structure.RouteGrouped:
		res.Parent = flatTable(grouped.GroupByDeepestArray(n))
	default:
		rows := flatten.Tabulate(flatten.Flatten(n))
		if len(rows) == 0 {
			rows = []table.Row{flatten.Record(n)}
		}
		res.Parent = flatTable(rows)
	}
	metrics.RecordStage(stage, nil, time.Since(t1))
	logf("stage=%s run=%s tables=%d rows=%d duration=%s",
		stage, res.RunID, 1+len(res.Children), len(res.Parent.Rows), durMS(t1))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics.RecordDocument(res.Route.String())
	metrics.RecordRows(string(res.Parent.Kind), len(res.Parent.Rows))
	for _, c := range res.Children {
		metrics.RecordRows(string(c.Kind), len(c.Rows))
	}
	logf("stage=normalize run=%s ok duration=%s", res.RunID, durMS(start))
	return res, nil
}

// Convert parses text and normalizes the document. Parse failures are
// returned unchanged (errors.Is(err, parser.ErrMalformed)).
func Convert(ctx context.Context, text string, opt Options) (*Result, error) {
	logf := opt.logger()

	if err := checkpoint(ctx, opt, "parse"); err != nil {
		return nil, err
	}
	t0 := time.Now()
	n, format, err := parser.Parse(ctx, text, opt.Parser)
	metrics.RecordStage("parse", err, time.Since(t0))
	if err != nil {
		logf("stage=parse format=%s error=%v", format, err)
		return nil, err
	}
	logf("stage=parse format=%s bytes=%d duration=%s", format, len(text), durMS(t0))

	return Normalize(ctx, n, opt)
}

func checkpoint(ctx context.Context, opt Options, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opt.Yield != nil {
		opt.Yield(stage)
	}
	return nil
}

func stageName(r structure.Route) string {
	switch r {
	case structure.RouteHierarchical:
		return "decompose"
	case structure.RouteGrouped:
		return "group"
	default:
		return "tabulate"
	}
}

func flatTable(rows []table.Row) table.Table {
	return table.Table{Name: FlatTableName, Kind: table.KindFlat, Rows: rows}
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

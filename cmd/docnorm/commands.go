package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"docnorm/internal/document"
	"docnorm/internal/export"
	"docnorm/internal/loader"
	"docnorm/internal/metrics"
	"docnorm/internal/normalize"
	"docnorm/internal/parser"
	"docnorm/internal/parser/csv"
	"docnorm/internal/pathquery"
	"docnorm/internal/storage"
	"docnorm/internal/structure"
	"docnorm/internal/table"
	"docnorm/internal/view"
)

// flagGroup is a set of command flags that override part of the job.
type flagGroup interface {
	register(cmd *cobra.Command)
	apply(cmd *cobra.Command, a *app) error
}

// applyFlags copies explicitly set flags of every group onto a.job.
func (a *app) applyFlags(cmd *cobra.Command, groups ...flagGroup) error {
	for _, g := range groups {
		if err := g.apply(cmd, a); err != nil {
			return err
		}
	}
	return nil
}

// inputFlags override the job's parser and normalize sections.
type inputFlags struct {
	format string
	mode   string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "input format: auto, json, xml, csv or html")
	cmd.Flags().StringVar(&f.mode, "mode", "", "normalization mode: grouped or flattened")
}

func (f *inputFlags) apply(cmd *cobra.Command, a *app) error {
	if cmd.Flags().Changed("format") {
		if _, err := parser.ParseFormat(f.format); err != nil {
			return &usageError{msg: err.Error()}
		}
		a.job.Parser.Format = f.format
	}
	if cmd.Flags().Changed("mode") {
		if _, err := normalize.ParseMode(f.mode); err != nil {
			return &usageError{msg: err.Error()}
		}
		a.job.Normalize.Mode = f.mode
	}
	return nil
}

// outputFlags override the job's export section.
type outputFlags struct {
	format string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "output", "o", "", "output format: csv, json or markdown")
}

func (f *outputFlags) apply(cmd *cobra.Command, a *app) error {
	if cmd.Flags().Changed("output") {
		if _, err := export.ParseFormat(f.format); err != nil {
			return &usageError{msg: err.Error()}
		}
		a.job.Export.Format = f.format
	}
	return nil
}

// storageFlags override the job's storage and runtime sections.
type storageFlags struct {
	kind      string
	dsn       string
	batchSize int
	workers   int
	rowHash   bool
}

func (f *storageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "storage", "", "storage backend: sqlite, postgres or mssql")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "storage DSN (sqlite default: private in-memory database)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "rows per insert batch")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent child-table loads")
	cmd.Flags().BoolVar(&f.rowHash, "row-hash", false, "add a row_hash column to every loaded table")
}

func (f *storageFlags) apply(cmd *cobra.Command, a *app) error {
	fl := cmd.Flags()
	if fl.Changed("storage") {
		a.job.Storage.Kind = f.kind
	}
	if fl.Changed("dsn") {
		a.job.Storage.DSN = f.dsn
	}
	if fl.Changed("batch-size") {
		if f.batchSize < 0 {
			return usageErrorf("--batch-size must be >= 0")
		}
		a.job.Runtime.BatchSize = f.batchSize
	}
	if fl.Changed("workers") {
		if f.workers < 0 {
			return usageErrorf("--workers must be >= 0")
		}
		a.job.Runtime.LoaderWorkers = f.workers
	}
	if fl.Changed("row-hash") {
		a.job.Runtime.RowHash = f.rowHash
	}
	return nil
}

// viewFlags override the job's view section.
type viewFlags struct {
	table   string
	search  string
	sort    string
	desc    bool
	filters []string
	columns []string
}

func (f *viewFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.table, "table", "", "table to show (default: the flat or parent table)")
	fl.StringVar(&f.search, "search", "", "case-insensitive search across the visible columns")
	fl.StringVar(&f.sort, "sort", "", "sort column")
	fl.BoolVar(&f.desc, "desc", false, "sort descending")
	fl.StringArrayVar(&f.filters, "filter", nil, "column filter COLUMN:OPERATOR[:VALUE], repeatable")
	fl.StringSliceVar(&f.columns, "columns", nil, "visible columns, comma separated")
}

func (f *viewFlags) apply(cmd *cobra.Command, a *app) error {
	fl := cmd.Flags()
	q := &a.job.View
	if fl.Changed("table") {
		q.Table = f.table
	}
	if fl.Changed("search") {
		q.Search = f.search
	}
	if fl.Changed("sort") {
		q.Sort.Column = f.sort
	}
	if fl.Changed("desc") {
		q.Sort.Direction = view.Asc
		if f.desc {
			q.Sort.Direction = view.Desc
		}
	}
	if fl.Changed("columns") {
		q.Columns = f.columns
	}
	for _, raw := range f.filters {
		p, err := parseFilter(raw)
		if err != nil {
			return err
		}
		q.Filters = append(q.Filters, p)
	}
	return nil
}

// parseFilter reads "column:operator[:value]". The value may itself contain
// ":".
func parseFilter(s string) (view.Predicate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return view.Predicate{}, usageErrorf("invalid --filter %q (want COLUMN:OPERATOR[:VALUE])", s)
	}
	p := view.Predicate{Column: parts[0], Operator: view.Operator(strings.ToLower(parts[1]))}
	if !p.Operator.Known() {
		return view.Predicate{}, usageErrorf("invalid --filter %q: unknown operator %q", s, parts[1])
	}
	if len(parts) == 3 {
		p.Value = parts[2]
	}
	return p, nil
}

func (a *app) convertCommand() *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
		st  storageFlags
		vf  viewFlags
		ld  bool
	)
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Normalize a document and print one of its tables",
		Long: `Normalize a document (stdin when no file is given or file is "-") and print
the selected table after filters, search and sort. Diagnostics go to stderr.
With --load every table is also written to the storage backend.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyFlags(cmd, &in, &out, &st, &vf); err != nil {
				return err
			}
			if cmd.Flags().Changed("load") {
				a.job.Storage.Load = ld
			}

			res, err := a.convert(args)
			if err != nil {
				return err
			}
			if a.job.Storage.Load {
				if err := a.withRepo(func(repo storage.Repository) error {
					return a.load(repo, res)
				}); err != nil {
					return err
				}
			}

			v, err := a.view(res)
			if err != nil {
				return err
			}
			for _, d := range v.Diagnostics {
				fmt.Fprintf(a.stderr, "note: %s\n", d)
			}
			return a.export(v.Columns, v.Rows)
		},
	}
	in.register(cmd)
	out.register(cmd)
	st.register(cmd)
	vf.register(cmd)
	cmd.Flags().BoolVar(&ld, "load", false, "load every table into the storage backend")
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
		st  storageFlags
	)
	cmd := &cobra.Command{
		Use:   "query <sql> [file]",
		Short: "Load a document's tables into storage and run a SQL query",
		Long: `Normalize a document, load every table into the storage backend (default:
a private in-memory sqlite database) and print the result of one SQL query.
Child tables join their parent on _parent_id = _id.`,
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyFlags(cmd, &in, &out, &st); err != nil {
				return err
			}
			if strings.TrimSpace(args[0]) == "" {
				return usageErrorf("empty query")
			}

			res, err := a.convert(args[1:])
			if err != nil {
				return err
			}
			return a.withRepo(func(repo storage.Repository) error {
				if err := a.load(repo, res); err != nil {
					return err
				}
				start := time.Now()
				qr, err := repo.Query(a.ctx, args[0])
				metrics.RecordQuery(err, time.Since(start))
				if err != nil {
					return err
				}
				return a.export(qr.Columns, qr.Rows)
			})
		},
	}
	in.register(cmd)
	out.register(cmd)
	st.register(cmd)
	return cmd
}

func (a *app) pathCommand() *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:   "path <jsonpath> [file]",
		Short: "Evaluate a JSONPath expression against a document",
		Args:  usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyFlags(cmd, &in, &out); err != nil {
				return err
			}
			n, err := a.parse(args[1:])
			if err != nil {
				return err
			}
			rows, err := pathquery.Evaluate(n, args[0])
			if err != nil {
				return err
			}
			return a.export(table.Columns(rows), rows)
		},
	}
	in.register(cmd)
	out.register(cmd)
	return cmd
}

func (a *app) classifyCommand() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Print the structure analysis and route of a document as JSON",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyFlags(cmd, &in); err != nil {
				return err
			}
			n, err := a.parse(args)
			if err != nil {
				return err
			}
			an := structure.Classify(n)
			out := struct {
				Route    structure.Route    `json:"route"`
				Analysis structure.Analysis `json:"analysis"`
			}{structure.RouteFor(an, n), an}

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	in.register(cmd)
	return cmd
}

func (a *app) tablesCommand() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "tables [file]",
		Short: "List the tables a document normalizes into",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyFlags(cmd, &in); err != nil {
				return err
			}
			res, err := a.convert(args)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tROWS\tCOLUMNS")
			for _, t := range res.Tables() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.Name, t.Kind, len(t.Rows), strings.Join(t.Columns(), ","))
			}
			return tw.Flush()
		},
	}
	in.register(cmd)
	return cmd
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the job config and exit",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, "ok")
			return nil
		},
	}
}

// readInput returns the document named by args[0] or the job's input path;
// "" and "-" read stdin.
func (a *app) readInput(args []string) (string, error) {
	path := a.job.Input.Path
	if len(args) > 0 {
		path = args[0]
	}
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		if a.deps.stdin == nil {
			return "", fmt.Errorf("read input: no stdin")
		}
		raw, err = io.ReadAll(a.deps.stdin)
	} else {
		raw, err = a.deps.readFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(raw), nil
}

func (a *app) parserOptions() (parser.Options, error) {
	f, err := parser.ParseFormat(a.job.Parser.Format)
	if err != nil {
		return parser.Options{}, err
	}
	return parser.Options{
		Format: f,
		CSV:    csv.OptionsFrom(a.job.Parser.Options),
		HTML:   a.job.Parser.HTML,
	}, nil
}

func (a *app) parse(args []string) (*document.Node, error) {
	popt, err := a.parserOptions()
	if err != nil {
		return nil, err
	}
	text, err := a.readInput(args)
	if err != nil {
		return nil, err
	}
	n, _, err := parser.Parse(a.ctx, text, popt)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return n, nil
}

func (a *app) convert(args []string) (*normalize.Result, error) {
	popt, err := a.parserOptions()
	if err != nil {
		return nil, err
	}
	mode, err := normalize.ParseMode(a.job.Normalize.Mode)
	if err != nil {
		return nil, err
	}
	text, err := a.readInput(args)
	if err != nil {
		return nil, err
	}
	res, err := normalize.Convert(a.ctx, text, normalize.Options{
		Mode:   mode,
		Parser: popt,
		Logger: a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(a.stderr, "note: %s\n", d)
	}
	return res, nil
}

func (a *app) withRepo(fn func(storage.Repository) error) error {
	kind := a.job.Storage.Kind
	if kind == "" {
		kind = "sqlite"
	}
	repo, err := a.deps.openRepo(a.ctx, storage.Config{Kind: kind, DSN: a.job.Storage.DSN})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()
	return fn(repo)
}

func (a *app) load(repo storage.Repository, res *normalize.Result) error {
	eng := &loader.Engine{
		Repo:   repo,
		Logger: a.logger,
		Options: loader.Options{
			BatchSize:     a.job.Runtime.BatchSize,
			Workers:       a.job.Runtime.LoaderWorkers,
			RowHash:       a.job.Runtime.RowHash,
			HashTrimSpace: a.job.Runtime.HashTrimSpace,
		},
	}
	rep, err := eng.Load(a.ctx, res)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if a.logger != nil {
		a.logger.Printf("loaded rows=%d tables=%d", rep.Rows(), len(rep.Tables))
	}
	return nil
}

func (a *app) view(res *normalize.Result) (view.View, error) {
	t := res.Parent
	if name := a.job.View.Table; name != "" {
		var ok bool
		if t, ok = res.Table(name); !ok {
			names := make([]string, 0, 1+len(res.Children))
			for _, other := range res.Tables() {
				names = append(names, other.Name)
			}
			return view.View{}, fmt.Errorf("unknown table %q (have %s)", name, strings.Join(names, ", "))
		}
	}
	var children []table.Table
	if t.Kind == table.KindParent {
		children = res.Children
	}
	e := &view.Engine{Logger: a.logger}
	return e.Apply(t, children, a.job.View.Query), nil
}

func (a *app) export(columns []string, rows []table.Row) error {
	f, err := export.ParseFormat(a.job.Export.Format)
	if err != nil {
		return err
	}
	return export.Write(a.stdout, f, columns, rows)
}

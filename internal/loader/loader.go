// Package loader writes normalized tables into a storage.Repository so they
// can be queried with SQL.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"docnorm/internal/metrics"
	"docnorm/internal/storage"
	"docnorm/internal/table"
)

// RowHashColumn is the optional fingerprint column added by Options.RowHash.
const RowHashColumn = "row_hash"

// DefaultBatchSize is the number of rows per InsertRows call.
const DefaultBatchSize = 1024

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// TableSource is anything that yields a table set, parent first
// (*normalize.Result, decompose.Hierarchy).
type TableSource interface {
	Tables() []table.Table
}

// Options controls a load.
type Options struct {
	// BatchSize bounds rows per insert call. <= 0 means DefaultBatchSize.
	BatchSize int
	// Workers bounds concurrent child-table loads. <= 1 loads sequentially.
	Workers int
	// RowHash adds a row_hash column holding table.RowHash of each row.
	RowHash bool
	// HashTrimSpace trims string values before hashing.
	HashTrimSpace bool
}

// Engine loads table sets into Repo.
type Engine struct {
	Repo    storage.Repository
	Logger  Logger
	Options Options
}

// TableReport summarizes one loaded table.
type TableReport struct {
	Name    string
	Rows    int64
	Batches int
}

// Report summarizes a load, tables in input order.
type Report struct {
	Tables []TableReport
}

// Rows is the total number of rows written.
func (r Report) Rows() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Load recreates every table of src in the repository and inserts its rows.
//
// The first table (the parent) is loaded before any child; children are
// loaded concurrently by a bounded worker pool. Tables without columns are
// skipped. On the first failure the remaining work is cancelled and the error
// returned; tables already written stay as they are.
func (e *Engine) Load(ctx context.Context, src TableSource) (rep Report, err error) {
	if e.Repo == nil {
		return Report{}, fmt.Errorf("loader: Repo is required")
	}
	logf := e.logger()
	start := time.Now()
	defer func() { metrics.RecordStage("load", err, time.Since(start)) }()

	plans := e.plan(src.Tables())
	if len(plans) == 0 {
		return Report{}, nil
	}
	for _, skipped := range skippedTables(src.Tables(), plans) {
		logf("stage=load table=%s skipped=no_columns", skipped)
	}

	ddlStart := time.Now()
	specs := make([]storage.TableSpec, len(plans))
	for i, p := range plans {
		specs[i] = p.spec
	}
	if err := e.Repo.EnsureTables(ctx, specs); err != nil {
		return Report{}, fmt.Errorf("loader: ensure tables: %w", err)
	}
	logf("stage=ddl tables=%d ok duration=%s", len(specs), durMS(ddlStart))

	rep.Tables = make([]TableReport, len(plans))
	if rep.Tables[0], err = e.loadTable(ctx, plans[0]); err != nil {
		return rep, err
	}
	if err := e.loadChildren(ctx, plans[1:], rep.Tables[1:]); err != nil {
		return rep, err
	}

	logf("stage=load tables=%d rows=%d ok duration=%s", len(plans), rep.Rows(), durMS(start))
	return rep, nil
}

type tablePlan struct {
	spec     storage.TableSpec
	dataCols []storage.ColumnSpec
	rows     []table.Row
}

func (e *Engine) plan(tables []table.Table) []tablePlan {
	out := make([]tablePlan, 0, len(tables))
	for _, t := range tables {
		cols := storage.InferColumns(t)
		if len(cols) == 0 {
			continue
		}
		spec := storage.TableSpec{Name: t.Name, Columns: cols}
		if e.Options.RowHash && !hasColumn(cols, RowHashColumn) {
			spec.Columns = append(append([]storage.ColumnSpec(nil), cols...),
				storage.ColumnSpec{Name: RowHashColumn, Type: storage.TypeText})
		}
		out = append(out, tablePlan{spec: spec, dataCols: cols, rows: t.Rows})
	}
	return out
}

func (e *Engine) loadChildren(ctx context.Context, plans []tablePlan, reports []TableReport) error {
	if len(plans) == 0 {
		return nil
	}
	if e.Options.Workers <= 1 {
		for i, p := range plans {
			r, err := e.loadTable(ctx, p)
			reports[i] = r
			if err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	// A panicking task never reaches its own wg.Done; the handler does it.
	pool, err := ants.NewPool(e.Options.Workers, ants.WithPanicHandler(func(v any) {
		fail(fmt.Errorf("loader: worker panic: %v", v))
		wg.Done()
	}))
	if err != nil {
		return fmt.Errorf("loader: worker pool: %w", err)
	}
	defer pool.Release()

	for i := range plans {
		wg.Add(1)
		if err := pool.Submit(func() {
			r, err := e.loadTable(ctx, plans[i])
			reports[i] = r
			if err != nil {
				fail(err)
			}
			wg.Done()
		}); err != nil {
			wg.Done()
			fail(fmt.Errorf("loader: submit %s: %w", plans[i].spec.Name, err))
			break
		}
	}
	wg.Wait()
	return firstErr
}

func (e *Engine) loadTable(ctx context.Context, p tablePlan) (TableReport, error) {
	logf := e.logger()
	start := time.Now()
	rep := TableReport{Name: p.spec.Name}

	batchSize := e.Options.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	columns := p.spec.ColumnNames()
	dataNames := make([]string, len(p.dataCols))
	for i, c := range p.dataCols {
		dataNames[i] = c.Name
	}
	hashOpt := table.HashOptions{TrimSpace: e.Options.HashTrimSpace}
	withHash := len(p.spec.Columns) > len(p.dataCols)

	for lo := 0; lo < len(p.rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		hi := lo + batchSize
		if hi > len(p.rows) {
			hi = len(p.rows)
		}
		batch := p.rows[lo:hi]
		values := storage.Values(batch, p.dataCols)
		if withHash {
			for i, r := range batch {
				values[i] = append(values[i], table.RowHash(r, dataNames, hashOpt))
			}
		}

		n, err := e.Repo.InsertRows(ctx, p.spec.Name, columns, values)
		rep.Rows += n
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return rep, err
			}
			return rep, fmt.Errorf("loader: table %s batch %d: %w", p.spec.Name, rep.Batches, err)
		}
		rep.Batches++
		metrics.RecordBatch()
	}
	metrics.RecordRows("loaded", int(rep.Rows))
	logf("stage=load table=%s rows=%d batches=%d duration=%s", rep.Name, rep.Rows, rep.Batches, durMS(start))
	return rep, nil
}

func hasColumn(cols []storage.ColumnSpec, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

func skippedTables(tables []table.Table, plans []tablePlan) []string {
	if len(tables) == len(plans) {
		return nil
	}
	kept := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		kept[p.spec.Name] = struct{}{}
	}
	var out []string
	for _, t := range tables {
		if _, ok := kept[t.Name]; !ok {
			out = append(out, t.Name)
		}
	}
	return out
}

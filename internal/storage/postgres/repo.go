package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docnorm/internal/storage"
)

// maxParams is the Postgres wire protocol limit on bind parameters.
const maxParams = 65535

/*
Repo implements storage.Repository for Postgres.

It provides:
  - drop + create of normalized tables (DOUBLE PRECISION / BOOLEAN / TEXT)
  - multi-row inserts with $n placeholders, chunked to the parameter limit
  - read queries returning database/sql-independent rows
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed Repo and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables drops and recreates each table inside one transaction, so a
// failed DDL leaves the previous tables in place.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range tables {
		dropSQL, createSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, dropSQL); err != nil {
			return fmt.Errorf("postgres: drop table %s: %w", t.Name, err)
		}
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return tx.Commit(ctx)
}

// InsertRows performs a bulk INSERT per chunk.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	for _, chunk := range storage.BatchRows(rows, len(columns), maxParams) {
		sql, args := buildInsertSQL(table, columns, chunk)
		cmd, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("postgres: insert into %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// Query runs q and collects every row.
func (r *Repo) Query(ctx context.Context, q string) (storage.QueryResult, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return storage.QueryResult{}, storage.WrapQueryErr(q, err)
	}
	defer rows.Close()

	res, err := collect(rows)
	if err != nil {
		return storage.QueryResult{}, storage.WrapQueryErr(q, err)
	}
	return res, nil
}

func collect(rows pgx.Rows) (storage.QueryResult, error) {
	fields := rows.FieldDescriptions()
	res := storage.QueryResult{Columns: make([]string, len(fields))}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return storage.QueryResult{}, err
		}
		row := make(map[string]any, len(vals))
		for i, v := range vals {
			row[res.Columns[i]] = storage.NormalizeValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t storage.ColumnType) string {
	switch t {
	case storage.TypeNumeric:
		return "DOUBLE PRECISION"
	case storage.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// buildCreateSQL builds the DROP and CREATE statements of t.
func buildCreateSQL(t storage.TableSpec) (dropSQL, createSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("postgres: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("postgres: table %s has no columns", t.Name)
	}

	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = pgIdent(c.Name) + " " + columnType(c.Type)
	}
	dropSQL = "DROP TABLE IF EXISTS " + pgIdent(t.Name)
	createSQL = "CREATE TABLE " + pgIdent(t.Name) + " (\n  " + strings.Join(defs, ",\n  ") + "\n)"
	return dropSQL, createSQL, nil
}

// buildInsertSQL constructs a single INSERT statement and its args for Postgres.
//
// It is pure and deterministic, so placeholder numbering is unit tested
// without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

var _ storage.Repository = (*Repo)(nil)

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"docnorm/internal/storage"
)

// DefaultDSN opens a private in-memory database.
const DefaultDSN = "file::memory:"

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER (32766 since 3.32).
const maxParams = 32000

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite column types are affinities; NUMERIC keeps integers as INTEGER
//     and other numbers as REAL, BOOLEAN stores 0/1.
//   - The pool is limited to one connection: every connection to
//     "file::memory:" would otherwise see its own empty database.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (DefaultDSN when empty) and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn := cfg.DSN
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables drops and recreates each table.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		dropSQL, createSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("sqlite: drop table %s: %w", t.Name, err)
		}
		if _, err := r.db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows performs multi-row inserts, chunked to the bind parameter limit.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var total int64
	for _, chunk := range storage.BatchRows(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(table, columns, chunk)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(chunk))
		}
		total += n
	}
	return total, nil
}

// Query runs q and scans every row.
func (r *Repo) Query(ctx context.Context, q string) (storage.QueryResult, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return storage.QueryResult{}, storage.WrapQueryErr(q, err)
	}
	defer rows.Close()

	res, err := storage.ScanRows(rows)
	if err != nil {
		return storage.QueryResult{}, storage.WrapQueryErr(q, err)
	}
	return res, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t storage.ColumnType) string {
	switch t {
	case storage.TypeNumeric:
		return "NUMERIC"
	case storage.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// buildCreateSQL generates the DROP and CREATE statements of t.
func buildCreateSQL(t storage.TableSpec) (dropSQL, createSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("sqlite: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("sqlite: table %s has no columns", t.Name)
	}

	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = sqlIdent(c.Name) + " " + columnType(c.Type)
	}
	dropSQL = "DROP TABLE IF EXISTS " + sqlIdent(t.Name)
	createSQL = fmt.Sprintf("CREATE TABLE %s (%s)", sqlIdent(t.Name), strings.Join(parts, ", "))
	return dropSQL, createSQL, nil
}

// buildInsertSQL constructs one multi-row INSERT with "?" placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row[:len(columns)]...)
	}
	return b.String(), args
}

var _ storage.Repository = (*Repo)(nil)

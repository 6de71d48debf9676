package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// registers the "sqlserver" database/sql driver
	_ "github.com/microsoft/go-mssqldb"

	"docnorm/internal/storage"
)

const (
	// maxParams stays below SQL Server's 2100 parameter limit per request.
	maxParams = 2000
	// maxRowsPerInsert is SQL Server's limit on row value expressions in one
	// INSERT ... VALUES.
	maxRowsPerInsert = 1000
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Column mapping: NUMERIC -> FLOAT, BOOLEAN -> BIT, TEXT -> NVARCHAR(MAX).
// Identifiers are bracket-quoted; placeholders are @pN.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver and
// validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables drops and recreates each table.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		dropSQL, createSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("mssql: drop table %s: %w", t.Name, err)
		}
		if _, err := r.db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows inserts rows in chunks bounded by both SQL Server limits.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	limit := maxParams
	if n := maxRowsPerInsert * len(columns); n < limit {
		limit = n
	}

	var total int64
	for _, chunk := range storage.BatchRows(rows, len(columns), limit) {
		q, args := buildBulkInsertSQL(table, columns, chunk)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: insert into %s: %w", table, err)
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

func columnType(t storage.ColumnType) string {
	switch t {
	case storage.TypeNumeric:
		return "FLOAT"
	case storage.TypeBoolean:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

// buildCreateSQL builds the DROP and CREATE statements of t.
func buildCreateSQL(t storage.TableSpec) (dropSQL, createSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("mssql: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}

	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = mssqlIdent(c.Name) + " " + columnType(c.Type) + " NULL"
	}
	dropSQL = "DROP TABLE IF EXISTS " + mssqlIdent(t.Name)
	createSQL = "CREATE TABLE " + mssqlIdent(t.Name) + " (" + strings.Join(defs, ", ") + ")"
	return dropSQL, createSQL, nil
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
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
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn             = (*sqlDB)(nil)
	_ storage.Repository = (*Repo)(nil)
)

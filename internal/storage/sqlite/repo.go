// Package sqlite is the SQLite storage backend (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sheetetl/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxParams = 32766

// Repo implements storage.Repository for SQLite. A DSN is a file path or
// "file:" URI.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database and checks connectivity. SQLite allows one writer,
// so the pool is capped at one connection.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
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

func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	q, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// Truncate deletes all rows; SQLite has no TRUNCATE.
func (r *Repo) Truncate(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM "+sqlIdent(table))
	return err
}

// InsertRows uses INSERT OR IGNORE when conflictColumns is set, which relies
// on the table's UNIQUE constraint. Statements are split to stay under the
// bind-parameter limit and run in one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, part := range storage.Chunks(rows, storage.RowsPerStatement(maxParams, len(columns))) {
		q, args := buildInsertSQL(table, columns, part, len(conflictColumns) > 0)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqlType(logical string) string {
	if logical == storage.TypeFloat {
		return "REAL"
	}
	return "TEXT"
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		col := sqlIdent(c.Name) + " " + sqlType(c.Type)
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(t.Unique) > 0 {
		cols := make([]string, len(t.Unique))
		for i, c := range t.Unique {
			cols[i] = sqlIdent(c)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func buildInsertSQL(table string, columns []string, rows [][]any, ignoreConflicts bool) (string, []any) {
	var b strings.Builder
	if ignoreConflicts {
		b.WriteString("INSERT OR IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}

// Package mssql is the SQL Server storage backend. It expects the
// "sqlserver" database/sql driver to be registered; internal/storage/all
// imports github.com/microsoft/go-mssqldb for that.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sheetetl/internal/storage"
)

const (
	// maxParams stays under SQL Server's 2100 bind-parameter limit.
	maxParams = 2000
	// maxValuesRows is the row limit of a VALUES table constructor.
	maxValuesRows = 1000
)

func init() {
	storage.Register("mssql", New)
}

// Repo implements storage.Repository for SQL Server. Table names may be
// schema-qualified ("dbo.unified").
type Repo struct {
	db *sql.DB
}

// New opens the database and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

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

func (r *Repo) Truncate(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, "TRUNCATE TABLE "+tableIdent(table))
	return err
}

// InsertRows avoids MERGE. With conflict columns it inserts through
// INSERT ... SELECT ... WHERE NOT EXISTS, after keeping only the first row
// per key in the batch: unlike ON CONFLICT, NOT EXISTS does not see rows
// from the same statement.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(conflictColumns) > 0 {
		var err error
		if rows, err = dedupeRowsByColumns(rows, columns, conflictColumns); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	per := min(maxValuesRows, storage.RowsPerStatement(maxParams, len(columns)))
	var total int64
	for _, part := range storage.Chunks(rows, per) {
		var q string
		var args []any
		if len(conflictColumns) > 0 {
			q, args = buildInsertNotExistsSQL(table, columns, part, conflictColumns)
		} else {
			q, args = buildBulkInsertSQL(table, columns, part)
		}
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

// dedupeRowsByColumns keeps the first row for each key, preserving order.
func dedupeRowsByColumns(rows [][]any, columns, keyColumns []string) ([][]any, error) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	idx := make([]int, len(keyColumns))
	for i, k := range keyColumns {
		p, ok := pos[k]
		if !ok {
			return nil, fmt.Errorf("dedupe column %q not present in columns", k)
		}
		idx[i] = p
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for _, i := range idx {
			fmt.Fprintf(&b, "%T:%v\x1f", row[i], row[i])
		}
		k := b.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// tableIdent quotes each part: "dbo.unified" -> [dbo].[unified].
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func identList(cols []string, prefix string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// sqlType maps logical types. Text keys are bounded so the UNIQUE index
// fits SQL Server's key size limit.
func sqlType(logical string) string {
	if logical == storage.TypeFloat {
		return "FLOAT"
	}
	return "NVARCHAR(255)"
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard, since SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		null := " NULL"
		if !c.Nullable {
			null = " NOT NULL"
		}
		parts = append(parts, mssqlIdent(c.Name)+" "+sqlType(c.Type)+null)
	}
	if len(t.Unique) > 0 {
		parts = append(parts, "UNIQUE ("+identList(t.Unique, "")+")")
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(t.Name, "'", "''"),
		tableIdent(t.Name),
		strings.Join(parts, ", "),
	), nil
}

// writeValues appends "(@p1, @p2), (@p3, @p4)" and returns the args.
func writeValues(b *strings.Builder, columns []string, rows [][]any) []any {
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
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList(columns, ""))
	b.WriteString(") VALUES ")
	args := writeValues(&b, columns, rows)
	return b.String(), args
}

// buildInsertNotExistsSQL materializes the batch as a derived table v and
// inserts the rows whose key is not yet in the target.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, keyColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList(columns, ""))
	b.WriteString(") SELECT ")
	b.WriteString(identList(columns, "v."))
	b.WriteString(" FROM (VALUES ")
	args := writeValues(&b, columns, rows)
	b.WriteString(") AS v(")
	b.WriteString(identList(columns, ""))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(tableIdent(table))
	b.WriteString(" t WHERE ")
	for i, k := range keyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(mssqlIdent(k))
		b.WriteString(" = v.")
		b.WriteString(mssqlIdent(k))
	}
	b.WriteString(")")
	return b.String(), args
}

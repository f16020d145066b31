// Package postgres is the Postgres storage backend (pgx/v5).
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetetl/internal/storage"
)

// maxParams is the protocol limit on bind parameters per statement.
const maxParams = 65535

func init() {
	storage.Register("postgres", New)
}

// Repo implements storage.Repository for Postgres. Table names may be
// schema-qualified ("reporting.unified").
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool and pings the server.
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

func (r *Repo) Close() { r.pool.Close() }

// EnsureTable creates the schema (if qualified) and the table.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (r *Repo) Truncate(ctx context.Context, table string) error {
	_, err := r.pool.Exec(ctx, "TRUNCATE TABLE "+tableIdent(table))
	return err
}

// InsertRows uses COPY when there is no conflict key, since COPY cannot skip
// duplicates. Otherwise it issues multi-row INSERT ... ON CONFLICT DO NOTHING
// statements inside one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(conflictColumns) == 0 {
		return r.pool.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for _, part := range storage.Chunks(rows, storage.RowsPerStatement(maxParams, len(columns))) {
		q, args := buildInsertSQL(table, columns, part, conflictColumns)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		total += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// splitQualifiedName splits "schema.table"; anything else is unqualified.
func splitQualifiedName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func identifier(name string) pgx.Identifier {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func tableIdent(name string) string { return identifier(name).Sanitize() }

func pgIdent(name string) string { return pgx.Identifier{name}.Sanitize() }

func pgType(logical string) string {
	if logical == storage.TypeFloat {
		return "DOUBLE PRECISION"
	}
	return "TEXT"
}

func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema) + ";"
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		col := pgIdent(c.Name) + " " + pgType(c.Type)
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(t.Unique) > 0 {
		parts = append(parts, "UNIQUE ("+identList(t.Unique)+")")
	}
	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", tableIdent(t.Name), strings.Join(parts, ",\n  "))
	return schemaSQL, tableSQL, nil
}

func identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}

// buildInsertSQL is pure so placeholder numbering and the ON CONFLICT clause
// can be tested without a server. Every row must be as wide as columns.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	b.WriteString(identList(columns))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(identList(conflictColumns))
		b.WriteString(") DO NOTHING")
	}
	return b.String(), args
}

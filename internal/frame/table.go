// Package frame is the in-process tabular engine used by the pipeline.
//
// A Table is an immutable value: a schema of named, typed columns plus rows of
// positional cells. Every operation (WithColumn, Drop, Unpivot, Join,
// GroupBySum, ...) returns a new Table and never mutates its receiver, so a
// table can be shared freely between pipeline stages.
//
// Cell values are limited to nil, string, float64 and int64, matching the
// column Type. New and WithColumn enforce this.
package frame

import (
	"errors"
	"fmt"
)

// Type is a concrete column type.
type Type uint8

const (
	TypeString Type = iota
	TypeFloat64
	TypeInt64
)

func (t Type) String() string {
	switch t {
	case TypeFloat64:
		return "float64"
	case TypeInt64:
		return "int64"
	default:
		return "string"
	}
}

// Field describes one column.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered list of fields.
type Schema []Field

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

var (
	// ErrUnknownColumn is returned when an operation names a column the table lacks.
	ErrUnknownColumn = errors.New("frame: unknown column")
	// ErrDuplicateColumn is returned when an operation would produce two columns with one name.
	ErrDuplicateColumn = errors.New("frame: duplicate column")
)

// Table is an immutable table value.
type Table struct {
	schema Schema
	index  map[string]int
	rows   [][]any
}

// New builds a table. The table takes ownership of rows; callers must not
// modify them afterwards.
//
// Errors:
//   - duplicate or empty column names
//   - a row whose width differs from the schema
//   - a cell whose Go type does not match its column Type (nil is always allowed)
func New(schema Schema, rows [][]any) (*Table, error) {
	t, err := newTable(schema)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != len(schema) {
			return nil, fmt.Errorf("frame: row %d has %d cells, schema has %d", i, len(r), len(schema))
		}
		for j, v := range r {
			if err := checkValue(schema[j], v); err != nil {
				return nil, fmt.Errorf("frame: row %d: %w", i, err)
			}
		}
	}
	t.rows = rows
	return t, nil
}

// MustNew is New for tests and fixtures; it panics on invalid input.
func MustNew(schema Schema, rows [][]any) *Table {
	t, err := New(schema, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with the given schema and no rows.
func Empty(schema Schema) (*Table, error) { return New(schema, nil) }

func newTable(schema Schema) (*Table, error) {
	t := &Table{
		schema: append(Schema(nil), schema...),
		index:  make(map[string]int, len(schema)),
	}
	for i, f := range schema {
		if f.Name == "" {
			return nil, fmt.Errorf("frame: column %d has empty name", i)
		}
		if _, dup := t.index[f.Name]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateColumn, f.Name)
		}
		t.index[f.Name] = i
	}
	return t, nil
}

// Schema returns a copy of the table schema.
func (t *Table) Schema() Schema { return append(Schema(nil), t.schema...) }

// Columns returns the column names in order.
func (t *Table) Columns() []string { return t.schema.Names() }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Field returns the field for a column.
func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.schema[i], true
}

// Row returns a read-only view of row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Value returns the cell at row i, column name.
func (t *Table) Value(i int, name string) (any, bool) {
	j, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.rows) {
		return nil, false
	}
	return t.rows[i][j], true
}

// Column returns a copy of all cells of one column.
func (t *Table) Column(name string) ([]any, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, name)
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Rows returns a deep-enough copy of the rows for callers that need [][]any
// (storage inserts, CSV export).
func (t *Table) Rows() [][]any {
	out := make([][]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func (t *Table) require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j, ok := t.index[n]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownColumn, n)
		}
		idx[i] = j
	}
	return idx, nil
}

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Index returns the row number.
func (r Row) Index() int { return r.i }

// Get returns the cell for a column name; unknown columns yield nil.
func (r Row) Get(name string) any {
	j, ok := r.t.index[name]
	if !ok {
		return nil
	}
	return r.t.rows[r.i][j]
}

// At returns the cell at column position j.
func (r Row) At(j int) any { return r.t.rows[r.i][j] }

// Values returns a copy of the row cells.
func (r Row) Values() []any { return append([]any(nil), r.t.rows[r.i]...) }

func checkValue(f Field, v any) error {
	if v == nil {
		if !f.Nullable {
			return fmt.Errorf("column %q is not nullable", f.Name)
		}
		return nil
	}
	ok := false
	switch f.Type {
	case TypeString:
		_, ok = v.(string)
	case TypeFloat64:
		_, ok = v.(float64)
	case TypeInt64:
		_, ok = v.(int64)
	}
	if !ok {
		return fmt.Errorf("column %q (%s) cannot hold %T", f.Name, f.Type, v)
	}
	return nil
}

package storage

import (
	"fmt"
	"strings"
)

// Logical column types. Backends map them to native types.
const (
	TypeText  = "text"
	TypeFloat = "float"
)

// Key columns of the unified table.
const (
	ChecksumColumn = "checksum"
	DateColumn     = "date"
)

// TableSpec describes a table to create.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	// Unique lists columns that together form a UNIQUE constraint.
	Unique []string
}

// ColumnSpec is one column. Type is a logical type (TypeText, TypeFloat).
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks the name, column names and types, and that every Unique
// column exists.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("table %s: empty column name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.Type != TypeText && c.Type != TypeFloat {
			return fmt.Errorf("table %s: column %q has unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	for _, u := range t.Unique {
		if !seen[u] {
			return fmt.Errorf("table %s: unique column %q is not a column", t.Name, u)
		}
	}
	return nil
}

// UnifiedTableSpec is the layout of the merged table: checksum and date as
// a unique text key, then one nullable float column per sheet label.
func UnifiedTableSpec(table string, labels []string) TableSpec {
	cols := make([]ColumnSpec, 0, 2+len(labels))
	cols = append(cols,
		ColumnSpec{Name: ChecksumColumn, Type: TypeText},
		ColumnSpec{Name: DateColumn, Type: TypeText},
	)
	for _, l := range labels {
		cols = append(cols, ColumnSpec{Name: l, Type: TypeFloat, Nullable: true})
	}
	return TableSpec{
		Name:    table,
		Columns: cols,
		Unique:  []string{ChecksumColumn, DateColumn},
	}
}

// RowsPerStatement is how many rows of width columns fit under a backend's
// bind-parameter limit. It is at least 1.
func RowsPerStatement(maxParams, columns int) int {
	if columns <= 0 {
		return 1
	}
	return max(1, maxParams/columns)
}

// Chunks splits rows into consecutive slices of at most size rows.
func Chunks(rows [][]any, size int) [][][]any {
	if size <= 0 {
		size = len(rows)
	}
	var out [][][]any
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}

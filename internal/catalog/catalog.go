// Package catalog holds the static registry of known spreadsheet columns.
//
// A Field says two things about a column header:
//   - whether it is a shared identity column (folded into the row fingerprint)
//   - which value type the typed reload should parse it as
//
// Columns that are not in the catalog are period (measurement) columns.
package catalog

import (
	"fmt"
	"strings"
)

// Kind is the declared value type of a catalog field.
type Kind uint8

const (
	KindString Kind = iota
	KindFloat
	KindInteger
	KindLong
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInteger:
		return "integer"
	case KindLong:
		return "long"
	default:
		return "string"
	}
}

// ParseKind maps a declared type name to a Kind.
//
// Unknown names map to KindString with ok=false so callers can decide whether
// to warn or fail.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float", "double", "floattype", "doubletype":
		return KindFloat, true
	case "integer", "int", "integertype":
		return KindInteger, true
	case "long", "bigint", "longtype":
		return KindLong, true
	case "string", "text", "stringtype", "":
		return KindString, true
	default:
		return KindString, false
	}
}

// Field is one catalog entry.
type Field struct {
	Name   string
	Shared bool
	Kind   Kind
}

// Catalog is an ordered, immutable set of fields.
//
// Concurrency:
//   - A Catalog is never mutated after New returns, so it is safe to share
//     across goroutines without locking.
type Catalog struct {
	fields []Field
	byName map[string]int
	shared []string
}

// New builds a catalog. Names must be non-empty and unique.
func New(fields ...Field) (*Catalog, error) {
	c := &Catalog{
		fields: make([]Field, 0, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("catalog: field %d has empty name", i)
		}
		if _, dup := c.byName[f.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate field %q", f.Name)
		}
		c.byName[f.Name] = len(c.fields)
		c.fields = append(c.fields, f)
		if f.Shared {
			c.shared = append(c.shared, f.Name)
		}
	}
	return c, nil
}

// MustNew is New for package-level catalogs; it panics on invalid input.
func MustNew(fields ...Field) *Catalog {
	c, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the field registered under name. Matching is exact.
func (c *Catalog) Lookup(name string) (Field, bool) {
	if c == nil {
		return Field{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return Field{}, false
	}
	return c.fields[i], true
}

// Contains reports whether name is a catalog column.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Fields returns the fields in declaration order.
func (c *Catalog) Fields() []Field {
	if c == nil {
		return nil
	}
	return append([]Field(nil), c.fields...)
}

// SharedColumns returns the names of shared identity fields in declaration order.
func (c *Catalog) SharedColumns() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.shared...)
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.fields)
}

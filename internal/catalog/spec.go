package catalog

import "fmt"

// FieldSpec is the JSON shape of a catalog entry in pipeline configs.
//
//	{"name": "Account", "shared": true, "type": "string"}
type FieldSpec struct {
	Name   string `json:"name"`
	Shared bool   `json:"shared"`
	Type   string `json:"type"`
}

// FromSpecs builds a catalog from config entries.
//
// Unknown type names fall back to KindString; use UnknownTypes to report them.
func FromSpecs(specs []FieldSpec) (*Catalog, error) {
	fields := make([]Field, 0, len(specs))
	for _, s := range specs {
		k, _ := ParseKind(s.Type)
		fields = append(fields, Field{Name: s.Name, Shared: s.Shared, Kind: k})
	}
	c, err := New(fields...)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return c, nil
}

// UnknownTypes returns the indices of specs whose type name is not recognised.
func UnknownTypes(specs []FieldSpec) []int {
	var out []int
	for i, s := range specs {
		if _, ok := ParseKind(s.Type); !ok {
			out = append(out, i)
		}
	}
	return out
}

// Specs converts the catalog back to config entries.
func (c *Catalog) Specs() []FieldSpec {
	out := make([]FieldSpec, 0, c.Len())
	for _, f := range c.Fields() {
		out = append(out, FieldSpec{Name: f.Name, Shared: f.Shared, Type: f.Kind.String()})
	}
	return out
}

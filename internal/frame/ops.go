package frame

import "fmt"

// WithColumn returns a table with column f computed by fn for every row.
// An existing column of the same name is replaced in place; otherwise the
// column is appended.
func (t *Table) WithColumn(f Field, fn func(Row) (any, error)) (*Table, error) {
	pos, replace := t.index[f.Name]
	schema := t.Schema()
	if replace {
		schema[pos] = f
	} else {
		pos = len(schema)
		schema = append(schema, f)
	}
	out, err := newTable(schema)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]any, len(t.rows))
	for i, r := range t.rows {
		v, err := fn(Row{t: t, i: i})
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", f.Name, i, err)
		}
		if err := checkValue(f, v); err != nil {
			return nil, fmt.Errorf("frame: row %d: %w", i, err)
		}
		nr := make([]any, len(schema))
		copy(nr, r)
		nr[pos] = v
		out.rows[i] = nr
	}
	return out, nil
}

// Drop returns a table without the named columns. Names the table lacks are
// ignored.
func (t *Table) Drop(names ...string) *Table {
	gone := make(map[string]struct{}, len(names))
	for _, n := range names {
		gone[n] = struct{}{}
	}
	keep := make([]string, 0, len(t.schema))
	for _, f := range t.schema {
		if _, ok := gone[f.Name]; !ok {
			keep = append(keep, f.Name)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx, err := t.require(names...)
	if err != nil {
		return nil, err
	}
	schema := make(Schema, len(idx))
	for i, j := range idx {
		schema[i] = t.schema[j]
	}
	out, err := newTable(schema)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]any, len(t.rows))
	for i, r := range t.rows {
		nr := make([]any, len(idx))
		for k, j := range idx {
			nr[k] = r[j]
		}
		out.rows[i] = nr
	}
	return out, nil
}

// Rename returns a table with column from renamed to to.
func (t *Table) Rename(from, to string) (*Table, error) {
	j, ok := t.index[from]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, from)
	}
	if from == to {
		return t, nil
	}
	schema := t.Schema()
	schema[j].Name = to
	out, err := newTable(schema)
	if err != nil {
		return nil, err
	}
	// rows are never mutated, so sharing them is safe
	out.rows = t.rows
	return out, nil
}

// UnpivotColumn names one source column of an unpivot and the label its
// values are tagged with in the name column.
type UnpivotColumn struct {
	Source string
	Label  string
}

// Unpivot turns the given value columns into rows. For every input row and
// every entry of cols, in order, the output holds the keep columns, the
// entry's Label in nameCol and the source cell in valueCol.
//
// valueType is the type of valueCol; every source column must already have
// that type. The output has len(t) * len(cols) rows.
func (t *Table) Unpivot(keep []string, cols []UnpivotColumn, nameCol, valueCol string, valueType Type) (*Table, error) {
	keepIdx, err := t.require(keep...)
	if err != nil {
		return nil, err
	}
	srcIdx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.index[c.Source]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownColumn, c.Source)
		}
		if t.schema[j].Type != valueType {
			return nil, fmt.Errorf("frame: unpivot column %q is %s, want %s", c.Source, t.schema[j].Type, valueType)
		}
		srcIdx[i] = j
	}

	schema := make(Schema, 0, len(keep)+2)
	for _, j := range keepIdx {
		schema = append(schema, t.schema[j])
	}
	schema = append(schema,
		Field{Name: nameCol, Type: TypeString},
		Field{Name: valueCol, Type: valueType, Nullable: true},
	)
	out, err := newTable(schema)
	if err != nil {
		return nil, err
	}

	out.rows = make([][]any, 0, len(t.rows)*len(cols))
	for _, r := range t.rows {
		for k, c := range cols {
			nr := make([]any, len(schema))
			for i, j := range keepIdx {
				nr[i] = r[j]
			}
			nr[len(keepIdx)] = c.Label
			nr[len(keepIdx)+1] = r[srcIdx[k]]
			out.rows = append(out.rows, nr)
		}
	}
	return out, nil
}

// JoinKind selects join semantics.
type JoinKind uint8

const (
	// JoinInner keeps only keys present on both sides.
	JoinInner JoinKind = iota
	// JoinOuter keeps every key from either side, filling missing cells with nil.
	JoinOuter
)

func (k JoinKind) String() string {
	if k == JoinOuter {
		return "outer"
	}
	return "inner"
}

// Join joins t with right on the key columns, which both sides must have with
// equal types. Rows whose key contains a nil never match.
//
// Output columns are the keys, then t's other columns, then right's other
// columns. A non-key column present on both sides is an error.
// Row order: t's rows in order with their matches in right's order, then
// (outer only) right's unmatched rows in order.
func (t *Table) Join(right *Table, keys []string, how JoinKind) (*Table, error) {
	lk, err := t.require(keys...)
	if err != nil {
		return nil, fmt.Errorf("join left: %w", err)
	}
	rk, err := right.require(keys...)
	if err != nil {
		return nil, fmt.Errorf("join right: %w", err)
	}
	for i := range keys {
		if t.schema[lk[i]].Type != right.schema[rk[i]].Type {
			return nil, fmt.Errorf("frame: join key %q is %s on the left and %s on the right",
				keys[i], t.schema[lk[i]].Type, right.schema[rk[i]].Type)
		}
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var lRest, rRest []int
	schema := make(Schema, 0, len(t.schema)+len(right.schema)-len(keys))
	for i, k := range keys {
		f := t.schema[lk[i]]
		f.Nullable = f.Nullable || right.schema[rk[i]].Nullable
		f.Name = k
		schema = append(schema, f)
	}
	for j, f := range t.schema {
		if isKey[f.Name] {
			continue
		}
		if how == JoinOuter {
			f.Nullable = true
		}
		lRest = append(lRest, j)
		schema = append(schema, f)
	}
	for j, f := range right.schema {
		if isKey[f.Name] {
			continue
		}
		if _, clash := t.index[f.Name]; clash {
			return nil, fmt.Errorf("%w %q on both sides of join", ErrDuplicateColumn, f.Name)
		}
		if how == JoinOuter {
			f.Nullable = true
		}
		rRest = append(rRest, j)
		schema = append(schema, f)
	}
	out, err := newTable(schema)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]int, len(right.rows))
	for i, r := range right.rows {
		if hasNil(r, rk) {
			continue
		}
		k := keyOf(r, rk)
		byKey[k] = append(byKey[k], i)
	}

	matched := make([]bool, len(right.rows))
	emit := func(l, r []any) {
		nr := make([]any, 0, len(schema))
		for i := range keys {
			if l != nil {
				nr = append(nr, l[lk[i]])
			} else {
				nr = append(nr, r[rk[i]])
			}
		}
		for _, j := range lRest {
			if l != nil {
				nr = append(nr, l[j])
			} else {
				nr = append(nr, nil)
			}
		}
		for _, j := range rRest {
			if r != nil {
				nr = append(nr, r[j])
			} else {
				nr = append(nr, nil)
			}
		}
		out.rows = append(out.rows, nr)
	}

	for _, l := range t.rows {
		var hits []int
		if !hasNil(l, lk) {
			hits = byKey[keyOf(l, lk)]
		}
		if len(hits) == 0 {
			if how == JoinOuter {
				emit(l, nil)
			}
			continue
		}
		for _, ri := range hits {
			matched[ri] = true
			emit(l, right.rows[ri])
		}
	}
	if how == JoinOuter {
		for i, r := range right.rows {
			if !matched[i] {
				emit(nil, r)
			}
		}
	}
	return out, nil
}

// GroupBySum groups rows by the key columns and sums each of the sum columns.
//
// Keys keep their types; nil keys form their own group. Sums are float64 and
// skip nil and non-numeric cells; a NaN cell makes its group's sum NaN. A
// group with no numeric cell for a column yields nil for it. Groups appear in order of first occurrence.
func (t *Table) GroupBySum(keys, sums []string) (*Table, error) {
	kIdx, err := t.require(keys...)
	if err != nil {
		return nil, err
	}
	sIdx, err := t.require(sums...)
	if err != nil {
		return nil, err
	}

	schema := make(Schema, 0, len(keys)+len(sums))
	for _, j := range kIdx {
		schema = append(schema, t.schema[j])
	}
	for _, s := range sums {
		schema = append(schema, Field{Name: s, Type: TypeFloat64, Nullable: true})
	}
	out, err := newTable(schema)
	if err != nil {
		return nil, err
	}

	type acc struct {
		key  []any
		sum  []float64
		seen []bool
	}
	groups := make(map[string]*acc)
	var order []*acc
	for _, r := range t.rows {
		k := keyOf(r, kIdx)
		g, ok := groups[k]
		if !ok {
			g = &acc{key: make([]any, len(kIdx)), sum: make([]float64, len(sIdx)), seen: make([]bool, len(sIdx))}
			for i, j := range kIdx {
				g.key[i] = r[j]
			}
			groups[k] = g
			order = append(order, g)
		}
		for i, j := range sIdx {
			f, ok := ToFloat(r[j])
			if !ok {
				continue
			}
			g.sum[i] += f
			g.seen[i] = true
		}
	}

	out.rows = make([][]any, 0, len(order))
	for _, g := range order {
		nr := make([]any, 0, len(schema))
		nr = append(nr, g.key...)
		for i := range sIdx {
			if g.seen[i] {
				nr = append(nr, g.sum[i])
			} else {
				nr = append(nr, nil)
			}
		}
		out.rows = append(out.rows, nr)
	}
	return out, nil
}

package merge

import (
	"errors"
	"reflect"
	"testing"

	"sheetetl/internal/frame"
	"sheetetl/internal/transformer"
)

func melted(label string, typ frame.Type, rows ...[]any) Input {
	return Input{
		Label: label,
		Table: frame.MustNew(frame.Schema{
			{Name: transformer.FingerprintColumn},
			{Name: transformer.PeriodColumn},
			{Name: label, Type: typ, Nullable: true},
		}, rows),
	}
}

func TestMerge_TwoSheetScenario(t *testing.T) {
	t.Parallel()

	a := melted("a", frame.TypeString, []any{"h1", "Jan", "10"}, []any{"h1", "Feb", "20"})
	b := melted("b", frame.TypeString, []any{"h1", "Jan", "100"}, []any{"h1", "Feb", "200"})

	res, err := Merge([]Input{a, b}, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := res.Table.Columns(); !reflect.DeepEqual(got, []string{"checksum", "date", "a", "b"}) {
		t.Fatalf("Columns()=%v", got)
	}
	want := [][]any{
		{"h1", "Jan", 10.0, 100.0},
		{"h1", "Feb", 20.0, 200.0},
	}
	if got := res.Table.Rows(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows=%v, want %v", got, want)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings=%v", res.Warnings)
	}
}

// TestMerge_AggregatesBeforeJoin guards against the join multiplying
// duplicate keys: two source rows per key on both sides must sum to 15/150,
// not 30/300.
func TestMerge_AggregatesBeforeJoin(t *testing.T) {
	t.Parallel()

	a := melted("a", frame.TypeFloat64, []any{"h", "Jan", 10.0}, []any{"h", "Jan", 5.0})
	b := melted("b", frame.TypeFloat64, []any{"h", "Jan", 100.0}, []any{"h", "Jan", 50.0})

	res, err := Merge([]Input{a, b}, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := res.Table.Rows(); !reflect.DeepEqual(got, [][]any{{"h", "Jan", 15.0, 150.0}}) {
		t.Fatalf("rows=%v", got)
	}
}

func TestMerge_InnerDropsOuterKeeps(t *testing.T) {
	t.Parallel()

	a := melted("a", frame.TypeFloat64, []any{"h1", "Jan", 1.0}, []any{"h2", "Jan", 2.0})
	b := melted("b", frame.TypeFloat64, []any{"h1", "Jan", 10.0}, []any{"h3", "Jan", 30.0})

	inner, err := Merge([]Input{a, b}, Options{})
	if err != nil {
		t.Fatalf("inner: %v", err)
	}
	if inner.Table.Len() != 1 {
		t.Fatalf("inner rows=%v", inner.Table.Rows())
	}
	if !reflect.DeepEqual(inner.Unmatched, []int{1, 1}) {
		t.Fatalf("Unmatched=%v", inner.Unmatched)
	}

	outer, err := Merge([]Input{a, b}, Options{Join: frame.JoinOuter})
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	want := [][]any{
		{"h1", "Jan", 1.0, 10.0},
		{"h2", "Jan", 2.0, nil},
		{"h3", "Jan", nil, 30.0},
	}
	if got := outer.Table.Rows(); !reflect.DeepEqual(got, want) {
		t.Fatalf("outer rows=%v, want %v", got, want)
	}
	if !reflect.DeepEqual(outer.Unmatched, []int{0, 0}) {
		t.Fatalf("Unmatched=%v", outer.Unmatched)
	}
}

func TestMerge_JoinEmptyWarning(t *testing.T) {
	t.Parallel()

	a := melted("a", frame.TypeFloat64, []any{"h1", "Jan", 1.0})
	b := melted("b", frame.TypeFloat64, []any{"h2", "Jan", 1.0})

	res, err := Merge([]Input{a, b}, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Table.Len() != 0 {
		t.Fatalf("rows=%v", res.Table.Rows())
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrJoinEmpty) {
		t.Fatalf("warnings=%v", res.Warnings)
	}

	// an empty input explains the empty result; no warning
	empty := melted("c", frame.TypeFloat64)
	res, err = Merge([]Input{a, empty}, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings=%v", res.Warnings)
	}
}

func TestMerge_SingleInputAndIdempotence(t *testing.T) {
	t.Parallel()

	a := melted("a", frame.TypeString, []any{"h", "Jan", "1.5"}, []any{"h", "Jan", "x"}, []any{"h", "Feb", nil})
	res, err := Merge([]Input{a}, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := [][]any{{"h", "Jan", 1.5}, {"h", "Feb", nil}}
	if got := res.Table.Rows(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows=%v, want %v", got, want)
	}

	again, err := res.Table.GroupBySum([]string{ChecksumColumn, DateColumn}, []string{"a"})
	if err != nil {
		t.Fatalf("GroupBySum: %v", err)
	}
	if !reflect.DeepEqual(again.Rows(), res.Table.Rows()) {
		t.Fatalf("re-aggregation changed the table: %v", again.Rows())
	}
}

func TestMerge_Validation(t *testing.T) {
	t.Parallel()

	ok := melted("a", frame.TypeFloat64)
	tests := []struct {
		name   string
		inputs []Input
	}{
		{"no inputs", nil},
		{"empty label", []Input{{Label: "", Table: ok.Table}}},
		{"duplicate label", []Input{ok, ok}},
		{"key label", []Input{{Label: "checksum", Table: ok.Table}}},
		{"missing label column", []Input{{Label: "b", Table: ok.Table}}},
		{"nil table", []Input{{Label: "a"}}},
	}
	for _, tt := range tests {
		if _, err := Merge(tt.inputs, Options{}); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

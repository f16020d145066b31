package schema

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
)

func testCatalog() *catalog.Catalog {
	return catalog.MustNew(
		catalog.Field{Name: "id", Shared: true, Kind: catalog.KindLong},
		catalog.Field{Name: "name", Shared: true, Kind: catalog.KindString},
		catalog.Field{Name: "price", Kind: catalog.KindFloat},
		catalog.Field{Name: "qty", Kind: catalog.KindInteger},
	)
}

func TestInfer(t *testing.T) {
	t.Parallel()

	headers := []string{"id", "name", "price", "qty", "Jan", "43831"}
	got := Infer(headers, testCatalog())
	want := frame.Schema{
		{Name: "id", Type: frame.TypeInt64, Nullable: true},
		{Name: "name", Type: frame.TypeString, Nullable: true},
		{Name: "price", Type: frame.TypeFloat64, Nullable: true},
		{Name: "qty", Type: frame.TypeInt64, Nullable: true},
		{Name: "Jan", Type: frame.TypeString, Nullable: true},
		{Name: "43831", Type: frame.TypeString, Nullable: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Infer()=%+v, want %+v", got, want)
	}
	if again := Infer(headers, testCatalog()); !reflect.DeepEqual(again, got) {
		t.Fatalf("Infer not deterministic")
	}
}

func TestInfer_EmptyAndNilCatalog(t *testing.T) {
	t.Parallel()

	if got := Infer(nil, testCatalog()); len(got) != 0 {
		t.Fatalf("Infer(nil)=%v", got)
	}
	got := Infer([]string{"id"}, nil)
	if got[0].Type != frame.TypeString {
		t.Fatalf("nil catalog should infer strings, got %v", got[0].Type)
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		typ     frame.Type
		want    any
		wantErr bool
	}{
		{"", frame.TypeFloat64, nil, false},
		{"  ", frame.TypeInt64, nil, false},
		{"1.5", frame.TypeFloat64, 1.5, false},
		{" 10 ", frame.TypeFloat64, 10.0, false},
		{"42", frame.TypeInt64, int64(42), false},
		{"3.0", frame.TypeInt64, int64(3), false},
		{"3.5", frame.TypeInt64, nil, true},
		{"9223372036854775807", frame.TypeInt64, int64(math.MaxInt64), false},
		{"9223372036854775808", frame.TypeInt64, nil, true},
		{"9.3e18", frame.TypeInt64, nil, true},
		{"9.2e18", frame.TypeInt64, int64(9200000000000000000), false},
		{"-9.223372036854775808e18", frame.TypeInt64, int64(math.MinInt64), false},
		{"-9.3e18", frame.TypeInt64, nil, true},
		{"abc", frame.TypeFloat64, nil, true},
		{"abc", frame.TypeString, "abc", false},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.raw, tt.typ)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Coerce(%q,%v) err=%v, wantErr=%v", tt.raw, tt.typ, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("Coerce(%q,%v)=%#v, want %#v", tt.raw, tt.typ, got, tt.want)
		}
	}
}

func TestApply_ReordersAndRejects(t *testing.T) {
	t.Parallel()

	sch := Infer([]string{"id", "price"}, testCatalog())
	headers := []string{"price", "id"}
	rows := [][]string{
		{"1.25", "7"},
		{"oops", "8"},
		{"2"},
	}

	var rejects []string
	tb, err := Apply(sch, headers, rows, func(row int, col string, err error) {
		rejects = append(rejects, col)
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := [][]any{
		{int64(7), 1.25},
		{int64(8), nil},
		{nil, 2.0},
	}
	if got := tb.Rows(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows=%v, want %v", got, want)
	}
	if !reflect.DeepEqual(rejects, []string{"price"}) {
		t.Fatalf("rejects=%v", rejects)
	}
}

func TestApply_Mismatch(t *testing.T) {
	t.Parallel()

	sch := Untyped([]string{"a", "b"})
	if _, err := Apply(sch, []string{"a", "c"}, nil, nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("renamed header err=%v", err)
	}
	if _, err := Apply(sch, []string{"a"}, nil, nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("missing header err=%v", err)
	}
}

package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"sheetetl/internal/frame"
)

type fakeRepo struct {
	specs     []TableSpec
	truncated []string
	batches   [][][]any
	conflict  []string
	insertErr error
}

func (f *fakeRepo) Close() {}

func (f *fakeRepo) EnsureTable(_ context.Context, spec TableSpec) error {
	f.specs = append(f.specs, spec)
	return nil
}

func (f *fakeRepo) Truncate(_ context.Context, table string) error {
	f.truncated = append(f.truncated, table)
	return nil
}

func (f *fakeRepo) InsertRows(_ context.Context, _ string, _ []string, rows [][]any, conflict []string) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.batches = append(f.batches, rows)
	f.conflict = conflict
	return int64(len(rows)), nil
}

func unified(rows ...[]any) *frame.Table {
	return frame.MustNew(frame.Schema{
		{Name: ChecksumColumn},
		{Name: DateColumn},
		{Name: "sales", Type: frame.TypeFloat64, Nullable: true},
	}, rows)
}

func TestUnifiedTableSpec(t *testing.T) {
	t.Parallel()

	spec := UnifiedTableSpec("out", []string{"a", "b"})
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := spec.ColumnNames(); !reflect.DeepEqual(got, []string{"checksum", "date", "a", "b"}) {
		t.Fatalf("ColumnNames()=%v", got)
	}
	if spec.Columns[0].Nullable || !spec.Columns[2].Nullable || spec.Columns[2].Type != TypeFloat {
		t.Fatalf("columns=%+v", spec.Columns)
	}
	if !reflect.DeepEqual(spec.Unique, []string{"checksum", "date"}) {
		t.Fatalf("Unique=%v", spec.Unique)
	}
}

func TestTableSpec_Validate(t *testing.T) {
	t.Parallel()

	bad := []TableSpec{
		{Name: "", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}},
		{Name: "t"},
		{Name: "t", Columns: []ColumnSpec{{Name: "a", Type: TypeText}, {Name: "a", Type: TypeText}}},
		{Name: "t", Columns: []ColumnSpec{{Name: "a", Type: "blob"}}},
		{Name: "t", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}, Unique: []string{"b"}},
	}
	for i, spec := range bad {
		if err := spec.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRowsPerStatementAndChunks(t *testing.T) {
	t.Parallel()

	if got := RowsPerStatement(2000, 3); got != 666 {
		t.Fatalf("RowsPerStatement(2000,3)=%d", got)
	}
	if got := RowsPerStatement(2, 5); got != 1 {
		t.Fatalf("RowsPerStatement(2,5)=%d", got)
	}
	rows := [][]any{{1}, {2}, {3}, {4}, {5}}
	chunks := Chunks(rows, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("Chunks(5,2)=%v", chunks)
	}
	if got := Chunks(rows, 0); len(got) != 1 || len(got[0]) != 5 {
		t.Fatalf("Chunks(5,0)=%v", got)
	}
	if got := Chunks(nil, 10); len(got) != 0 {
		t.Fatalf("Chunks(nil)=%v", got)
	}
}

func TestLoad_AppendBatchesWithConflictKey(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	tbl := unified([]any{"h1", "01_2020", 1.0}, []any{"h1", "02_2020", nil}, []any{"h2", "01_2020", 3.0})
	st, err := Load(context.Background(), repo, tbl, LoadOptions{Table: "out", BatchSize: 2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Rows != 3 || st.Written != 3 || st.Batches != 2 {
		t.Fatalf("stats=%+v", st)
	}
	if len(repo.truncated) != 0 {
		t.Fatalf("append mode truncated")
	}
	if !reflect.DeepEqual(repo.conflict, []string{"checksum", "date"}) {
		t.Fatalf("conflict=%v", repo.conflict)
	}
	if len(repo.specs) != 1 || repo.specs[0].Name != "out" {
		t.Fatalf("specs=%+v", repo.specs)
	}
}

func TestLoad_ReplaceTruncates(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	_, err := Load(context.Background(), repo, unified([]any{"h", "d", 1.0}), LoadOptions{Table: "out", Mode: ModeReplace})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(repo.truncated, []string{"out"}) || repo.conflict != nil {
		t.Fatalf("truncated=%v conflict=%v", repo.truncated, repo.conflict)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := Load(ctx, &fakeRepo{}, unified(), LoadOptions{Table: "out", Mode: "merge"}); err == nil {
		t.Fatalf("expected mode error")
	}
	wrong := frame.MustNew(frame.Schema{{Name: "date"}, {Name: "checksum"}}, nil)
	if _, err := Load(ctx, &fakeRepo{}, wrong, LoadOptions{Table: "out"}); err == nil {
		t.Fatalf("expected layout error")
	}
	boom := errors.New("boom")
	_, err := Load(ctx, &fakeRepo{insertErr: boom}, unified([]any{"h", "d", 1.0}), LoadOptions{Table: "out"})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

package csv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sheetetl/internal/sheet"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadSheet_SingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "sales.csv")
	writeFile(t, p, []byte("\uFEFFid;Jan\n1;10\n\n2;\n"))

	r, err := New(Options{Comma: ';'})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tb, err := r.ReadSheet(context.Background(), sheet.Request{Path: p, Sheet: "sales"})
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if got := tb.Columns(); !reflect.DeepEqual(got, []string{"id", "Jan"}) {
		t.Fatalf("Columns()=%v", got)
	}
	want := [][]any{{"1", "10"}, {"2", nil}}
	if got := tb.Rows(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows=%v, want %v", got, want)
	}

	if _, err := r.ReadSheet(context.Background(), sheet.Request{Path: p, Sheet: "other"}); !errors.Is(err, sheet.ErrSheetNotFound) {
		t.Fatalf("wrong sheet err=%v", err)
	}
}

func TestReadSheet_DirectoryWorkbook(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A.csv"), []byte("id,Jan\n1,10\n"))
	writeFile(t, filepath.Join(dir, "B.csv"), []byte("id,Jan\n1,100\n"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))

	names, err := Sheets(dir)
	if err != nil {
		t.Fatalf("Sheets: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"A", "B"}) {
		t.Fatalf("Sheets()=%v", names)
	}

	r, _ := New(Options{})
	tb, err := r.ReadSheet(context.Background(), sheet.Request{Path: dir, Sheet: "B"})
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if v, _ := tb.Value(0, "Jan"); v != "100" {
		t.Fatalf("Jan=%v", v)
	}
}

func TestReadSheet_Charset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "cz.csv")
	// "Plzeň" in windows-1250: ň is 0xF2
	writeFile(t, p, []byte("city\nPlze\xf2\n"))

	r, err := New(Options{Charset: "windows-1250"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tb, err := r.ReadSheet(context.Background(), sheet.Request{Path: p, Sheet: "cz"})
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if v, _ := tb.Value(0, "city"); v != "Plzeň" {
		t.Fatalf("city=%q", v)
	}
}

func TestReadSheet_MissingFile(t *testing.T) {
	t.Parallel()

	r, _ := New(Options{})
	_, err := r.ReadSheet(context.Background(), sheet.Request{Path: filepath.Join(t.TempDir(), "nope.csv"), Sheet: "nope"})
	if !errors.Is(err, sheet.ErrFileNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_UnknownCharset(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Charset: "klingon-8"}); err == nil {
		t.Fatalf("expected error")
	}
}

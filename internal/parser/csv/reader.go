// Package csv reads delimited text files as sheets.
//
// A single .csv file is a workbook with one sheet named after the file's base
// name ("sales.csv" holds sheet "sales"). A directory is a workbook whose
// sheets are the <sheet>.csv files inside it.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"sheetetl/internal/frame"
	"sheetetl/internal/sheet"
)

// Options configure the CSV reader.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// LazyQuotes is passed to encoding/csv.
	LazyQuotes bool
	// Charset is a WHATWG encoding label ("windows-1250", "latin1", ...).
	// Empty means UTF-8.
	Charset string
}

// Reader implements sheet.Reader for CSV files and directories.
type Reader struct {
	opt Options
}

// New validates opt and returns a reader.
func New(opt Options) (*Reader, error) {
	if opt.Charset != "" {
		if _, err := htmlindex.Get(opt.Charset); err != nil {
			return nil, fmt.Errorf("csv: unknown charset %q: %w", opt.Charset, err)
		}
	}
	return &Reader{opt: opt}, nil
}

// ReadSheet implements sheet.Reader.
func (r *Reader) ReadSheet(ctx context.Context, req sheet.Request) (*frame.Table, error) {
	addr, err := sheet.ParseAddress(req.Sheet)
	if err != nil {
		return nil, err
	}
	file, err := resolve(req.Path, addr.Sheet)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sheet.ErrFileNotFound, file)
		}
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	g, err := r.readAll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return sheet.Build(req, g.Crop(addr))
}

// Sheets lists the sheet names available at path.
func Sheets(path string) ([]string, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sheet.ErrFileNotFound, path)
		}
		return nil, err
	}
	if !st.IsDir() {
		return []string{baseName(path)}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			out = append(out, baseName(e.Name()))
		}
	}
	return out, nil
}

func resolve(path, name string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", sheet.ErrFileNotFound, path)
		}
		return "", err
	}
	if !st.IsDir() {
		if baseName(path) != name {
			return "", fmt.Errorf("%w: %q (file %s holds sheet %q)", sheet.ErrSheetNotFound, name, path, baseName(path))
		}
		return path, nil
	}
	file := filepath.Join(path, name+".csv")
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q in %s", sheet.ErrSheetNotFound, name, path)
		}
		return "", err
	}
	return file, nil
}

func baseName(p string) string {
	b := filepath.Base(p)
	return strings.TrimSuffix(b, filepath.Ext(b))
}

func (r *Reader) readAll(ctx context.Context, src io.Reader) (sheet.Grid, error) {
	if r.opt.Charset != "" {
		enc, err := htmlindex.Get(r.opt.Charset)
		if err != nil {
			return nil, err
		}
		src = transform.NewReader(src, enc.NewDecoder())
	}

	cr := csv.NewReader(src)
	if r.opt.Comma != 0 {
		cr.Comma = r.opt.Comma
	}
	cr.LazyQuotes = r.opt.LazyQuotes
	cr.FieldsPerRecord = -1

	var g sheet.Grid
	for line := 1; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		g = append(g, rec)
	}
}

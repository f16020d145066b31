// Package sheet loads one named sheet of a workbook into a typed table.
//
// Format-specific readers (xlsx, html, csv) implement Reader; Loader drives
// the two-pass load: an untyped read to discover headers, schema inference
// from the field catalog, then a typed read with that schema.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
	"sheetetl/internal/schema"
)

var (
	// ErrSheetNotFound is returned when the workbook has no sheet of that name.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrFileNotFound is returned when the workbook path does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrSchemaMismatch is returned when sheet headers disagree with the schema.
	ErrSchemaMismatch = schema.ErrSchemaMismatch
)

// Request describes one sheet read.
type Request struct {
	// Path is the workbook location.
	Path string
	// Sheet is the sheet selector, optionally with a top-left cell
	// ("'Q1 Sales'!B3"); see ParseAddress.
	Sheet string
	// Schema types the result. Nil means every column is a nullable string.
	Schema frame.Schema
	// OnReject receives cells that fail coercion. May be nil.
	OnReject schema.RejectFunc
}

// Reader reads a single sheet of a workbook.
type Reader interface {
	ReadSheet(ctx context.Context, req Request) (*frame.Table, error)
}

// LoadError reports a failed sheet load.
type LoadError struct {
	Path  string
	Sheet string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load sheet %q from %s: %v", e.Sheet, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader loads sheets with catalog-driven typing.
type Loader struct {
	Reader   Reader
	Catalog  *catalog.Catalog
	OnReject schema.RejectFunc
	Logger   *slog.Logger
}

// Load reads one sheet and returns it typed.
//
// Columns named in the catalog get the catalog type; every other column is a
// nullable string. Every failure is a *LoadError; ErrSheetNotFound,
// ErrFileNotFound and ErrSchemaMismatch are detectable with errors.Is.
func (l *Loader) Load(ctx context.Context, path, sheetSel string) (*frame.Table, error) {
	if l.Reader == nil {
		return nil, &LoadError{Path: path, Sheet: sheetSel, Err: errors.New("no reader configured")}
	}
	log := l.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	start := time.Now()
	peek, err := l.Reader.ReadSheet(ctx, Request{Path: path, Sheet: sheetSel})
	if err != nil {
		return nil, wrap(path, sheetSel, fmt.Errorf("read headers: %w", err))
	}
	headers := peek.Columns()
	sch := schema.Infer(headers, l.Catalog)
	log.Debug("sheet headers", "stage", "peek", "sheet", sheetSel, "columns", len(headers), "duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, wrap(path, sheetSel, err)
	}

	start = time.Now()
	typed, err := l.Reader.ReadSheet(ctx, Request{Path: path, Sheet: sheetSel, Schema: sch, OnReject: l.OnReject})
	if err != nil {
		return nil, wrap(path, sheetSel, fmt.Errorf("read typed: %w", err))
	}
	log.Debug("sheet loaded", "stage", "load", "sheet", sheetSel, "rows", typed.Len(), "duration", time.Since(start))
	return typed, nil
}

func wrap(path, sheetSel string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Path: path, Sheet: sheetSel, Err: err}
}

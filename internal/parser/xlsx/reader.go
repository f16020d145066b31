// Package xlsx reads worksheets of Office Open XML workbooks.
//
// Cells are read raw: numbers come back as stored, so date-formatted header
// cells surface as day serials ("43831") for the period decoder.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/xuri/excelize/v2"

	"sheetetl/internal/frame"
	"sheetetl/internal/sheet"
)

// Reader implements sheet.Reader for .xlsx, .xlsm, .xltx and .xltm files.
type Reader struct {
	// Password opens encrypted workbooks.
	Password string
}

// New returns a reader.
func New() *Reader { return &Reader{} }

func (r *Reader) open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path, excelize.Options{Password: r.Password})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sheet.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return f, nil
}

// ReadSheet implements sheet.Reader.
func (r *Reader) ReadSheet(ctx context.Context, req sheet.Request) (*frame.Table, error) {
	addr, err := sheet.ParseAddress(req.Sheet)
	if err != nil {
		return nil, err
	}
	f, err := r.open(req.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(addr.Sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %q in %s", sheet.ErrSheetNotFound, addr.Sheet, req.Path)
	}

	rows, err := f.Rows(addr.Sheet)
	if err != nil {
		return nil, fmt.Errorf("rows %q: %w", addr.Sheet, err)
	}
	defer rows.Close()

	var g sheet.Grid
	for n := 0; rows.Next(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("row %d of %q: %w", n+1, addr.Sheet, err)
		}
		g = append(g, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("rows %q: %w", addr.Sheet, err)
	}
	return sheet.Build(req, g.Crop(addr))
}

// Sheets lists the worksheet names of the workbook in tab order.
func (r *Reader) Sheets(path string) ([]string, error) {
	f, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

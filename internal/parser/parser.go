// Package parser picks a sheet reader for a workbook path.
package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sheetetl/internal/parser/csv"
	"sheetetl/internal/parser/html"
	"sheetetl/internal/parser/xlsx"
	"sheetetl/internal/sheet"
)

// Formats understood by ForPath.
const (
	FormatXLSX = "xlsx"
	FormatHTML = "html"
	FormatCSV  = "csv"
)

// Options select and configure a reader.
type Options struct {
	// Format forces a reader; empty means detect from the path.
	Format string
	// Charset and Delimiter apply to CSV.
	Charset   string
	Delimiter rune
	// Timeout bounds HTML fetches over HTTP.
	Timeout time.Duration
	// Password opens encrypted xlsx workbooks.
	Password string
}

// Detect returns the format for path.
//
// Detection order:
//   - http(s) URLs are HTML
//   - directories are CSV workbooks
//   - otherwise the file extension decides
func Detect(path string) (string, error) {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return FormatHTML, nil
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return FormatCSV, nil
	}
	switch filepath.Ext(lower) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("cannot detect workbook format of %q", path)
}

// ForPath returns a reader for path.
func ForPath(path string, opt Options) (sheet.Reader, error) {
	format := strings.ToLower(strings.TrimSpace(opt.Format))
	if format == "" {
		var err error
		if format, err = Detect(path); err != nil {
			return nil, err
		}
	}
	switch format {
	case FormatXLSX:
		return &xlsx.Reader{Password: opt.Password}, nil
	case FormatHTML:
		return html.New(html.Options{Timeout: opt.Timeout}), nil
	case FormatCSV:
		delim := opt.Delimiter
		if delim == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
			delim = '\t'
		}
		r, err := csv.New(csv.Options{Comma: delim, Charset: opt.Charset})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported workbook format %q", opt.Format)
	}
}

// Sheets lists the sheet names of the workbook at path.
func Sheets(ctx context.Context, path string, opt Options) ([]string, error) {
	r, err := ForPath(path, opt)
	if err != nil {
		return nil, err
	}
	switch rr := r.(type) {
	case *xlsx.Reader:
		return rr.Sheets(path)
	case *html.Reader:
		return rr.Sheets(ctx, path)
	default:
		return csv.Sheets(path)
	}
}

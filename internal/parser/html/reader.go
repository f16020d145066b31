// Package html reads <table> elements of an HTML document as sheets.
//
// A table is selected by its id attribute, by its <caption> text, or by
// position as "Table1", "Table2", ... in document order. The header is the
// last <thead> row when the table has one, otherwise its first row.
// Documents may be local files or http(s) URLs.
package html

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sheetetl/internal/frame"
	"sheetetl/internal/sheet"
)

// DefaultTimeout bounds HTTP fetches when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configure the HTML reader.
type Options struct {
	// Client fetches http(s) documents; nil means http.DefaultClient.
	Client  *http.Client
	Timeout time.Duration
}

// Reader implements sheet.Reader over HTML tables.
type Reader struct {
	l loader
}

// New returns a reader.
func New(opt Options) *Reader {
	c := opt.Client
	if c == nil {
		c = http.DefaultClient
	}
	to := opt.Timeout
	if to <= 0 {
		to = DefaultTimeout
	}
	return &Reader{l: loader{client: c, timeout: to}}
}

// ReadSheet implements sheet.Reader.
func (r *Reader) ReadSheet(ctx context.Context, req sheet.Request) (*frame.Table, error) {
	addr, err := sheet.ParseAddress(req.Sheet)
	if err != nil {
		return nil, err
	}
	doc, err := r.document(ctx, req.Path)
	if err != nil {
		return nil, err
	}
	tbl := findTable(doc, addr.Sheet)
	if tbl == nil {
		return nil, fmt.Errorf("%w: no table %q in %s", sheet.ErrSheetNotFound, addr.Sheet, req.Path)
	}
	return sheet.Build(req, tableGrid(tbl).Crop(addr))
}

// Sheets lists the selectable tables of the document at path.
func (r *Reader) Sheets(ctx context.Context, path string) ([]string, error) {
	doc, err := r.document(ctx, path)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("table").Each(func(i int, s *goquery.Selection) {
		out = append(out, tableName(i, s))
	})
	return out, nil
}

func (r *Reader) document(ctx context.Context, path string) (*goquery.Document, error) {
	rc, err := r.l.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	doc, err := goquery.NewDocumentFromReader(rc)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func tableName(i int, s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if c := cellText(s.ChildrenFiltered("caption")); c != "" {
		return c
	}
	return "Table" + strconv.Itoa(i+1)
}

func findTable(doc *goquery.Document, name string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(i int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		if strings.TrimSpace(id) == name ||
			cellText(s.ChildrenFiltered("caption")) == name ||
			"Table"+strconv.Itoa(i+1) == name {
			found = s
			return false
		}
		return true
	})
	return found
}

// tableGrid flattens the direct rows of tbl; rows of nested tables are not
// included. colspan cells are repeated as blanks to keep columns aligned.
func tableGrid(tbl *goquery.Selection) sheet.Grid {
	var g sheet.Grid
	head := tbl.ChildrenFiltered("thead").ChildrenFiltered("tr")
	if head.Length() > 0 {
		g = append(g, rowCells(head.Last()))
	}
	tbl.ChildrenFiltered("tbody, tfoot").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		g = append(g, rowCells(tr))
	})
	return g
}

func rowCells(tr *goquery.Selection) []string {
	var out []string
	tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
		out = append(out, cellText(c))
		if span, err := strconv.Atoi(c.AttrOr("colspan", "1")); err == nil {
			for k := 1; k < span && k < 1000; k++ {
				out = append(out, "")
			}
		}
	})
	return out
}

func cellText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(s.First().Text()), " ")
}

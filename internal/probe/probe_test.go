package probe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sheetetl/internal/config"
	"sheetetl/internal/frame"
	"sheetetl/internal/parser"
	"sheetetl/internal/sheet"
)

type gridReader map[string]sheet.Grid

func (g gridReader) ReadSheet(_ context.Context, req sheet.Request) (*frame.Table, error) {
	grid, ok := g[req.Sheet]
	if !ok {
		return nil, sheet.ErrSheetNotFound
	}
	return sheet.Build(req, grid)
}

func testOptions(g gridReader, sheets ...string) Options {
	return Options{
		Path:      "book.xlsx",
		Sheets:    sheets,
		NewReader: func(string, parser.Options) (sheet.Reader, error) { return g, nil },
		ListSheets: func(context.Context, string, parser.Options) ([]string, error) {
			return []string{"Sales", "Costs"}, nil
		},
	}
}

var book = gridReader{
	"Sales": {
		{"Account", "Region", "Units", "43831", "43862"},
		{"acme", "emea", "3", "1", "2"},
		{"acme", "emea", "4", "5", ""},
		{"beta", "apac", "", "7", "8"},
	},
	"Costs": {
		{"Jan", "Feb"},
		{"1", "2"},
	},
}

func TestRun_ProfilesEverySheet(t *testing.T) {
	t.Parallel()

	rep, err := Run(context.Background(), testOptions(book))
	require.NoError(t, err)
	require.Len(t, rep.Sheets, 2)

	s := rep.Sheets[0]
	require.Equal(t, "Sales", s.Name)
	require.Equal(t, "sales", s.Label)
	require.Equal(t, 3, s.Rows)
	require.Equal(t, 2, s.DistinctKeys)
	require.Equal(t, []string{"Account", "Region"}, s.ColumnsOf(RoleIdentity))
	require.Equal(t, []string{"Units"}, s.ColumnsOf(RoleAttribute))
	require.Equal(t, []string{"43831", "43862"}, s.ColumnsOf(RolePeriod))
	require.Equal(t, Column{Name: "43831", Role: RolePeriod, Label: "01_2020", Values: 3, Distinct: 3}, s.Columns[3])
	require.Equal(t, Column{Name: "Units", Role: RoleAttribute, Kind: "integer", Values: 2, Distinct: 2}, s.Columns[2])
	require.Equal(t, []string{"1 rows share an identity with another row and will be summed"}, s.Warnings)

	c := rep.Sheets[1]
	require.Empty(t, c.ColumnsOf(RoleIdentity))
	require.Equal(t, []string{"no identity columns; every row shares one fingerprint"}, c.Warnings)
	require.Equal(t, "Jan", c.Columns[0].Label)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Options{})
	require.Error(t, err)

	_, err = Run(context.Background(), testOptions(book, "Sales", "Missing"))
	require.ErrorIs(t, err, sheet.ErrSheetNotFound)
	require.ErrorContains(t, err, `"Missing"`)

	opt := testOptions(book)
	opt.ListSheets = func(context.Context, string, parser.Options) ([]string, error) {
		return nil, errors.New("boom")
	}
	_, err = Run(context.Background(), opt)
	require.ErrorContains(t, err, "list sheets: boom")
}

func TestReport_Pipeline(t *testing.T) {
	t.Parallel()

	rep, err := Run(context.Background(), testOptions(book, "Sales"))
	require.NoError(t, err)

	p := rep.Pipeline("", "postgresql")
	require.Equal(t, config.DefaultJob, p.Job)
	require.Equal(t, []string{"Sales"}, p.Source.Sheets)
	require.True(t, p.Transform.Periods.Decode())
	require.Equal(t, 1, p.Runtime.SheetWorkers)
	require.Equal(t, "postgres", p.Storage.Kind)
	require.Equal(t, "public."+config.DefaultTable, p.Storage.Table)
	require.False(t, config.HasErrors(config.ValidatePipeline(p)))

	rep, err = Run(context.Background(), testOptions(book, "Costs"))
	require.NoError(t, err)
	p = rep.Pipeline("job", "")
	require.False(t, p.Transform.Periods.Decode())
	require.False(t, p.Storage.Enabled())
}

func TestNormalizeBackend(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"PG": "postgres", "sqlserver": "mssql", " sqlite3 ": "sqlite", "none": "", "": "",
	} {
		if got := NormalizeBackend(in); got != want {
			t.Fatalf("NormalizeBackend(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestReport_WriteText(t *testing.T) {
	t.Parallel()

	rep, err := Run(context.Background(), testOptions(book))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	out := buf.String()

	require.Contains(t, out, `sheet "Sales"`)
	require.Contains(t, out, "warning: no identity columns")
	lines := strings.Split(out, "\n")
	// Identity columns come first; equal ratios keep sheet order.
	require.Equal(t, "Account", strings.Fields(lines[2])[0])
	require.Equal(t, "Region", strings.Fields(lines[3])[0])
	require.Equal(t, "Units", strings.Fields(lines[4])[0])

	buf.Reset()
	require.NoError(t, (&Report{}).WriteText(&buf))
	require.Equal(t, "probe: no sheets\n", buf.String())
}

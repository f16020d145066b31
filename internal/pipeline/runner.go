// Package pipeline runs the sheet ETL: load each tab, fingerprint it, melt
// its period columns, then merge every tab into one table keyed by checksum
// and date.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
	"sheetetl/internal/merge"
	"sheetetl/internal/metrics"
	"sheetetl/internal/parser"
	"sheetetl/internal/period"
	"sheetetl/internal/sheet"
	"sheetetl/internal/storage"
	"sheetetl/internal/transformer"
)

// ErrRejectedCells reports cells that failed type coercion and were
// loaded as nil.
var ErrRejectedCells = errors.New("cells failed type coercion")

// Options configure a Runner.
type Options struct {
	// Catalog defaults to catalog.Default().
	Catalog     *catalog.Catalog
	Parser      parser.Options
	Fingerprint transformer.FingerprintSpec
	// DecodeSerials turns numeric period headers into "MM_YYYY" labels.
	DecodeSerials bool
	Join          frame.JoinKind
	// SheetWorkers bounds concurrent sheet loads; <= 0 means 1.
	SheetWorkers int
}

// Runner executes pipeline runs. The zero value is not usable; build one
// with NewDefaultRunner.
type Runner struct {
	Options
	Logger *slog.Logger

	// NewReader and NewRepository are seams for tests and alternate sources.
	NewReader     func(path string, opt parser.Options) (sheet.Reader, error)
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// NewDefaultRunner returns a runner with serial decoding on, an inner join
// and the built-in catalog.
func NewDefaultRunner(logger *slog.Logger) *Runner {
	return &Runner{
		Options: Options{
			Catalog:       catalog.Default(),
			DecodeSerials: true,
			Join:          frame.JoinInner,
			SheetWorkers:  1,
		},
		Logger:        logger,
		NewReader:     parser.ForPath,
		NewRepository: storage.New,
	}
}

// SheetStats describes one tab of a run.
type SheetStats struct {
	Sheet string
	// Label is the value column of this sheet in the unified table.
	Label           string
	Rows            int
	Rejected        int
	IdentityColumns []string
	Periods         int
	Melted          int
	// Unmatched counts (checksum, date) keys dropped by an inner join.
	Unmatched int
	Duration  time.Duration
}

// Result is the outcome of a run.
type Result struct {
	RunID uuid.UUID
	// Table is the unified table: checksum, date, then one float column
	// per sheet label.
	Table  *frame.Table
	Sheets []SheetStats
	// Warnings are non-fatal findings. Sheet-level ones are *SheetWarning.
	Warnings []error
	// Stored is set when the run persisted the table.
	Stored   *storage.LoadStats
	Duration time.Duration
}

// Labels returns the value column names in sheet order.
func (r *Result) Labels() []string {
	out := make([]string, len(r.Sheets))
	for i, s := range r.Sheets {
		out[i] = s.Label
	}
	return out
}

// SheetWarning ties a warning to a sheet.
type SheetWarning struct {
	Sheet string
	Err   error
}

func (w *SheetWarning) Error() string { return fmt.Sprintf("sheet %q: %v", w.Sheet, w.Err) }
func (w *SheetWarning) Unwrap() error { return w.Err }

type melted struct {
	table    *frame.Table
	stats    SheetStats
	warnings []error
}

// Run loads every named sheet from the workbook at path and merges them.
//
// Errors:
//   - An empty sheet list.
//   - A *sheet.LoadError for the first sheet that fails to load; the other
//     loads are cancelled.
//   - Fingerprint, melt or merge failures.
func (r *Runner) Run(ctx context.Context, path string, sheets []string) (*Result, error) {
	if len(sheets) == 0 {
		return nil, errors.New("pipeline: no sheets to process")
	}
	start := time.Now()
	res := &Result{RunID: uuid.New()}
	log := r.logger().With("run_id", res.RunID.String())

	newReader := r.NewReader
	if newReader == nil {
		newReader = parser.ForPath
	}
	reader, err := newReader(path, r.Parser)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}

	labels := transformer.UniqueLabels(sheets)
	slots := make([]melted, len(sheets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.SheetWorkers))
	for i := range sheets {
		g.Go(func() error {
			m, err := r.processSheet(gctx, log, reader, path, sheets[i], labels[i])
			if err != nil {
				return err
			}
			slots[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("run failed", "stage", "sheets", "err", err)
		return nil, err
	}

	inputs := make([]merge.Input, len(slots))
	for i, m := range slots {
		inputs[i] = merge.Input{Label: m.stats.Label, Table: m.table}
		res.Sheets = append(res.Sheets, m.stats)
		res.Warnings = append(res.Warnings, m.warnings...)
	}

	var merged *merge.Result
	err = step("merge", func() error {
		var err error
		merged, err = merge.Merge(inputs, merge.Options{Join: r.Join})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	res.Table = merged.Table
	for i, n := range merged.Unmatched {
		res.Sheets[i].Unmatched = n
	}
	for _, w := range merged.Warnings {
		log.Warn("merge warning", "stage", "merge", "join", r.Join.String(), "err", w)
		metrics.RecordWarning(warningKind(w))
		res.Warnings = append(res.Warnings, w)
	}
	metrics.RecordRows("merged", res.Table.Len())

	res.Duration = time.Since(start)
	log.Info("run complete", "stage", "merge", "sheets", len(sheets), "rows", res.Table.Len(),
		"warnings", len(res.Warnings), "duration", res.Duration.Truncate(time.Millisecond))
	return res, nil
}

func (r *Runner) processSheet(ctx context.Context, log *slog.Logger, reader sheet.Reader, path, name, label string) (melted, error) {
	start := time.Now()
	out := melted{stats: SheetStats{Sheet: name, Label: label}}
	log = log.With("sheet", name)
	cat := r.catalog()

	var rejected atomic.Int64
	loader := sheet.Loader{
		Reader:  reader,
		Catalog: cat,
		OnReject: func(row int, column string, err error) {
			rejected.Add(1)
			log.Debug("cell rejected", "row", row, "column", column, "err", err)
		},
		Logger: log,
	}

	var typed *frame.Table
	if err := step("load", func() error {
		var err error
		typed, err = loader.Load(ctx, path, name)
		return err
	}); err != nil {
		return out, err
	}
	out.stats.Rows = typed.Len()
	out.stats.Rejected = int(rejected.Load())
	metrics.RecordRows("loaded", typed.Len())
	if out.stats.Rejected > 0 {
		metrics.RecordRows("rejected", out.stats.Rejected)
		out.warn(log, fmt.Errorf("%w: %d", ErrRejectedCells, out.stats.Rejected))
	}

	fp := transformer.Fingerprinter{Catalog: cat, Spec: r.Fingerprint}
	var hashed *frame.Table
	if err := step("fingerprint", func() error {
		var (
			st  transformer.FingerprintStats
			err error
		)
		hashed, st, err = fp.Apply(typed)
		if err != nil {
			return err
		}
		out.stats.IdentityColumns = st.IdentityColumns
		for _, w := range st.Warnings() {
			out.warn(log, w)
		}
		return nil
	}); err != nil {
		return out, fmt.Errorf("sheet %q: %w", name, err)
	}

	fpCol := r.Fingerprint.TargetField
	if fpCol == "" {
		fpCol = transformer.FingerprintColumn
	}
	opts := transformer.MeltOptions{FingerprintColumn: fpCol}
	if r.DecodeSerials {
		opts.PeriodLabel = period.Label
	}
	var long *frame.Table
	if err := step("melt", func() error {
		out.stats.Periods = len(transformer.PeriodColumns(hashed, cat, fpCol))
		var err error
		if long, err = transformer.Melt(hashed, label, cat, opts); err != nil {
			return err
		}
		if fpCol != transformer.FingerprintColumn {
			long, err = long.Rename(fpCol, transformer.FingerprintColumn)
		}
		return err
	}); err != nil {
		return out, fmt.Errorf("sheet %q: %w", name, err)
	}
	out.table = long
	out.stats.Melted = long.Len()
	out.stats.Duration = time.Since(start)
	metrics.RecordRows("melted", long.Len())

	log.Info("sheet ready", "stage", "melt", "label", label, "rows", out.stats.Rows,
		"periods", out.stats.Periods, "melted", out.stats.Melted,
		"duration", out.stats.Duration.Truncate(time.Millisecond))
	return out, nil
}

func (m *melted) warn(log *slog.Logger, err error) {
	w := &SheetWarning{Sheet: m.stats.Sheet, Err: err}
	log.Warn("sheet warning", "err", err)
	metrics.RecordWarning(warningKind(err))
	m.warnings = append(m.warnings, w)
}

// step times fn and records it as a pipeline step.
func step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep(name, status, time.Since(start))
	return err
}

func warningKind(err error) string {
	switch {
	case errors.Is(err, merge.ErrJoinEmpty):
		return "join_empty"
	case errors.Is(err, transformer.ErrNoIdentityColumns):
		return "no_identity_columns"
	case errors.Is(err, transformer.ErrAllNullIdentity):
		return "all_null_identity"
	case errors.Is(err, ErrRejectedCells):
		return "rejected_cells"
	}
	return "other"
}

func (r *Runner) catalog() *catalog.Catalog {
	if r.Catalog == nil {
		return catalog.Default()
	}
	return r.Catalog
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

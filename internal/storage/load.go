package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sheetetl/internal/frame"
	"sheetetl/internal/metrics"
)

// Load modes.
const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// LoadOptions control Load.
type LoadOptions struct {
	Table string
	// Mode is ModeAppend (default) or ModeReplace.
	Mode      string
	BatchSize int
	// DebugTimings logs every batch insert.
	DebugTimings bool
	Logger       *slog.Logger
}

// LoadStats reports what Load wrote.
type LoadStats struct {
	Rows    int
	Written int64
	Batches int
}

// Load writes a unified table. Every column after checksum and date is a
// value column. In append mode rows whose (checksum, date) already exist are
// skipped; replace mode truncates first.
func Load(ctx context.Context, repo Repository, t *frame.Table, opt LoadOptions) (LoadStats, error) {
	var st LoadStats
	if opt.Mode == "" {
		opt.Mode = ModeAppend
	}
	if opt.Mode != ModeAppend && opt.Mode != ModeReplace {
		return st, fmt.Errorf("unknown load mode %q", opt.Mode)
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	cols := t.Columns()
	if len(cols) < 2 || cols[0] != ChecksumColumn || cols[1] != DateColumn {
		return st, fmt.Errorf("load %s: table must start with %s, %s; got %v", opt.Table, ChecksumColumn, DateColumn, cols)
	}
	spec := UnifiedTableSpec(opt.Table, cols[2:])
	if err := spec.Validate(); err != nil {
		return st, err
	}

	if err := repo.EnsureTable(ctx, spec); err != nil {
		return st, fmt.Errorf("ensure table %s: %w", opt.Table, err)
	}
	var conflict []string
	if opt.Mode == ModeReplace {
		if err := repo.Truncate(ctx, opt.Table); err != nil {
			return st, fmt.Errorf("truncate %s: %w", opt.Table, err)
		}
	} else {
		conflict = spec.Unique
	}

	rows := t.Rows()
	st.Rows = len(rows)
	for _, batch := range Chunks(rows, opt.BatchSize) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		start := time.Now()
		n, err := repo.InsertRows(ctx, opt.Table, cols, batch, conflict)
		if err != nil {
			return st, fmt.Errorf("insert into %s (batch %d): %w", opt.Table, st.Batches+1, err)
		}
		st.Written += n
		st.Batches++
		if opt.DebugTimings {
			log.Debug("insert batch", "table", opt.Table, "batch", st.Batches, "rows", len(batch), "written", n, "duration", time.Since(start))
		}
	}
	metrics.RecordBatches(st.Batches)
	metrics.RecordRows("persisted", int(st.Written))
	return st, nil
}

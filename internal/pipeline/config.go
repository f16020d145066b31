package pipeline

import (
	"context"
	"errors"
	"fmt"

	"sheetetl/internal/config"
	"sheetetl/internal/parser"
	"sheetetl/internal/storage"
)

// ErrInvalidConfig wraps configuration errors found by config.ValidatePipeline.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// Configure copies a pipeline config into the runner options.
func (r *Runner) Configure(cfg config.Pipeline) error {
	cat, err := cfg.BuildCatalog()
	if err != nil {
		return err
	}
	join, err := cfg.Transform.JoinKind()
	if err != nil {
		return err
	}
	var delim rune
	for _, c := range cfg.Source.Delimiter {
		delim = c
		break
	}
	r.Catalog = cat
	r.Parser = parser.Options{
		Format:    cfg.Source.Format,
		Charset:   cfg.Source.Charset,
		Delimiter: delim,
		Password:  cfg.Source.Password,
	}
	r.Fingerprint = cfg.Transform.Fingerprint
	r.DecodeSerials = cfg.Transform.Periods.Decode()
	r.Join = join
	r.SheetWorkers = cfg.Runtime.SheetWorkers
	return nil
}

// RunPipeline validates cfg, runs it and, when storage is configured,
// writes the unified table.
//
// Errors:
//   - ErrInvalidConfig when validation reports an error-level issue.
//   - Anything Run returns.
//   - Storage open or write failures; the merged result is still returned.
func (r *Runner) RunPipeline(ctx context.Context, cfg config.Pipeline) (*Result, error) {
	cfg = cfg.Normalize()
	issues := config.ValidatePipeline(cfg)
	var errs []error
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			errs = append(errs, errors.New(iss.String()))
			continue
		}
		r.logger().Warn("config warning", "path", iss.Path, "msg", iss.Message)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	if err := r.Configure(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	res, err := r.Run(ctx, cfg.Source.Path, cfg.Source.Sheets)
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled() {
		return res, nil
	}

	log := r.logger().With("run_id", res.RunID.String(), "job", cfg.Job)
	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}
	var st storage.LoadStats
	err = step("persist", func() error {
		repo, err := newRepo(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
		if err != nil {
			return err
		}
		defer repo.Close()
		st, err = storage.Load(ctx, repo, res.Table, storage.LoadOptions{
			Table:        cfg.Storage.Table,
			Mode:         cfg.Storage.Mode,
			BatchSize:    cfg.Runtime.BatchSize,
			DebugTimings: cfg.Runtime.DebugTimings,
			Logger:       log,
		})
		return err
	})
	if err != nil {
		return res, fmt.Errorf("pipeline: persist: %w", err)
	}
	res.Stored = &st
	log.Info("table stored", "stage", "persist", "backend", cfg.Storage.Kind, "table", cfg.Storage.Table,
		"mode", cfg.Storage.Mode, "written", st.Written, "batches", st.Batches)
	return res, nil
}

// Command sheetetl melts the period columns of selected workbook tabs and
// merges them into one (checksum, date) table, optionally persisting it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sheetetl/internal/config"
	"sheetetl/internal/logging"
	"sheetetl/internal/metrics"
	"sheetetl/internal/metrics/datadog"
	"sheetetl/internal/pipeline"
	"sheetetl/internal/report"

	// config picks the backend; every one is compiled in.
	_ "sheetetl/internal/storage/all"
)

const usage = "usage: sheetetl -config pipeline.json | -file book.xlsx -sheets A,B [-out unified.csv]"

type runner interface {
	RunPipeline(ctx context.Context, cfg config.Pipeline) (*pipeline.Result, error)
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	loadConfig   func(path string) (config.Pipeline, error)
	setupLogging func(opt logging.Options) (*slog.Logger, func(), error)
	initMetrics  func(ctx context.Context, jobName, backendName string) (func(), error)
	newRunner    func(logger *slog.Logger) runner
	createFile   func(path string) (io.WriteCloser, error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:   config.Load,
		setupLogging: logging.Setup,
		initMetrics:  initMetrics,
		newRunner:    func(l *slog.Logger) runner { return pipeline.NewDefaultRunner(l) },
		createFile:   func(p string) (io.WriteCloser, error) { return os.Create(p) },
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain executes the CLI and returns the process exit code: 0 on success,
// 1 on config or run failures and 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fset := flag.NewFlagSet("sheetetl", flag.ContinueOnError)
	fset.SetOutput(stderr)
	var (
		cfgPath     = fset.String("config", "", "pipeline config JSON path")
		file        = fset.String("file", "", "workbook path or URL (overrides source.path)")
		sheets      = fset.String("sheets", "", "comma-separated sheet names (overrides source.sheets)")
		out         = fset.String("out", "", "write the unified table as CSV to this path (- for stdout)")
		limit       = fset.Int("limit", 20, "rows to preview when -out is not set (0 = all)")
		summary     = fset.Bool("summary", false, "print per-column statistics")
		validate    = fset.Bool("validate", false, "validate the configuration and exit")
		backendName = fset.String("metrics-backend", "", "metrics backend: datadog or none (default $METRICS_BACKEND)")
		logLevel    = fset.String("log-level", "info", "log level: debug, info, warn, error")
		logJSON     = fset.Bool("log-json", false, "log as JSON")
		seqURL      = fset.String("seq-url", "", "also ship logs to this Seq server (default $SEQ_URL)")
		verbose     = fset.Bool("v", false, "shorthand for -log-level debug")
	)
	if err := fset.Parse(args); err != nil {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	*cfgPath = strings.TrimSpace(*cfgPath)
	if *cfgPath == "" && (strings.TrimSpace(*file) == "" || strings.TrimSpace(*sheets) == "") {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var cfg config.Pipeline
	if *cfgPath != "" {
		var err error
		if cfg, err = deps.loadConfig(*cfgPath); err != nil {
			fmt.Fprintf(stderr, "read config: %v\n", err)
			return 1
		}
	}
	if f := strings.TrimSpace(*file); f != "" {
		cfg.Source.Path = f
	}
	if s := strings.TrimSpace(*sheets); s != "" {
		cfg.Source.Sheets = splitCSV(s)
	}
	cfg = cfg.Normalize()

	hasError := false
	for _, iss := range config.ValidatePipeline(cfg) {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fmt.Fprintf(stderr, "configuration is invalid\n")
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	if *verbose {
		*logLevel = "debug"
	}
	if *seqURL == "" {
		*seqURL = os.Getenv("SEQ_URL")
	}
	logger, closeLogs, err := deps.setupLogging(logging.Options{
		Level:  *logLevel,
		JSON:   *logJSON,
		SeqURL: *seqURL,
		Output: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "init logging: %v\n", err)
		return 2
	}
	defer closeLogs()

	if *backendName == "" {
		*backendName = os.Getenv("METRICS_BACKEND")
	}
	cleanup, err := deps.initMetrics(ctx, cfg.Job, *backendName)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	start := time.Now()
	res, err := deps.newRunner(logger).RunPipeline(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %v\n", w)
	}

	if err := writeOutput(stdout, deps, res, *out, *limit, *summary); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	logger.Info("done", "run_id", res.RunID.String(), "rows", res.Table.Len(),
		"duration", time.Since(start).Truncate(time.Millisecond))
	return 0
}

func writeOutput(stdout io.Writer, deps appDeps, res *pipeline.Result, out string, limit int, summary bool) error {
	switch out {
	case "":
		if err := report.WriteText(stdout, res.Table, limit); err != nil {
			return err
		}
	case "-":
		if err := report.WriteCSV(stdout, res.Table); err != nil {
			return err
		}
	default:
		f, err := deps.createFile(out)
		if err != nil {
			return err
		}
		if err := report.WriteCSV(f, res.Table); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if !summary {
		return nil
	}
	sums, err := report.Summarize(res.Table)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return report.WriteSummary(stdout, sums)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// metricsBackend is what initMetrics needs from a concrete backend.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) metricsBackend {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// initMetrics installs the named metrics backend. The returned cleanup is
// never nil; for datadog it stops the flush loop and submits what is left.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return func() {}, nil
	case "datadog", "dd":
		b := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil
	}
	return func() {}, fmt.Errorf("unknown metrics backend %q (want datadog or none)", backendName)
}

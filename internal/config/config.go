// Package config defines the pipeline JSON config and its validation.
//
//	{
//	  "job": "monthly_sales",
//	  "source": {"path": "book.xlsx", "sheets": ["Sales", "Costs"]},
//	  "catalog": [{"name": "Account", "shared": true, "type": "string"}],
//	  "transform": {"fingerprint": {"mode": "compat"}, "join": "inner"},
//	  "storage": {"kind": "postgres", "dsn": "${DATABASE_URL}", "table": "unified", "mode": "replace"},
//	  "runtime": {"sheet_workers": 2, "batch_size": 1000}
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"sheetetl/internal/catalog"
	"sheetetl/internal/frame"
	"sheetetl/internal/transformer"
)

// Defaults applied by Load and Normalize.
const (
	DefaultJob          = "sheetetl"
	DefaultSheetWorkers = 1
	DefaultBatchSize    = 1000
	DefaultTable        = "unified_timeseries"
)

// Storage modes.
const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// Pipeline is the top-level config document.
type Pipeline struct {
	Job       string              `json:"job"`
	Source    Source              `json:"source"`
	Catalog   []catalog.FieldSpec `json:"catalog,omitempty"`
	Transform Transform           `json:"transform"`
	Storage   Storage             `json:"storage"`
	Runtime   Runtime             `json:"runtime"`
}

// Source names the workbook and the tabs to merge.
type Source struct {
	// Path is a file, a directory of CSV files, or an http(s) URL.
	Path   string   `json:"path"`
	Sheets []string `json:"sheets"`
	// Format is xlsx, html or csv; empty means detect from Path.
	Format    string `json:"format,omitempty"`
	Charset   string `json:"charset,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	// Password opens encrypted xlsx workbooks.
	Password string `json:"password,omitempty"`
}

// Transform configures fingerprinting, period labels and the join.
type Transform struct {
	Fingerprint transformer.FingerprintSpec `json:"fingerprint"`
	Periods     Periods                     `json:"periods"`
	// Join is "inner" (default) or "outer".
	Join string `json:"join,omitempty"`
}

// JoinKind maps Join to the table join semantics.
func (t Transform) JoinKind() (frame.JoinKind, error) {
	switch strings.ToLower(strings.TrimSpace(t.Join)) {
	case "", "inner":
		return frame.JoinInner, nil
	case "outer", "full":
		return frame.JoinOuter, nil
	}
	return frame.JoinInner, fmt.Errorf("unknown join %q (want inner or outer)", t.Join)
}

// Periods controls how period column headers become labels.
type Periods struct {
	// DecodeSerials turns numeric headers (spreadsheet date serials) into
	// "MM_YYYY" labels. Defaults to true.
	DecodeSerials *bool `json:"decode_serials,omitempty"`
}

// Decode reports the effective DecodeSerials setting.
func (p Periods) Decode() bool {
	return p.DecodeSerials == nil || *p.DecodeSerials
}

// Storage selects an optional sink for the unified table. An empty Kind
// disables persistence.
type Storage struct {
	Kind  string `json:"kind,omitempty"`
	DSN   string `json:"dsn,omitempty"`
	Table string `json:"table,omitempty"`
	// Mode is ModeAppend (default) or ModeReplace.
	Mode string `json:"mode,omitempty"`
}

// Enabled reports whether a sink is configured.
func (s Storage) Enabled() bool { return s.Kind != "" }

// Runtime tunes execution.
type Runtime struct {
	SheetWorkers int  `json:"sheet_workers"`
	BatchSize    int  `json:"batch_size"`
	DebugTimings bool `json:"debug_timings"`
}

// Load reads and decodes a config file, then applies Normalize.
// Unknown JSON fields are rejected so typos surface early.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var p Pipeline
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p.Normalize(), nil
}

// Normalize fills defaults and expands ${VAR} references in the DSN.
func (p Pipeline) Normalize() Pipeline {
	if p.Job == "" {
		p.Job = DefaultJob
	}
	p.Source.Format = strings.ToLower(strings.TrimSpace(p.Source.Format))
	if p.Runtime.SheetWorkers <= 0 {
		p.Runtime.SheetWorkers = DefaultSheetWorkers
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = DefaultBatchSize
	}
	p.Storage.Kind = strings.ToLower(strings.TrimSpace(p.Storage.Kind))
	if p.Storage.Enabled() {
		p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
		if p.Storage.Table == "" {
			p.Storage.Table = DefaultTable
		}
		if p.Storage.Mode == "" {
			p.Storage.Mode = ModeAppend
		}
	}
	return p
}

// BuildCatalog returns the configured catalog, or the built-in one when the
// config lists none.
func (p Pipeline) BuildCatalog() (*catalog.Catalog, error) {
	if len(p.Catalog) == 0 {
		return catalog.Default(), nil
	}
	return catalog.FromSpecs(p.Catalog)
}

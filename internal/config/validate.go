package config

import (
	"fmt"
	"strings"

	"sheetetl/internal/catalog"
)

// Severity grades a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a JSON-ish pointer into the config
// such as "source.sheets[1]".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var storageKinds = map[string]bool{"postgres": true, "sqlite": true, "mssql": true}

var sourceFormats = map[string]bool{"": true, "xlsx": true, "html": true, "csv": true}

// ValidatePipeline checks a normalized config. Errors abort the run before
// any file is read; warnings are printed and the run continues.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Source.Path) == "" {
		add(SeverityError, "source.path", "is required")
	}
	if len(p.Source.Sheets) == 0 {
		add(SeverityError, "source.sheets", "at least one sheet is required")
	}
	seen := make(map[string]int, len(p.Source.Sheets))
	for i, s := range p.Source.Sheets {
		path := fmt.Sprintf("source.sheets[%d]", i)
		if strings.TrimSpace(s) == "" {
			add(SeverityError, path, "sheet name is empty")
			continue
		}
		if j, dup := seen[s]; dup {
			add(SeverityError, path, "duplicate of source.sheets[%d] %q", j, s)
			continue
		}
		seen[s] = i
	}
	if !sourceFormats[p.Source.Format] {
		add(SeverityError, "source.format", "unknown format %q (want xlsx, html or csv)", p.Source.Format)
	}
	if len([]rune(p.Source.Delimiter)) > 1 {
		add(SeverityError, "source.delimiter", "must be a single character, got %q", p.Source.Delimiter)
	}

	if len(p.Catalog) > 0 {
		if _, err := catalog.FromSpecs(p.Catalog); err != nil {
			add(SeverityError, "catalog", "%v", err)
		}
		for _, i := range catalog.UnknownTypes(p.Catalog) {
			add(SeverityWarning, fmt.Sprintf("catalog[%d].type", i), "unknown type %q, treated as string", p.Catalog[i].Type)
		}
		shared := false
		for _, f := range p.Catalog {
			shared = shared || f.Shared
		}
		if !shared {
			add(SeverityWarning, "catalog", "no shared fields; every row will get the same fingerprint")
		}
	}

	if err := p.Transform.Fingerprint.Validate(); err != nil {
		add(SeverityError, "transform.fingerprint", "%v", err)
	}
	if _, err := p.Transform.JoinKind(); err != nil {
		add(SeverityError, "transform.join", "%v", err)
	}

	if p.Storage.Enabled() {
		if !storageKinds[p.Storage.Kind] {
			add(SeverityError, "storage.kind", "unknown backend %q (want postgres, sqlite or mssql)", p.Storage.Kind)
		}
		if strings.TrimSpace(p.Storage.DSN) == "" {
			add(SeverityError, "storage.dsn", "is required when storage.kind is set")
		}
		if p.Storage.Mode != ModeAppend && p.Storage.Mode != ModeReplace {
			add(SeverityError, "storage.mode", "unknown mode %q (want %s or %s)", p.Storage.Mode, ModeAppend, ModeReplace)
		}
	}

	if p.Runtime.SheetWorkers > len(p.Source.Sheets) && len(p.Source.Sheets) > 0 {
		add(SeverityWarning, "runtime.sheet_workers", "%d workers for %d sheets; extra workers stay idle", p.Runtime.SheetWorkers, len(p.Source.Sheets))
	}
	return issues
}

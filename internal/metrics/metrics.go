// Package metrics is the process-wide metrics facade used by the pipeline.
//
// Pipeline code records through the helpers below (RecordStep, RecordRows,
// RecordWarning, RecordBatches). They forward to the installed Backend, which
// is a no-op until SetBackend is called, so tests and library callers pay
// nothing for metrics they do not collect.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
	WarningsTotal       = "etl_warnings_total"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide; nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordStep counts one pipeline step and observes its duration.
// status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows by kind (loaded, melted, merged, persisted, rejected).
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatches counts storage batches.
func RecordBatches(n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(n), nil)
}

// RecordWarning counts one non-fatal condition by kind.
func RecordWarning(kind string) {
	current().IncCounter(WarningsTotal, 1, Labels{"kind": kind})
}

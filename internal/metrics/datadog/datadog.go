// Package datadog ships pipeline metrics to Datadog.
//
// Events are buffered in memory and submitted on a ticker (default once a
// minute) and once more on Close, so long runs produce a time series and
// short runs still report their tail. Flush snapshots and resets the buffers
// under the lock and submits outside it.
//
// A process killed with SIGKILL never reaches Close; the last window is lost.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"sheetetl/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options configure NewBackend.
type Options struct {
	// JobName becomes tag "job:<name>"; empty means "sheetetl".
	JobName string

	// Tags are extra Datadog tags, e.g. "service:sheetetl".
	Tags []string

	// FlushEvery defaults to 60s.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu  sync.Mutex
	buf buffers
}

// buffers hold one collection window.
type buffers struct {
	steps     map[string]float64   // step\x00status -> count
	durations map[string][]float64 // step\x00status -> seconds
	rows      map[string]float64   // kind -> rows
	warnings  map[string]float64   // kind -> count
	batches   float64
}

func newBuffers() buffers {
	return buffers{
		steps:     make(map[string]float64),
		durations: make(map[string][]float64),
		rows:      make(map[string]float64),
		warnings:  make(map[string]float64),
	}
}

func (s buffers) isEmpty() bool {
	return len(s.steps) == 0 &&
		len(s.durations) == 0 &&
		len(s.rows) == 0 &&
		len(s.warnings) == 0 &&
		s.batches == 0
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend starts a Datadog backend. Credentials and site come from the
// usual DD_API_KEY / DD_SITE environment variables read by the client.
// Network errors surface from Flush, never from NewBackend.
func NewBackend(parent context.Context, opts Options) *Backend {
	job := opts.JobName
	if job == "" {
		job = "sheetetl"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	b := &Backend{
		api:        opts.submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        opts.now,
		newTicker:  opts.newTicker,
		buf:        newBuffers(),
	}
	if b.api == nil {
		b.api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newTicker == nil {
		b.newTicker = time.NewTicker
	}

	go b.loop()
	return b
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits what is left. Calling it again
// only repeats the final Flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.buf.steps[stepStatusKey(labels["step"], labels["status"])] += delta
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.buf.rows[kind] += delta
		}
	case metrics.WarningsTotal:
		b.buf.warnings[orUnknown(labels["kind"])] += delta
	case metrics.BatchesTotal:
		b.buf.batches += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	k := stepStatusKey(labels["step"], labels["status"])
	b.mu.Lock()
	b.buf.durations[k] = append(b.buf.durations[k], value)
	b.mu.Unlock()
}

func (b *Backend) snapshotAndReset() buffers {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf
	b.buf = newBuffers()
	return s
}

// Flush submits the buffered window and resets it.
//
// Errors:
//   - Returns the Datadog submission error, if any. The window is dropped
//     either way; delivery is at most once.
//   - Returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure so the naming and tagging contract can be tested
// without a network.
func (b *Backend) buildSeries(s buffers, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.steps)+len(s.rows)+len(s.warnings)+6*len(s.durations)+1)

	for k, v := range s.steps {
		step, status := splitStepStatusKey(k)
		series = append(series, countSeries("sheetetl.step.total", v, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}
	for kind, v := range s.rows {
		series = append(series, countSeries("sheetetl.rows.total", v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}
	for kind, v := range s.warnings {
		series = append(series, countSeries("sheetetl.warnings.total", v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}
	if s.batches != 0 {
		series = append(series, countSeries("sheetetl.batches.total", s.batches, b.baseTags, nowUnix))
	}
	for k, samples := range s.durations {
		step, status := splitStepStatusKey(k)
		series = appendPercentiles(series, "sheetetl.step.duration_seconds", samples, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix)
	}
	return series
}

// appendPercentiles adds p50/p90/p95/p99/max/samples gauges. samples is not
// mutated.
func appendPercentiles(series []datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return series
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	return append(series,
		gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(prefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(prefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func point(value float64, nowUnix int64) []datadogV2.MetricPoint {
	return []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)}}
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: point(value, nowUnix),
		Tags:   tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: point(value, nowUnix),
		Tags:   tags,
	}
}

func stepStatusKey(step, status string) string {
	return orUnknown(step) + "\x00" + orUnknown(status)
}

func splitStepStatusKey(k string) (step, status string) {
	step, status, ok := strings.Cut(k, "\x00")
	if !ok {
		return k, "unknown"
	}
	return step, status
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return s[0]
	case p >= 1:
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	return s[min(max(idx, 0), n-1)]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV splits "env:prod,service:sheetetl" into tags, dropping blanks.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

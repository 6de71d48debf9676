// Package metrics is the process-wide metrics facade used by docnorm.
//
// Core code records through the package-level helpers; the CLI picks a Backend
// (datadog, prompush) at startup with SetBackend. Without one every call is a
// no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions. Backends ignore labels they do not know.
type Labels map[string]string

// Backend receives counters and histogram observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names. Backends map them to their own naming scheme.
const (
	StageTotal           = "docnorm_stage_total"            // labels: stage, status
	StageDurationSeconds = "docnorm_stage_duration_seconds" // labels: stage, status
	DocumentsTotal       = "docnorm_documents_total"        // labels: route
	RowsTotal            = "docnorm_rows_total"             // labels: kind
	LoadBatchesTotal     = "docnorm_load_batches_total"
	QueriesTotal         = "docnorm_queries_total"          // labels: status
	QueryDurationSeconds = "docnorm_query_duration_seconds" // labels: status
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. nil restores the no-op.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend.
func Flush() error { return current().Flush() }

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one observation on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage counts one run of a pipeline stage (parse, classify, decompose,
// group, tabulate, load, ...) and its duration.
func RecordStage(stage string, err error, d time.Duration) {
	l := Labels{"stage": stage, "status": status(err)}
	b := current()
	b.IncCounter(StageTotal, 1, l)
	b.ObserveHistogram(StageDurationSeconds, d.Seconds(), l)
}

// RecordDocument counts one normalized document by route.
func RecordDocument(route string) {
	IncCounter(DocumentsTotal, 1, Labels{"route": route})
}

// RecordRows counts produced rows by table kind (flat, parent, child).
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one insert batch sent to storage.
func RecordBatch() {
	IncCounter(LoadBatchesTotal, 1, nil)
}

// RecordQuery counts one relational or path query and its duration.
func RecordQuery(err error, d time.Duration) {
	l := Labels{"status": status(err)}
	b := current()
	b.IncCounter(QueriesTotal, 1, l)
	b.ObserveHistogram(QueryDurationSeconds, d.Seconds(), l)
}

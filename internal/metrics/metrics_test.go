package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu      sync.Mutex
	calls   []call
	flushes int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{kind: "counter", name: name, value: delta, labels: labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{kind: "histogram", name: name, value: value, labels: labels})
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// Tests in this file swap the process-wide backend and must not run in parallel.

func TestHelpers_RecordThroughBackend(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStage("classify", nil, 1500*time.Millisecond)
	RecordStage("parse", errors.New("bad"), 0)
	RecordDocument("grouped")
	RecordRows("child", 3)
	RecordRows("flat", 0)
	RecordBatch()
	RecordQuery(nil, time.Second)

	if err := Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}

	want := []call{
		{kind: "counter", name: StageTotal, value: 1, labels: Labels{"stage": "classify", "status": "ok"}},
		{kind: "histogram", name: StageDurationSeconds, value: 1.5, labels: Labels{"stage": "classify", "status": "ok"}},
		{kind: "counter", name: StageTotal, value: 1, labels: Labels{"stage": "parse", "status": "error"}},
		{kind: "histogram", name: StageDurationSeconds, value: 0, labels: Labels{"stage": "parse", "status": "error"}},
		{kind: "counter", name: DocumentsTotal, value: 1, labels: Labels{"route": "grouped"}},
		{kind: "counter", name: RowsTotal, value: 3, labels: Labels{"kind": "child"}},
		{kind: "counter", name: LoadBatchesTotal, value: 1, labels: nil},
		{kind: "counter", name: QueriesTotal, value: 1, labels: Labels{"status": "ok"}},
		{kind: "histogram", name: QueryDurationSeconds, value: 1, labels: Labels{"status": "ok"}},
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls=%d want %d: %+v", len(rec.calls), len(want), rec.calls)
	}
	for i := range want {
		got := rec.calls[i]
		if got.kind != want[i].kind || got.name != want[i].name || got.value != want[i].value || len(got.labels) != len(want[i].labels) {
			t.Fatalf("call %d = %+v, want %+v", i, got, want[i])
		}
		for k, v := range want[i].labels {
			if got.labels[k] != v {
				t.Fatalf("call %d label %s=%q want %q", i, k, got.labels[k], v)
			}
		}
	}
	if rec.flushes != 1 {
		t.Fatalf("flushes=%d want 1", rec.flushes)
	}
}

func TestSetBackend_NilRestoresNop(t *testing.T) {
	SetBackend(&recorder{})
	SetBackend(nil)
	t.Cleanup(func() { SetBackend(nil) })

	if _, ok := current().(nopBackend); !ok {
		t.Fatalf("current()=%T, want nopBackend", current())
	}
	// No panic, no error.
	RecordStage("x", nil, time.Millisecond)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
}

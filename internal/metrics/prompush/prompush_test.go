package prompush

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docnorm/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewBackend("", "http://localhost:9091")
	require.Error(t, err)
	_, err = NewBackend("docnorm", " ")
	require.Error(t, err)

	b, err := NewBackend("docnorm", "http://localhost:9091")
	require.NoError(t, err)
	assert.NotNil(t, b.Gatherer())
}

func TestBackend_Collects(t *testing.T) {
	t.Parallel()

	b := newBackend()
	b.IncCounter(metrics.StageTotal, 2, metrics.Labels{"stage": "parse", "status": "ok"})
	b.IncCounter(metrics.DocumentsTotal, 1, metrics.Labels{"route": "grouped"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "flat"})
	b.IncCounter(metrics.RowsTotal, 0, metrics.Labels{"kind": "flat"})
	b.IncCounter(metrics.LoadBatchesTotal, 1, nil)
	b.IncCounter(metrics.QueriesTotal, 1, nil)
	b.IncCounter("unknown_total", 1, nil)
	b.ObserveHistogram(metrics.StageDurationSeconds, 0.25, metrics.Labels{"stage": "parse", "status": "ok"})
	b.ObserveHistogram(metrics.QueryDurationSeconds, 0.01, metrics.Labels{"status": "error"})

	got := gather(t, b)
	assert.Equal(t, 2.0, got[metrics.StageTotal+"{stage=parse,status=ok}"])
	assert.Equal(t, 1.0, got[metrics.DocumentsTotal+"{route=grouped}"])
	assert.Equal(t, 5.0, got[metrics.RowsTotal+"{kind=flat}"])
	assert.Equal(t, 1.0, got[metrics.LoadBatchesTotal+"{}"])
	assert.Equal(t, 1.0, got[metrics.QueriesTotal+"{status=unknown}"])
	assert.Equal(t, 1.0, got[metrics.StageDurationSeconds+"{stage=parse,status=ok}"], "histogram sample count")
	assert.Equal(t, 1.0, got[metrics.QueryDurationSeconds+"{status=error}"], "histogram sample count")
}

// gather flattens the registry into "name{k=v,...}" -> counter value or
// histogram sample count.
func gather(t *testing.T, b *Backend) map[string]float64 {
	t.Helper()

	families, err := b.Gatherer().Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}
			key := mf.GetName() + "{" + strings.Join(pairs, ",") + "}"
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		hits   atomic.Int32
		path   atomic.Value
		method atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		method.Store(r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("docnorm_test", srv.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.LoadBatchesTotal, 1, nil)

	require.NoError(t, b.Flush())
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, strings.HasSuffix(path.Load().(string), "/metrics/job/docnorm_test"), "path=%v", path.Load())
	assert.Equal(t, http.MethodPut, method.Load())
}

func TestFlush_WrapsPushError(t *testing.T) {
	t.Parallel()

	b := newBackend()
	b.push = func() error { return errors.New("gateway down") }

	err := b.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompush: push: gateway down")
}

func TestFlush_WithoutPusherIsNoop(t *testing.T) {
	t.Parallel()

	b := newBackend()
	assert.NoError(t, b.Flush())
}

func TestRecordHelpers_ThroughFacade(t *testing.T) {
	b := newBackend()
	metrics.SetBackend(b)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	metrics.RecordStage("load", errors.New("x"), 10*time.Millisecond)
	metrics.RecordQuery(nil, time.Millisecond)

	got := gather(t, b)
	assert.Equal(t, 1.0, got[metrics.StageTotal+"{stage=load,status=error}"])
	assert.Equal(t, 1.0, got[metrics.QueriesTotal+"{status=ok}"])
}

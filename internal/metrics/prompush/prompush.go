// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Collectors live in a private registry so the process default registry stays
// untouched. Nothing is sent until Flush, which pushes the whole registry
// (PUT semantics: the job's previous group is replaced).
package prompush

import (
	"fmt"
	"strings"

	"docnorm/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend implements metrics.Backend by accumulating into Prometheus collectors.
type Backend struct {
	reg  *prometheus.Registry
	push func() error

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	documents     *prometheus.CounterVec
	rows          *prometheus.CounterVec
	batches       prometheus.Counter
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// NewBackend registers the docnorm collectors and prepares a pusher for
// gatewayURL under job jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(jobName) == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: empty pushgateway url")
	}

	b := newBackend()
	pusher := push.New(gatewayURL, jobName).Gatherer(b.reg)
	b.push = pusher.Push
	return b, nil
}

func newBackend() *Backend {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Backend{
		reg: reg,
		stageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Pipeline stage runs by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StageDurationSeconds,
			Help:    "Pipeline stage duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.DocumentsTotal,
			Help: "Normalized documents by route.",
		}, []string{"route"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Produced rows by table kind.",
		}, []string{"kind"}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.LoadBatchesTotal,
			Help: "Insert batches sent to storage.",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.QueriesTotal,
			Help: "Relational and path queries by status.",
		}, []string{"status"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.QueryDurationSeconds,
			Help:    "Query duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}
}

func labelOr(labels metrics.Labels, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// IncCounter implements metrics.Backend. Unknown names and non-positive deltas
// are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StageTotal:
		b.stageTotal.WithLabelValues(labelOr(labels, "stage"), labelOr(labels, "status")).Add(delta)
	case metrics.DocumentsTotal:
		b.documents.WithLabelValues(labelOr(labels, "route")).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labelOr(labels, "kind")).Add(delta)
	case metrics.LoadBatchesTotal:
		b.batches.Add(delta)
	case metrics.QueriesTotal:
		b.queries.WithLabelValues(labelOr(labels, "status")).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StageDurationSeconds:
		b.stageDuration.WithLabelValues(labelOr(labels, "stage"), labelOr(labels, "status")).Observe(value)
	case metrics.QueryDurationSeconds:
		b.queryDuration.WithLabelValues(labelOr(labels, "status")).Observe(value)
	}
}

// Flush pushes the registry to the gateway. Collectors are cumulative and are
// not reset.
func (b *Backend) Flush() error {
	if b.push == nil {
		return nil
	}
	if err := b.push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Gatherer exposes the private registry, e.g. for a /metrics handler.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }

var _ metrics.Backend = (*Backend)(nil)

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"docnorm/internal/config"
	"docnorm/internal/metrics"
	"docnorm/internal/metrics/datadog"
	"docnorm/internal/metrics/prompush"
)

const defaultPushGatewayURL = "http://localhost:9091"

// metricsBackend is a backend that must be closed to stop its flush loop.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newPushBackend = func(jobName, gatewayURL string) (metrics.Backend, error) {
		b, err := prompush.NewBackend(jobName, gatewayURL)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// initMetrics installs the backend named by m.Backend and returns its
// cleanup. cleanup is never nil and runs the final flush (pushgateway) or
// Close (datadog); flush failures are logged, not returned.
func initMetrics(ctx context.Context, jobName string, m config.MetricsConfig) (func(), error) {
	nop := func() {}

	switch name := strings.ToLower(strings.TrimSpace(m.Backend)); name {
	case "", "none", "nop", "noop":
		return nop, nil

	case "pushgateway", "prometheus", "prom":
		gwURL := m.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = defaultPushGatewayURL
		}
		b, err := newPushBackend(jobName, gwURL)
		if err != nil {
			return nop, fmt.Errorf("pushgateway: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	case "datadog", "dd":
		tags := append([]string(nil), m.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return nop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none|pushgateway|datadog)", name)
	}
}

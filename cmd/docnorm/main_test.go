package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"docnorm/internal/config"
	"docnorm/internal/storage"
)

const (
	peopleCSV = "name,age\nAlice,30\nBob,25\n"
	usersJSON = `{"users":[{"id":1,"name":"Alice","tags":["x","y"],"roles":["admin"]}]}`
)

// testDeps wires stdin, an empty job and a no-op metrics init. Files never
// exist.
func testDeps(stdin string) appDeps {
	return appDeps{
		readFile: func(path string) ([]byte, error) {
			return nil, fmt.Errorf("open %s: no such file", path)
		},
		stdin:   strings.NewReader(stdin),
		loadJob: func(string) (config.Job, error) { return config.Job{}, nil },
		initMetrics: func(context.Context, string, config.MetricsConfig) (func(), error) {
			return func() {}, nil
		},
		openRepo: storage.New,
	}
}

func run(deps appDeps, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), args, &stdout, &stderr, deps)
	return code, stdout.String(), stderr.String()
}

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	// Usage failures exit 2 before the job is loaded or metrics start.
	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{"no_command", nil, "missing command"},
		{"unknown_command", []string{"explode"}, `unknown command "explode"`},
		{"unknown_flag", []string{"convert", "--nope"}, "unknown flag: --nope"},
		{"too_many_files", []string{"convert", "a.json", "b.json"}, "accepts at most 1 arg"},
		{"path_without_expr", []string{"path"}, "accepts between 1 and 2 arg"},
		{"validate_with_args", []string{"validate", "x"}, "unknown command"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			deps := appDeps{
				readFile: func(string) ([]byte, error) {
					t.Fatalf("readFile must not be called on usage errors")
					return nil, nil
				},
				loadJob: func(string) (config.Job, error) {
					t.Fatalf("loadJob must not be called on usage errors")
					return config.Job{}, nil
				},
				initMetrics: func(context.Context, string, config.MetricsConfig) (func(), error) {
					t.Fatalf("initMetrics must not be called on usage errors")
					return func() {}, nil
				},
				openRepo: func(context.Context, storage.Config) (storage.Repository, error) {
					t.Fatalf("openRepo must not be called on usage errors")
					return nil, nil
				},
			}

			code, stdout, stderr := run(deps, tc.args...)
			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr)
			}
			if !strings.Contains(stderr, tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr, tc.wantStderrSub)
			}
			if stdout != "" {
				t.Fatalf("stdout=%q, want empty", stdout)
			}
		})
	}
}

func TestRunMain_InvalidFlagValuesAreUsageErrors(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"filter_syntax":   {"convert", "--filter", "name"},
		"filter_operator": {"convert", "--filter", "name:like:a"},
		"input_format":    {"convert", "--format", "yaml"},
		"mode":            {"convert", "--mode", "deep"},
		"output_format":   {"convert", "-o", "xlsx"},
		"batch_size":      {"query", "--batch-size", "-1", "SELECT 1"},
		"empty_query":     {"query", "  "},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			code, stdout, stderr := run(testDeps(peopleCSV), args...)
			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr)
			}
			if stdout != "" {
				t.Fatalf("stdout=%q, want empty", stdout)
			}
		})
	}
}

func TestRunMain_LoadValidateMetricsRun(t *testing.T) {
	t.Parallel()

	// Error precedence: load config -> validate -> init metrics -> run.
	tests := []struct {
		name             string
		loadErr          error
		job              config.Job
		initMetricsErr   error
		stdin            string
		wantCode         int
		wantStderrSub    string
		wantMetricsCalls int64
		wantCleanupCalls int64
	}{
		{
			name:          "load_config_error",
			loadErr:       errors.New("bad json"),
			wantCode:      1,
			wantStderrSub: "load config: bad json",
		},
		{
			name:          "invalid_config",
			job:           config.Job{Export: config.ExportConfig{Format: "xlsx"}},
			wantCode:      1,
			wantStderrSub: "error: export.format",
		},
		{
			name:             "init_metrics_error",
			initMetricsErr:   errors.New("metrics unavailable"),
			wantCode:         1,
			wantStderrSub:    "init metrics: metrics unavailable",
			wantMetricsCalls: 1,
		},
		{
			name:             "parse_error_runs_cleanup",
			stdin:            `{"a":`,
			wantCode:         1,
			wantStderrSub:    "convert: invalid JSON",
			wantMetricsCalls: 1,
			wantCleanupCalls: 1,
		},
		{
			name:             "success",
			stdin:            peopleCSV,
			wantCode:         0,
			wantMetricsCalls: 1,
			wantCleanupCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var metricsCalls, cleanupCalls atomic.Int64
			deps := testDeps(tc.stdin)
			deps.loadJob = func(path string) (config.Job, error) {
				if path != "job.json" {
					t.Fatalf("loadJob path=%q, want %q", path, "job.json")
				}
				j := tc.job
				j.Job = "job1"
				return j, tc.loadErr
			}
			deps.initMetrics = func(_ context.Context, jobName string, m config.MetricsConfig) (func(), error) {
				metricsCalls.Add(1)
				if jobName != "job1" {
					t.Fatalf("jobName=%q, want %q", jobName, "job1")
				}
				if m.Backend != "none" {
					t.Fatalf("backend=%q, want the flag value", m.Backend)
				}
				if tc.initMetricsErr != nil {
					return func() {}, tc.initMetricsErr
				}
				return func() { cleanupCalls.Add(1) }, nil
			}

			code, _, stderr := run(deps, "--config", "job.json", "--metrics-backend", "none", "convert")
			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr)
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr, tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr, tc.wantStderrSub)
			}
			if got := metricsCalls.Load(); got != tc.wantMetricsCalls {
				t.Fatalf("initMetrics calls=%d, want %d", got, tc.wantMetricsCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
		})
	}
}

func TestConvert_ViewAndExport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "csv_default",
			args: []string{"convert"},
			want: "\"_Index\",\"age\",\"name\"\n\"0\",\"30\",\"Alice\"\n\"1\",\"25\",\"Bob\"\n",
		},
		{
			name: "sorted_projected",
			args: []string{"convert", "--sort", "age", "--columns", "name,age"},
			want: "\"name\",\"age\"\n\"Bob\",\"25\"\n\"Alice\",\"30\"\n",
		},
		{
			name: "filtered_markdown",
			args: []string{"convert", "--filter", "name:equals:alice", "--columns", "name", "-o", "md"},
			want: "| name |\n| --- |\n| Alice |\n",
		},
		{
			name: "search_desc_json",
			args: []string{"convert", "--search", "B", "--sort", "_Index", "--desc", "--columns", "name", "-o", "json"},
			want: "[\n  {\n    \"name\": \"Bob\"\n  }\n]\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, stdout, stderr := run(testDeps(peopleCSV), tc.args...)
			if code != 0 {
				t.Fatalf("exit code=%d; stderr=%q", code, stderr)
			}
			if stdout != tc.want {
				t.Fatalf("stdout=%q, want %q", stdout, tc.want)
			}
		})
	}
}

func TestConvert_ChildTableAndUnknownTable(t *testing.T) {
	t.Parallel()

	code, stdout, stderr := run(testDeps(usersJSON), "convert", "--table", "tags", "--columns", "_parent_id,value")
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr)
	}
	want := "\"_parent_id\",\"value\"\n\"0\",\"x\"\n\"0\",\"y\"\n"
	if stdout != want {
		t.Fatalf("stdout=%q, want %q", stdout, want)
	}

	code, _, stderr = run(testDeps(usersJSON), "convert", "--table", "nope")
	if code != 1 || !strings.Contains(stderr, `unknown table "nope" (have users, `) {
		t.Fatalf("code=%d stderr=%q, want unknown table error", code, stderr)
	}
}

func TestConvert_ReadsFilesAndLoads(t *testing.T) {
	t.Parallel()

	var opened atomic.Int64
	deps := testDeps("")
	deps.readFile = func(path string) ([]byte, error) {
		if path != "people.csv" {
			return nil, fmt.Errorf("open %s: no such file", path)
		}
		return []byte(peopleCSV), nil
	}
	deps.openRepo = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		opened.Add(1)
		if cfg.Kind != "sqlite" {
			t.Fatalf("storage kind=%q, want sqlite", cfg.Kind)
		}
		return storage.New(ctx, cfg)
	}

	code, stdout, stderr := run(deps, "convert", "--load", "--row-hash", "--columns", "name", "people.csv")
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr)
	}
	if opened.Load() != 1 {
		t.Fatalf("openRepo calls=%d, want 1", opened.Load())
	}
	if stdout != "\"name\"\n\"Alice\"\n\"Bob\"\n" {
		t.Fatalf("stdout=%q", stdout)
	}

	code, _, stderr = run(deps, "convert", "missing.csv")
	if code != 1 || !strings.Contains(stderr, "read input:") {
		t.Fatalf("code=%d stderr=%q, want read input error", code, stderr)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	q := "SELECT u.name, t.value FROM users u JOIN tags t ON t._parent_id = u._id ORDER BY t.value"
	code, stdout, stderr := run(testDeps(usersJSON), "query", q)
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr)
	}
	want := "\"name\",\"value\"\n\"Alice\",\"x\"\n\"Alice\",\"y\"\n"
	if stdout != want {
		t.Fatalf("stdout=%q, want %q", stdout, want)
	}

	code, stdout, stderr = run(testDeps(peopleCSV), "query", "SELECT * FROM nope")
	if code != 1 || !strings.Contains(stderr, "query error:") {
		t.Fatalf("code=%d stderr=%q, want query error", code, stderr)
	}
	if stdout != "" {
		t.Fatalf("stdout=%q, want empty", stdout)
	}
}

func TestPath(t *testing.T) {
	t.Parallel()

	code, stdout, stderr := run(testDeps(`{"a":[{"b":1},{"b":2}]}`), "path", "$.a[*].b")
	if code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr)
	}
	want := "\"index\",\"value\"\n\"0\",\"1\"\n\"1\",\"2\"\n"
	if stdout != want {
		t.Fatalf("stdout=%q, want %q", stdout, want)
	}

	code, _, stderr = run(testDeps(`{"a":1}`), "path", "$.a[")
	if code != 1 || !strings.Contains(stderr, "JSONPath query error") {
		t.Fatalf("code=%d stderr=%q, want JSONPath error", code, stderr)
	}
}

func TestClassifyTablesValidate(t *testing.T) {
	t.Parallel()

	code, stdout, stderr := run(testDeps(usersJSON), "classify")
	if code != 0 {
		t.Fatalf("classify exit code=%d; stderr=%q", code, stderr)
	}
	for _, sub := range []string{`"route": "hierarchical"`, `"has_multiple_nested_arrays": true`} {
		if !strings.Contains(stdout, sub) {
			t.Fatalf("classify stdout=%q, want contains %q", stdout, sub)
		}
	}

	code, stdout, stderr = run(testDeps(usersJSON), "tables")
	if code != 0 {
		t.Fatalf("tables exit code=%d; stderr=%q", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "NAME") || !strings.HasPrefix(lines[1], "users") {
		t.Fatalf("tables stdout=%q", stdout)
	}

	deps := testDeps("")
	deps.initMetrics = func(context.Context, string, config.MetricsConfig) (func(), error) {
		t.Fatalf("validate must not init metrics")
		return nil, nil
	}
	code, stdout, _ = run(deps, "validate")
	if code != 0 || stdout != "ok\n" {
		t.Fatalf("validate code=%d stdout=%q", code, stdout)
	}
}

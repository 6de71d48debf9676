// Package config defines the job file read by the docnorm CLI and the loosely
// typed option bags its parsers consume.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"docnorm/internal/parser/html"
	"docnorm/internal/view"
)

// EnvPrefix prefixes environment variables that override job fields, e.g.
// DOCNORM_RUNTIME_BATCH_SIZE=500 sets runtime.batch_size.
const EnvPrefix = "DOCNORM_"

// Job is one normalization job.
type Job struct {
	Job       string          `json:"job" mapstructure:"job"`
	Input     InputConfig     `json:"input" mapstructure:"input"`
	Parser    ParserConfig    `json:"parser" mapstructure:"parser"`
	Normalize NormalizeConfig `json:"normalize" mapstructure:"normalize"`
	View      ViewConfig      `json:"view" mapstructure:"view"`
	Export    ExportConfig    `json:"export" mapstructure:"export"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Runtime   RuntimeConfig   `json:"runtime" mapstructure:"runtime"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// InputConfig names the document to read. "-" or empty means stdin.
type InputConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ParserConfig selects the input format. Format is "auto" (or empty), json,
// xml, csv or html. Options is handed to the delimited parser
// ({"comma": ";", "coerce_numbers": false}).
type ParserConfig struct {
	Format  string       `json:"format" mapstructure:"format"`
	Options Options      `json:"options" mapstructure:"options"`
	HTML    html.Options `json:"html" mapstructure:"html"`
}

// NormalizeConfig selects the normalization mode: grouped (default) or
// flattened.
type NormalizeConfig struct {
	Mode string `json:"mode" mapstructure:"mode"`
}

// ViewConfig is the view query applied before export. Table selects which
// table to show; empty means the flat or parent table.
type ViewConfig struct {
	Table string `json:"table" mapstructure:"table"`

	view.Query `mapstructure:",squash"`
}

// ExportConfig selects the output format: csv, json or markdown.
type ExportConfig struct {
	Format string `json:"format" mapstructure:"format"`
}

// StorageConfig selects the relational backend used for SQL queries. Load
// copies every table into it after normalization.
type StorageConfig struct {
	Kind string `json:"kind" mapstructure:"kind"`
	DSN  string `json:"dsn" mapstructure:"dsn"`
	Load bool   `json:"load" mapstructure:"load"`
}

// RuntimeConfig controls loading. Zero values select the loader defaults.
type RuntimeConfig struct {
	BatchSize     int  `json:"batch_size" mapstructure:"batch_size"`
	LoaderWorkers int  `json:"loader_workers" mapstructure:"loader_workers"`
	RowHash       bool `json:"row_hash" mapstructure:"row_hash"`
	HashTrimSpace bool `json:"hash_trim_space" mapstructure:"hash_trim_space"`
}

// MetricsConfig selects the metrics backend: none (default), pushgateway or
// datadog.
type MetricsConfig struct {
	Backend        string   `json:"backend" mapstructure:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" mapstructure:"pushgateway_url"`
	Tags           []string `json:"tags" mapstructure:"tags"`
}

// defaults registers every scalar key so environment overrides can be mapped
// onto snake_case field names.
var defaults = map[string]any{
	"job":                     "",
	"input.path":              "",
	"parser.format":           "auto",
	"normalize.mode":          "grouped",
	"view.table":              "",
	"view.search":             "",
	"view.columns":            []string{},
	"view.sort.column":        "",
	"view.sort.direction":     "",
	"export.format":           "csv",
	"storage.kind":            "sqlite",
	"storage.dsn":             "",
	"storage.load":            false,
	"runtime.batch_size":      0,
	"runtime.loader_workers":  0,
	"runtime.row_hash":        false,
	"runtime.hash_trim_space": false,
	"metrics.backend":         "",
	"metrics.pushgateway_url": "",
	"metrics.tags":            []string{},
}

// Load reads the JSON job file at path (optional; "" skips the file) and
// overlays DOCNORM_* environment variables.
func Load(path string) (Job, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (Job, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Job{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	known := v.AllKeys()
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		v.Set(envKey(strings.TrimPrefix(key, EnvPrefix), known), value)
	}

	var job Job
	if err := v.Unmarshal(&job); err != nil {
		return Job{}, fmt.Errorf("config: decode: %w", err)
	}
	return job, nil
}

// envKey maps an environment suffix such as RUNTIME_BATCH_SIZE to a config
// key. Known keys win (runtime.batch_size); anything else treats every "_" as
// a nesting separator.
func envKey(suffix string, known []string) string {
	s := strings.ToLower(suffix)
	for _, k := range known {
		if strings.ReplaceAll(k, ".", "_") == s {
			return k
		}
	}
	return strings.TrimPrefix(strings.ReplaceAll(s, "_", "."), ".")
}

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted location in the job.
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
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	parserFormats  = set("", "auto", "json", "xml", "csv", "tsv", "delimited", "html")
	normalizeModes = set("", "grouped", "flattened", "flat")
	exportFormats  = set("", "csv", "json", "markdown", "md")
	storageKinds   = set("", "sqlite", "postgres", "mssql")
	metricsKinds   = set("", "none", "pushgateway", "datadog")
	sortDirections = set("", string(view.Asc), string(view.Desc))
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func oneOf(m map[string]struct{}) string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return strings.Join(out, "|")
}

// ValidateJob checks j for unknown enum values, impossible runtime settings
// and view filters that can never take effect. Errors make the job unusable;
// warnings describe settings that are silently ignored.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}
	check := func(path, val string, allowed map[string]struct{}) {
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(val))]; !ok {
			errf(path, "unknown value %q (want %s)", val, oneOf(allowed))
		}
	}

	check("parser.format", j.Parser.Format, parserFormats)
	check("normalize.mode", j.Normalize.Mode, normalizeModes)
	check("export.format", j.Export.Format, exportFormats)
	check("storage.kind", j.Storage.Kind, storageKinds)
	check("metrics.backend", j.Metrics.Backend, metricsKinds)
	check("view.sort.direction", string(j.View.Sort.Direction), sortDirections)

	if c := j.Parser.Options.String("comma", ""); len([]rune(c)) > 1 && c != `\t` && c != "tab" {
		warnf("parser.options.comma", "only the first character of %q is used", c)
	}
	if len(j.Parser.HTML.Mappings) == 0 && j.Parser.HTML.RecordSelector != "" {
		warnf("parser.html.record_selector", "ignored without mappings")
	}

	if j.Runtime.BatchSize < 0 {
		errf("runtime.batch_size", "must be >= 0, got %d", j.Runtime.BatchSize)
	}
	if j.Runtime.LoaderWorkers < 0 {
		errf("runtime.loader_workers", "must be >= 0, got %d", j.Runtime.LoaderWorkers)
	}
	if !j.Storage.Load {
		if j.Runtime.RowHash {
			warnf("runtime.row_hash", "ignored unless storage.load is set")
		}
		if j.Storage.DSN != "" {
			warnf("storage.dsn", "ignored unless storage.load is set")
		}
	}
	if j.Runtime.HashTrimSpace && !j.Runtime.RowHash {
		warnf("runtime.hash_trim_space", "ignored unless runtime.row_hash is set")
	}
	if k := strings.ToLower(j.Storage.Kind); j.Storage.Load && (k == "postgres" || k == "mssql") && j.Storage.DSN == "" {
		errf("storage.dsn", "required for %s", k)
	}

	for i, p := range j.View.Filters {
		path := fmt.Sprintf("view.filters[%d]", i)
		switch {
		case p.Column == "":
			warnf(path+".column", "empty column; filter matches every row")
		case !p.Operator.Known():
			warnf(path+".operator", "unknown operator %q; filter matches every row", p.Operator)
		case p.Operator.NeedsValue() && p.Value == "":
			warnf(path+".value", "empty value; filter matches every row")
		}
	}
	if j.View.Sort.Column == "" && j.View.Sort.Direction != "" {
		warnf("view.sort.direction", "ignored without view.sort.column")
	}
	if j.Metrics.PushgatewayURL != "" && strings.ToLower(j.Metrics.Backend) != "pushgateway" {
		warnf("metrics.pushgateway_url", "ignored unless metrics.backend is pushgateway")
	}
	return issues
}

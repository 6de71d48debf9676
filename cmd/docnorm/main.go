// Command docnorm converts JSON, XML, delimited text and HTML documents into
// relational tables, then filters, queries and exports them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docnorm/internal/config"
	"docnorm/internal/storage"

	// register all backends with the storage factory.
	_ "docnorm/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	readFile    func(path string) ([]byte, error)
	stdin       io.Reader
	loadJob     func(path string) (config.Job, error)
	initMetrics func(ctx context.Context, jobName string, m config.MetricsConfig) (func(), error)
	openRepo    func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:    os.ReadFile,
		stdin:       os.Stdin,
		loadJob:     config.Load,
		initMetrics: initMetrics,
		openRepo:    storage.New,
	}
}

// usageError marks command-line misuse; runMain exits 2 for it.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

// usageArgs turns a cobra positional-args failure into a usageError.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{msg: err.Error()}
		}
		return nil
	}
}

type printfLogger interface {
	Printf(format string, v ...any)
}

// app carries per-invocation state shared by the subcommands.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	deps   appDeps

	cfgPath        string
	metricsBackend string
	pushGatewayURL string
	verbose        bool

	job     config.Job
	logger  printfLogger
	cleanup func()
}

// runMain executes one CLI invocation and returns the process exit code:
// 0 on success, 1 on runtime failure, 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	a := &app{ctx: ctx, stdout: stdout, stderr: stderr, deps: deps}
	root := a.rootCommand()
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	start := time.Now()
	err := root.ExecuteContext(ctx)
	if a.cleanup != nil {
		a.cleanup()
	}

	var ue *usageError
	switch {
	case err == nil:
		if a.logger != nil {
			a.logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
		}
		return 0
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "%v\nrun 'docnorm --help' for usage\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "docnorm",
		Short:         "Normalize hierarchical documents into relational tables",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unknown command %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(a.stderr, cmd.UsageString())
			return usageErrorf("missing command")
		},
		PersistentPreRunE: a.prepare,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "job config JSON path (DOCNORM_* env vars override it)")
	pf.StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway or datadog (overrides env METRICS_BACKEND)")
	pf.StringVar(&a.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(
		a.convertCommand(),
		a.queryCommand(),
		a.pathCommand(),
		a.classifyCommand(),
		a.tablesCommand(),
		a.validateCommand(),
	)
	return root
}

// prepare loads and validates the job, then initializes metrics. Issues are
// printed to stderr; any error-level issue aborts the run.
func (a *app) prepare(cmd *cobra.Command, _ []string) error {
	if cmd == cmd.Root() {
		return nil
	}
	if a.verbose {
		a.logger = log.New(a.stderr, "", log.LstdFlags)
	}

	job, err := a.deps.loadJob(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintln(a.stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("invalid config %s", a.cfgPath)
	}
	a.job = job

	if cmd.Name() == "validate" {
		return nil
	}

	m := job.Metrics
	switch {
	case a.metricsBackend != "":
		m.Backend = a.metricsBackend
	case os.Getenv("METRICS_BACKEND") != "":
		m.Backend = os.Getenv("METRICS_BACKEND")
	}
	if a.pushGatewayURL != "" {
		m.PushgatewayURL = a.pushGatewayURL
	}

	jobName := job.Job
	if jobName == "" {
		jobName = "docnorm"
	}
	cleanup, err := a.deps.initMetrics(a.ctx, jobName, m)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.cleanup = cleanup
	if a.logger != nil {
		a.logger.Printf("metrics: backend=%q job_name=%v", m.Backend, jobName)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"timebox/backend/process"
	"timebox/config"
	"timebox/core/execution"
	"timebox/core/target"
	"timebox/core/version"
	"timebox/logging"
	"timebox/runner"
	"timebox/worker"
)

const exitTimeout = 124

func main() {
	if worker.IsChild() {
		worker.Main(target.Default)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "run":
		return runOne(ctx, args[1:], stdout, stderr)
	case "batch":
		return runBatch(ctx, args[1:], stdout, stderr)
	case "demo":
		return runDemo(ctx, args[1:], stdout, stderr)
	case "targets":
		for _, name := range target.Default.Names() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	case "version":
		fmt.Fprintf(stdout, "timebox %s (channel %s)\n", version.Version, version.ChannelVersion)
		return 0
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "timebox: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

type common struct {
	configPath string
	report     string
	logLevel   string
}

func (c *common) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML config file (default ./timebox.yaml if present)")
	flags.StringVar(&c.report, "report", "", "write JSON reports to this path")
	flags.StringVar(&c.logLevel, "log-level", "", "override log level (debug|info|warn|error)")
}

func (c *common) setup(stderr io.Writer) (config.Config, *runner.Runner, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	r := runner.New(target.Default, process.Options{
		Executable:  cfg.Worker.Executable,
		Env:         cfg.Worker.Env,
		ReapTimeout: cfg.ReapTimeout,
	}, logger)
	return cfg, r, nil
}

func runOne(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var c common
	c.bind(flags)
	timeout := flags.DurationP("timeout", "t", 0, "wall-clock budget (default from config, 600s)")
	kwargs := flags.StringArrayP("kwarg", "k", nil, "keyword argument as name=json (repeatable)")
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		fmt.Fprintln(stderr, "timebox: no target provided")
		usage(stderr)
		return 2
	}

	cfg, r, err := c.setup(stderr)
	if err != nil {
		fmt.Fprintln(stderr, "timebox:", err)
		return 2
	}
	kw, err := parseKwargs(*kwargs)
	if err != nil {
		fmt.Fprintln(stderr, "timebox:", err)
		return 2
	}
	budget := cfg.Timeout
	if flags.Changed("timeout") {
		budget = *timeout
	}

	inv := execution.NewInvocation(flags.Arg(0), budget, parseArgs(flags.Args()[1:]), kw)
	report := r.Run(ctx, inv)
	if c.report != "" {
		if err := runner.WriteReports(c.report, []runner.Report{report}); err != nil {
			fmt.Fprintln(stderr, "timebox:", err)
		}
	}

	switch {
	case report.Error != nil:
		fmt.Fprintln(stderr, "timebox:", *report.Error)
		return 1
	case report.Outcome == execution.OutcomeTimeout:
		fmt.Fprintf(stderr, "timebox: %s timed out after %s\n", inv.Target, budget)
		return exitTimeout
	default:
		fmt.Fprintln(stdout, string(report.Value))
		return 0
	}
}

func runBatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("batch", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var c common
	c.bind(flags)
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, r, err := c.setup(stderr)
	if err != nil {
		fmt.Fprintln(stderr, "timebox:", err)
		return 2
	}
	invs := cfg.BatchInvocations()
	if len(invs) == 0 {
		fmt.Fprintln(stderr, "timebox: config has no invocations")
		return 2
	}

	reports := r.RunAll(ctx, invs)
	for _, rep := range reports {
		printReport(stdout, rep)
	}
	if c.report != "" {
		if err := runner.WriteReports(c.report, reports); err != nil {
			fmt.Fprintln(stderr, "timebox:", err)
			return 1
		}
	}
	if ctx.Err() != nil {
		return 130
	}
	return 0
}

// runDemo replays the classic demonstration: a thrower, a few fib calls, and
// a target that never returns.
func runDemo(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("demo", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var c common
	c.bind(flags)
	spinTimeout := flags.Duration("spin-timeout", time.Second, "budget for the never-returning target")
	maxN := flags.Int("max-n", 30, "largest fib argument")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, r, err := c.setup(stderr)
	if err != nil {
		fmt.Fprintln(stderr, "timebox:", err)
		return 2
	}

	fmt.Fprintln(stdout, "Testing fib_thrower:")
	printReport(stdout, r.Run(ctx, execution.NewInvocation("fib_thrower", cfg.Timeout, []any{8675309}, nil)))

	fmt.Fprintf(stdout, "\nTesting fib on n=10..%d:\n", *maxN)
	invs := []execution.Invocation{}
	for n := 10; n <= *maxN; n += 10 {
		invs = append(invs, execution.NewInvocation("fib", cfg.Timeout, []any{n}, nil))
	}
	reports := r.RunAll(ctx, invs)
	for _, rep := range reports {
		printReport(stdout, rep)
	}

	fmt.Fprintf(stdout, "\nTesting spin with a %s budget:\n", *spinTimeout)
	spinReport := r.Run(ctx, execution.NewInvocation("spin", *spinTimeout, nil, nil))
	printReport(stdout, spinReport)

	all := append(reports, spinReport)
	if c.report != "" {
		if err := runner.WriteReports(c.report, all); err != nil {
			fmt.Fprintln(stderr, "timebox:", err)
			return 1
		}
	}
	return 0
}

func printReport(w io.Writer, rep runner.Report) {
	switch {
	case rep.Error != nil:
		fmt.Fprintf(w, "%s\t%s\t%s\n", rep.Target, rep.Outcome, *rep.Error)
	case rep.Outcome == execution.OutcomeTimeout:
		fmt.Fprintf(w, "%s\t%s\t-\n", rep.Target, rep.Outcome)
	default:
		fmt.Fprintf(w, "%s\t%s\t%s\n", rep.Target, rep.Outcome, string(rep.Value))
	}
}

// parseArgs decodes each argument as JSON, falling back to a plain string.
func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, arg := range raw {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		out = append(out, v)
	}
	return out
}

func parseKwargs(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, errors.New("kwarg must be name=json: " + kv)
		}
		out[name] = parseArgs([]string{value})[0]
	}
	return out, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: timebox run [--timeout d] [--kwarg k=json]... <target> [json-arg...]")
	fmt.Fprintln(w, "       timebox batch --config file [--report out.json]")
	fmt.Fprintln(w, "       timebox demo [--spin-timeout d] [--max-n n]")
	fmt.Fprintln(w, "       timebox targets | version")
}

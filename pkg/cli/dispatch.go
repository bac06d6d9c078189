package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/dispatch"
	"github.com/b2ctest/flowrunner/pkg/logger"
	"github.com/b2ctest/flowrunner/pkg/report"
	"github.com/b2ctest/flowrunner/pkg/source"
)

var dispatchCommand = &cli.Command{
	Name:      "dispatch",
	Usage:     "Run suites as parallel worker processes",
	ArgsUsage: "[suite...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "suite",
			Usage: "Comma-separated settings files",
		},
		&cli.StringFlag{
			Name:  "exe",
			Usage: "Worker executable (default this binary)",
		},
		&cli.IntFlag{
			Name:  "threads",
			Usage: "Workers running at once",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "iterations",
			Usage: "Times to run every suite, one wave per iteration",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "per-test",
			Usage: "Start one worker per test instead of one per suite",
		},
		&cli.StringFlag{
			Name:    "correlation-id",
			Usage:   "Id passed to every worker (generated when empty)",
			EnvVars: []string{config.EnvCorrelationID},
		},
		&cli.StringFlag{
			Name:    "instrumentation-key",
			Usage:   "Application Insights instrumentation key passed to every worker",
			EnvVars: []string{config.EnvInstrumentationKey},
		},
		&cli.StringFlag{
			Name:  "logfile",
			Usage: "Dispatcher log file",
			Value: "flowrunner-dispatch.log",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Pass --headless to every worker",
		},
	},
	Action: runDispatch,
}

func runDispatch(c *cli.Context) error {
	suites := append(dispatch.SplitSuites(c.String("suite")), c.Args().Slice()...)
	if len(suites) == 0 {
		return cli.Exit("Error: no suites given, use --suite a.json,b.json", ExitConfigError)
	}

	suites = localSuites(suites)

	initLogging(c, c.String("logfile"))
	defer logger.Close()

	exe, err := workerExecutable(c.String("exe"))
	if err != nil {
		return configError(err)
	}

	items := dispatch.SuiteItems(suites)
	if c.Bool("per-test") {
		items, err = dispatch.TestItems(c.Context, source.NewResolver(filepath.Dir(exe)), suites)
		if err != nil {
			return configError(err)
		}
	}

	var workerArgs []string
	if c.Bool("headless") {
		workerArgs = append(workerArgs, "--headless")
	}

	console := report.NewConsole(report.WithWriter(c.App.Writer), report.WithNoColor(c.Bool("no-color")))
	d := dispatch.New(dispatch.Config{
		ExecutablePath:     exe,
		MaxConcurrency:     c.Int("threads"),
		Iterations:         c.Int("iterations"),
		CorrelationID:      c.String("correlation-id"),
		InstrumentationKey: c.String("instrumentation-key"),
		WorkerArgs:         workerArgs,
		OnStart:            console.WorkerStarted,
		OnExit:             console.WorkerExited,
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.App.Writer, "Dispatching %d worker(s) x %d iteration(s), correlation id %s\n",
		len(items), max(c.Int("iterations"), 1), d.CorrelationID())
	summary, err := d.Run(ctx, items)
	fmt.Fprintln(c.App.Writer, report.DispatchTable(summary))
	if err != nil {
		logger.Warn("%v", err)
		return cli.Exit(fmt.Sprintf("Error: %v", err), ExitFailed)
	}
	if code := summary.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// workerExecutable resolves the worker binary, defaulting to this one.
func workerExecutable(path string) (string, error) {
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		return self, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("worker executable %s: %w", path, err)
	}
	return filepath.Abs(path)
}

// localSuites makes suites that exist under the working directory absolute,
// since workers run from the executable's directory.
func localSuites(suites []string) []string {
	out := make([]string, len(suites))
	for i, s := range suites {
		out[i] = s
		if source.IsURL(s) {
			continue
		}
		if _, err := os.Stat(s); err == nil {
			if abs, err := filepath.Abs(s); err == nil {
				out[i] = abs
			}
		}
	}
	return out
}

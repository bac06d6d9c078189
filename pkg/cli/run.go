package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/driver/webdriver"
	"github.com/b2ctest/flowrunner/pkg/executor"
	"github.com/b2ctest/flowrunner/pkg/logger"
	"github.com/b2ctest/flowrunner/pkg/otp"
	"github.com/b2ctest/flowrunner/pkg/report"
	"github.com/b2ctest/flowrunner/pkg/source"
	"github.com/b2ctest/flowrunner/pkg/telemetry"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run the tests of a settings file in one browser session",
	ArgsUsage: "<settings-file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "container",
			Usage:   "Read tests and settings from this blob storage container",
			EnvVars: []string{config.EnvBlobContainer},
		},
		&cli.StringFlag{
			Name:    "blob-connection-string",
			Usage:   "Connection string of the blob storage account",
			EnvVars: []string{config.EnvBlobConnection},
		},
		&cli.StringFlag{
			Name:  "logfile",
			Usage: "Log file; the console log, report and screenshots go next to it",
			Value: "flowrunner.log",
		},
		&cli.StringFlag{
			Name:  "single-test",
			Usage: "Run only this test",
		},
		&cli.StringFlag{
			Name:  "webdriver-url",
			Usage: "Remote WebDriver server; a local driver is started when empty",
		},
		&cli.StringFlag{
			Name:  "drivers-dir",
			Usage: "Directory searched for chromedriver/geckodriver (default <home>/drivers)",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the browser without a window",
		},
		&cli.BoolFlag{
			Name:  "strict-completion",
			Usage: "Fail tests that never reach their completion marker (overrides the settings file)",
		},
		&cli.StringFlag{
			Name:  "keys",
			Usage: "Secrets file (default <home>/keys.json)",
		},
		&cli.StringFlag{
			Name:    "instrumentation-key",
			Usage:   "Application Insights instrumentation key; the console log is used when empty",
			EnvVars: []string{config.EnvInstrumentationKey},
		},
		&cli.StringFlag{
			Name:    "correlation-id",
			Usage:   "Id shared by every worker of a dispatch",
			EnvVars: []string{config.EnvCorrelationID},
		},
		&cli.StringFlag{
			Name:    "push-gateway",
			Usage:   "Prometheus push gateway URL for pass/fail metrics",
			EnvVars: []string{config.EnvPushGateway},
		},
		&cli.StringFlag{
			Name:    "mqtt-broker",
			Usage:   "MQTT broker receiving live test events",
			EnvVars: []string{config.EnvMQTTBroker},
		},
	},
	Action: runSuite,
}

func runSuite(c *cli.Context) error {
	ref := c.Args().First()
	if ref == "" {
		return cli.Exit("Error: a settings file is required", ExitConfigError)
	}

	logPath := c.String("logfile")
	initLogging(c, logPath)
	defer logger.Close()
	outDir := filepath.Dir(logPath)

	correlationID := c.String("correlation-id")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger.Info("flowrunner %s: run %s (correlation id %s)", Version, ref, correlationID)

	sink := telemetry.New(telemetry.Options{
		InstrumentationKey: c.String("instrumentation-key"),
		ConsoleFile:        filepath.Join(outDir, telemetry.DefaultConsoleFile),
		CorrelationID:      correlationID,
		PushGateway:        c.String("push-gateway"),
		MQTTBroker:         c.String("mqtt-broker"),
	})
	defer sink.Close()

	src, err := newResolver(c, ref)
	if err != nil {
		return abort(sink, err)
	}
	data, err := src.Read(c.Context, ref)
	if err != nil {
		return abort(sink, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("cannot read settings file %s", ref)).WithCause(err))
	}
	suite, err := config.ParseSuite(data)
	if err != nil {
		return abort(sink, err)
	}
	suite.Filter(c.String("single-test"))
	if c.IsSet("strict-completion") {
		suite.StrictCompletion = c.Bool("strict-completion")
	}

	passcodes, err := newPasscodes(c.String("keys"))
	if err != nil {
		return abort(sink, err)
	}

	console := report.NewConsole(report.WithWriter(c.App.Writer), report.WithNoColor(c.Bool("no-color")))
	cfg := executor.ConfigFromSuite(ref, suite)
	cfg.RunID = correlationID
	cfg.ScreenshotDir = outDir
	cfg.OnTestStart = console.TestStarted
	cfg.OnTestEnd = console.TestEnded

	driversDir := c.String("drivers-dir")
	if driversDir == "" {
		driversDir = config.GetDriversDir()
	}
	opts := webdriver.Options{
		Browser:    suite.Environment,
		ServerURL:  c.String("webdriver-url"),
		DriversDir: driversDir,
		Headless:   c.Bool("headless"),
		ServiceLog: logger.GetWriter(),
	}
	newDriver := func(context.Context) (core.Driver, error) {
		d, err := webdriver.Open(opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.SuiteStarted(ref, suite.Environment, len(suite.Tests))
	result, runErr := executor.New(cfg, src, newDriver, sink, passcodes).Run(ctx)
	console.SuiteEnded(result)
	fmt.Fprintln(c.App.Writer, report.SuiteTable(result))

	reportPath := filepath.Join(outDir, report.ReportFile)
	if err := report.WriteSuite(reportPath, result); err != nil {
		logger.Warn("write report: %v", err)
	} else {
		logger.Info("report written to %s", reportPath)
	}

	if runErr != nil {
		return configError(runErr)
	}
	switch result.AggregateStatus() {
	case core.StatusPassed, core.StatusWarned:
		return nil
	default:
		return cli.Exit("", ExitFailed)
	}
}

// newResolver reads local references relative to the settings file, URLs
// over HTTP, and everything else from blob storage when a container is set.
func newResolver(c *cli.Context, settings string) (*source.Resolver, error) {
	baseDir := "."
	if !source.IsURL(settings) {
		baseDir = filepath.Dir(settings)
	}
	r := source.NewResolver(baseDir)

	container := c.String("container")
	if container == "" {
		return r, nil
	}
	conn := c.String("blob-connection-string")
	if conn == "" {
		return nil, core.ErrMissingRequired.WithMessage(fmt.Sprintf("%s is required with container %q", config.EnvBlobConnection, container))
	}
	blob, err := source.NewBlob(conn, container)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("invalid blob storage connection string").WithCause(err)
	}
	r.Blob = blob
	return r, nil
}

// newPasscodes returns the passcode client, or nil when no service is
// configured; flows that need a passcode then fail.
func newPasscodes(keysPath string) (otp.Retriever, error) {
	if keysPath == "" {
		keysPath = config.GetKeysPath()
	}
	keys, err := config.LoadKeys(keysPath)
	if err != nil {
		return nil, err
	}
	if keys.OTPFunctionApp == "" {
		logger.Info("no passcode service configured")
		return nil, nil
	}
	return otp.NewClient(keys.OTPFunctionApp, keys.OTPFunctionAppKey), nil
}

// abort reports a configuration error to telemetry before exiting.
func abort(sink telemetry.Sink, err error) error {
	telemetry.Event(sink, telemetry.EventException, telemetry.EventException, err.Error())
	sink.TrackException(err, nil)
	if ferr := sink.Flush(); ferr != nil {
		logger.Warn("flush telemetry: %v", ferr)
	}
	return configError(err)
}

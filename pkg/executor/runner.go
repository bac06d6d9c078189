// Package executor interprets flows against a browser and runs suites of
// them, reporting to a telemetry sink.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/flow"
	"github.com/b2ctest/flowrunner/pkg/fn"
	"github.com/b2ctest/flowrunner/pkg/logger"
	"github.com/b2ctest/flowrunner/pkg/otp"
	"github.com/b2ctest/flowrunner/pkg/source"
	"github.com/b2ctest/flowrunner/pkg/telemetry"
	"github.com/b2ctest/flowrunner/pkg/wait"
)

// Defaults applied by RunnerConfig.
const (
	DefaultTimeout = 30 * time.Second
	suiteDivider   = "-----------------------------------------------------------------"
)

// RunnerConfig configures the suite runner.
type RunnerConfig struct {
	Name             string        // Suite name, for reports
	RunID            string        // Correlation id shared across workers
	Tests            []string      // Test references, run in order
	Browser          string        // Browser environment, for the information event
	Timeout          time.Duration // Per-wait timeout
	Interval         time.Duration // Poll interval, 0 = wait.DefaultInterval
	OTPMaxAge        string
	StrictCompletion bool // A flow without Complete fails rather than warns
	DebugMode        bool
	DebugWait        time.Duration
	ScreenshotDir    string // Failed tests save a screenshot here when set

	// Live progress callbacks
	OnTestStart func(idx, total int, name string)
	OnTestEnd   func(result core.TestResult)
}

// ConfigFromSuite returns the run configuration for a validated settings
// file. name identifies the suite in reports.
func ConfigFromSuite(name string, suite *config.SuiteConfig) RunnerConfig {
	return RunnerConfig{
		Name:             name,
		Tests:            suite.Tests,
		Browser:          suite.Environment,
		Timeout:          suite.Timeout,
		OTPMaxAge:        suite.OTPMaxAge,
		StrictCompletion: suite.StrictCompletion,
		DebugMode:        suite.DebugMode,
		DebugWait:        suite.DebugWait,
	}
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Interval <= 0 {
		c.Interval = wait.DefaultInterval
	}
	return c
}

// DriverFactory opens the browser session used by a suite.
type DriverFactory func(ctx context.Context) (core.Driver, error)

// Runner runs the tests of one suite sequentially on one browser session.
type Runner struct {
	config    RunnerConfig
	source    source.Reader
	newDriver DriverFactory
	sink      telemetry.Sink
	otp       otp.Retriever
	session   fn.Session

	driver core.Driver
}

// New creates a Runner. The browser is opened lazily, before the first test
// that parses.
func New(cfg RunnerConfig, src source.Reader, newDriver DriverFactory, sink telemetry.Sink, passcodes otp.Retriever) *Runner {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Runner{
		config:    cfg.withDefaults(),
		source:    src,
		newDriver: newDriver,
		sink:      sink,
		otp:       passcodes,
		session:   fn.NewSession(time.Now()),
	}
}

// Session returns the worker session shared by every test.
func (r *Runner) Session() fn.Session {
	return r.session
}

// Run executes every test. A non-nil error means the browser could not be
// opened; results gathered so far are still returned.
func (r *Runner) Run(ctx context.Context) (*core.SuiteResult, error) {
	suite := &core.SuiteResult{
		Name:      r.config.Name,
		RunID:     r.config.RunID,
		StartTime: time.Now(),
	}

	r.sink.TrackTrace(suiteDivider)
	telemetry.Event(r.sink, telemetry.EventStarted, "time", suite.StartTime.Format(time.RFC3339))
	telemetry.Event(r.sink, telemetry.EventInformation, "browser", r.config.Browser)
	logger.Info("suite %s: %d test(s) on %s", r.config.Name, len(r.config.Tests), r.config.Browser)

	runErr := r.runTests(ctx, suite)

	telemetry.Event(r.sink, telemetry.EventCompleted, "time", time.Now().Format(time.RFC3339))
	if err := r.sink.Flush(); err != nil {
		logger.Warn("flush telemetry: %v", err)
	}
	if r.driver != nil {
		if err := r.driver.Quit(); err != nil {
			logger.Warn("quit browser: %v", err)
		}
		r.driver = nil
	}

	suite.Duration = time.Since(suite.StartTime)
	suite.ComputeSummary()
	return suite, runErr
}

func (r *Runner) runTests(ctx context.Context, suite *core.SuiteResult) error {
	total := len(r.config.Tests)
	for i, ref := range r.config.Tests {
		if ctx.Err() != nil {
			logger.Warn("run cancelled, skipping %s", ref)
			suite.Tests = append(suite.Tests, skipped(ref, core.ErrCategoryNone, "execution cancelled"))
			continue
		}

		if r.config.OnTestStart != nil {
			r.config.OnTestStart(i, total, ref)
		}

		f, res, ok := r.load(ctx, ref)
		if !ok {
			suite.Tests = append(suite.Tests, res)
			r.testEnded(res)
			continue
		}

		if r.driver == nil {
			d, err := r.newDriver(ctx)
			if err != nil {
				telemetry.Event(r.sink, telemetry.EventExceptionThrown, telemetry.EventException, err.Error())
				r.sink.TrackException(err, map[string]string{"browser": r.config.Browser})
				return fmt.Errorf("open browser: %w", err)
			}
			r.driver = d
		}

		res = r.runFlow(ctx, f)
		suite.Tests = append(suite.Tests, res)
		r.testEnded(res)
	}
	return nil
}

// load reads and parses one test. On failure the returned result records
// the skip and the file failure has been reported.
func (r *Runner) load(ctx context.Context, ref string) (*flow.Flow, core.TestResult, bool) {
	data, err := r.source.Read(ctx, ref)
	if err != nil {
		logger.Error("read %s: %v", ref, err)
		telemetry.Event(r.sink, telemetry.EventFileFailure, telemetry.PropError, "Unable to load file "+ref)
		return nil, skipped(ref, core.ErrCategoryParse, err.Error()), false
	}

	f, err := flow.Parse(data, ref)
	if err != nil {
		err = core.ErrInvalidTestFile.WithCause(err)
		logger.Error("parse %s: %v", ref, err)
		telemetry.Event(r.sink, telemetry.EventFileFailure, telemetry.PropError, "Invalid json found in file "+ref)
		return nil, skipped(ref, core.CategoryOf(err), err.Error()), false
	}
	return f, core.TestResult{}, true
}

func (r *Runner) runFlow(ctx context.Context, f *flow.Flow) core.TestResult {
	fns := &fn.Dispatcher{
		Driver:  r.driver,
		Wait:    wait.Policy{Timeout: r.config.Timeout, Interval: r.config.Interval},
		OTP:     r.otp,
		MaxAge:  r.config.OTPMaxAge,
		Session: r.session,
		Sink:    r.sink,
	}

	res, err := NewFlowRunner(ctx, *f, r.driver, fns, r.sink, r.config).Run()
	if err != nil {
		logger.Error("test %s aborted by driver fault: %v", f.Name, err)
	}
	if res.Status.IsFailure() {
		r.sink.TrackMetric(telemetry.MetricFail, 1)
	}
	return res
}

func (r *Runner) testEnded(res core.TestResult) {
	if r.config.OnTestEnd != nil {
		r.config.OnTestEnd(res)
	}
}

func skipped(ref string, cat core.ErrorCategory, reason string) core.TestResult {
	return core.TestResult{
		Name:       ref,
		SourcePath: ref,
		Outcome:    core.Outcome{Status: core.StatusSkipped, Category: cat, Reason: reason},
		StartTime:  time.Now(),
	}
}

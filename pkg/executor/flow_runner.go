package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/flow"
	"github.com/b2ctest/flowrunner/pkg/fn"
	"github.com/b2ctest/flowrunner/pkg/logger"
	"github.com/b2ctest/flowrunner/pkg/telemetry"
	"github.com/b2ctest/flowrunner/pkg/wait"
)

// State is the interpreter state of a running flow.
type State int

// Interpreter states.
const (
	StateAwaitStart State = iota
	StateRunning
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitStart:
		return "await_start"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// screenshotter is implemented by drivers that can capture the current page.
type screenshotter interface {
	Screenshot() ([]byte, error)
}

// FlowRunner interprets a single flow against a driver.
type FlowRunner struct {
	ctx    context.Context
	flow   flow.Flow
	driver core.Driver
	wait   wait.Policy
	fns    *fn.Dispatcher
	sink   telemetry.Sink
	config RunnerConfig

	state      State
	prevURL    string // URL observed before the last non-Navigate action
	actionsRun int
}

// NewFlowRunner creates an interpreter for f.
func NewFlowRunner(ctx context.Context, f flow.Flow, driver core.Driver, fns *fn.Dispatcher, sink telemetry.Sink, cfg RunnerConfig) *FlowRunner {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &FlowRunner{
		ctx:    ctx,
		flow:   f,
		driver: driver,
		wait:   wait.Policy{Timeout: cfg.Timeout, Interval: cfg.Interval},
		fns:    fns,
		sink:   sink,
		config: cfg,
		state:  StateAwaitStart,
	}
}

// State returns the current interpreter state.
func (fr *FlowRunner) State() State {
	return fr.state
}

// Run interprets the flow. The returned error is non-nil only for driver
// faults; every other failure is carried in the result.
func (fr *FlowRunner) Run() (core.TestResult, error) {
	start := time.Now()
	name := fr.flow.Name

	telemetry.Event(fr.sink, telemetry.EventTestStarted, "Test Name", name)
	logger.Info("test %s started (%d actions)", name, len(fr.flow.Actions))

	outcome := fr.execute()

	if outcome.Status != core.StatusPassed {
		fr.state = StateFailed
		fr.captureScreenshot()
	}

	if fr.config.DebugMode && fr.config.DebugWait > 0 {
		logger.Debug("debug mode: waiting %s after %s", fr.config.DebugWait, name)
		time.Sleep(fr.config.DebugWait)
	}

	result := core.TestResult{
		Name:         name,
		SourcePath:   fr.flow.SourcePath,
		Outcome:      outcome,
		StartTime:    start,
		Duration:     time.Since(start),
		ActionsTotal: len(fr.flow.Actions),
		ActionsRun:   fr.actionsRun,
	}
	logger.Info("test %s %s in %s", name, outcome.Status, result.Duration)
	if outcome.Status == core.StatusErrored {
		return result, outcome.Err
	}
	return result, nil
}

func (fr *FlowRunner) execute() core.Outcome {
	first := fr.flow.FirstInteractive()
	if first < 0 || fr.flow.Actions[first].Kind != flow.KindStart {
		telemetry.Event(fr.sink, telemetry.EventInvalidTest, telemetry.EventInvalidTest,
			fmt.Sprintf("%s: Invalid test. There was no navigation to a page to start.", fr.flow.Name))
		return core.FromError(core.ErrNoStart)
	}

	fr.actionsRun++
	if err := fr.start(fr.flow.Actions[first]); err != nil {
		return fr.fail(err)
	}
	fr.state = StateRunning

	for _, a := range fr.flow.Actions[first+1:] {
		if a.Kind == flow.KindMetadata {
			continue
		}
		fr.actionsRun++

		if a.Kind == flow.KindComplete {
			if err := fr.complete(a); err != nil {
				return fr.fail(err)
			}
			fr.state = StateComplete
			return core.Pass()
		}

		if err := fr.step(a); err != nil {
			return fr.fail(err)
		}
	}

	telemetry.Event(fr.sink, telemetry.EventLogicFailure, telemetry.PropError,
		"Test case logic failure or you forgot to terminate the test.")
	if fr.config.StrictCompletion {
		return core.FromError(core.ErrMissingComplete)
	}
	return core.Warn(core.ErrCategoryLogic, core.ErrMissingComplete.Message)
}

// start navigates to the Start URL and waits for arrival.
func (fr *FlowRunner) start(a flow.Action) error {
	if err := fr.driver.Navigate(a.Value); err != nil {
		return err
	}
	err := fr.wait.Await(wait.Arrival(fr.driver, a.Value, a.ID))
	if !errors.Is(err, wait.ErrTimeout) {
		return err
	}
	return fr.arrivalTimeout(a, err)
}

// arrivalTimeout classifies a Start timeout: wrong URL first, then a page
// that never finished loading, then a missing element.
func (fr *FlowRunner) arrivalTimeout(a flow.Action, cause error) error {
	name := fr.flow.Name
	secs := seconds(fr.wait.Timeout)

	current, err := fr.driver.CurrentURL()
	if err != nil {
		return err
	}
	switch {
	case !strings.Contains(current, a.Value):
		telemetry.Event(fr.sink, telemetry.EventURLFailure, telemetry.PropError,
			fmt.Sprintf("Test %s: Expected URL %s, but current URL is %s", name, a.Value, current))
		return core.ErrURLMismatch.WithMessage(fmt.Sprintf("expected URL %s, got %s", a.Value, current)).WithCause(cause)
	case a.ID == "":
		telemetry.Event(fr.sink, telemetry.EventTimeoutFailure, telemetry.PropError,
			fmt.Sprintf("Test %s: URL %s did not load within the %s second time period.", name, a.Value, secs))
		return core.ErrPageTimeout.WithMessage(fmt.Sprintf("page did not load within %s second(s)", secs)).WithCause(cause)
	default:
		telemetry.Event(fr.sink, telemetry.EventVisibleElement, telemetry.PropError,
			fmt.Sprintf("Test %s: URL %s did not load a visible element %s within the %s second time period.", name, a.Value, a.ID, secs))
		return core.ErrElementTimeout.WithMessage(fmt.Sprintf("page did not load visible element %s", a.ID)).WithCause(cause)
	}
}

// complete waits for the Complete marker and records the pass.
func (fr *FlowRunner) complete(a flow.Action) error {
	err := fr.wait.Await(wait.Arrival(fr.driver, a.Value, a.ID))
	if errors.Is(err, wait.ErrTimeout) {
		return fr.arrivalTimeout(a, err)
	}
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Test %s: Successfully landed on page: %s", fr.flow.Name, a.Value)
	if a.ID != "" {
		msg += " with element possessing ID: " + a.ID
	}
	telemetry.Event(fr.sink, telemetry.EventInformation, "TestCaseComplete", msg)
	fr.sink.TrackMetric(telemetry.MetricPass, 1)
	return nil
}

// step runs one Navigate, element or Function action.
func (fr *FlowRunner) step(a flow.Action) error {
	if a.Kind == flow.KindNavigate {
		return fr.navigate(a)
	}

	url, err := fr.driver.CurrentURL()
	if err != nil {
		return err
	}
	fr.prevURL = url

	if err := fr.awaitElement(a); err != nil {
		return err
	}

	switch a.Kind {
	case flow.KindText:
		if err := fr.driver.Clear(a.ID); err != nil {
			return err
		}
		return fr.driver.SendKeys(a.ID, a.Value)
	case flow.KindButton:
		return fr.driver.Click(a.ID)
	case flow.KindDropdown:
		return fr.driver.SelectByValue(a.ID, a.Value)
	case flow.KindCheckbox:
		return fr.driver.ToggleChecked(a.ID)
	case flow.KindFunction:
		if fr.fns == nil {
			return core.ErrUnknownFunction.WithMessage(fmt.Sprintf("no function dispatcher for %q", a.Function))
		}
		return fr.fns.Invoke(fr.ctx, fr.flow.Name, a)
	default:
		return fmt.Errorf("unexpected action kind %s", a.Kind)
	}
}

// awaitElement waits for the action's element to be present and, except
// for functions, visible. Functions without an id skip the wait so their
// own argument checks report the problem.
func (fr *FlowRunner) awaitElement(a flow.Action) error {
	if a.Kind == flow.KindFunction && a.ID == "" {
		return nil
	}
	err := fr.wait.Await(wait.ElementPresent(fr.driver, a.ID))
	if err == nil && a.Kind != flow.KindFunction {
		err = fr.wait.Await(wait.ElementVisible(fr.driver, a.ID))
	}
	if errors.Is(err, wait.ErrTimeout) {
		return fr.elementTimeout(a.ID, err)
	}
	return err
}

func (fr *FlowRunner) elementTimeout(id string, cause error) error {
	msg := fmt.Sprintf("Next element %s was not completed within the timeout period of %s second(s).", id, seconds(fr.wait.Timeout))
	telemetry.Event(fr.sink, telemetry.EventTimeoutFailure, telemetry.PropError,
		fmt.Sprintf("Test %s: %s", fr.flow.Name, msg))
	return core.ErrElementTimeout.WithMessage(msg).WithCause(cause)
}

// navigate waits for the page to move on from prevURL, then loads the
// action's URL and waits for it.
func (fr *FlowRunner) navigate(a flow.Action) error {
	name := fr.flow.Name
	err := fr.wait.Await(wait.URLDiffers(fr.driver, fr.prevURL))
	if errors.Is(err, wait.ErrTimeout) {
		msg := fmt.Sprintf("page stayed on %s for %s second(s) before navigating to %s", fr.prevURL, seconds(fr.wait.Timeout), a.Value)
		telemetry.Event(fr.sink, telemetry.EventTimeoutFailure, telemetry.PropError, fmt.Sprintf("Test %s: %s", name, msg))
		return core.ErrStaleURL.WithMessage(msg).WithCause(err)
	}
	if err != nil {
		return err
	}

	if err := fr.driver.Navigate(a.Value); err != nil {
		return err
	}
	err = fr.wait.Await(wait.URLContains(fr.driver, a.Value))
	if err != nil && !errors.Is(err, wait.ErrTimeout) {
		return err
	}

	current, uerr := fr.driver.CurrentURL()
	if uerr != nil {
		return uerr
	}
	if err == nil {
		// A following Navigate must wait for the page to leave this URL.
		fr.prevURL = current
		return nil
	}
	telemetry.Event(fr.sink, telemetry.EventURLFailure, telemetry.PropError,
		fmt.Sprintf("Test %s: Expected URL %s, but current URL is %s", name, a.Value, current))
	return core.ErrURLMismatch.WithMessage(fmt.Sprintf("expected URL %s, got %s", a.Value, current)).WithCause(err)
}

// fail turns err into the test outcome. Timeouts have already been reported
// with their own event; other failures are reported here.
func (fr *FlowRunner) fail(err error) core.Outcome {
	outcome := core.FromError(err)
	logger.WithFields(map[string]interface{}{
		"test":     fr.flow.Name,
		"category": outcome.Category.String(),
		"actions":  fr.actionsRun,
	}).Error(err)

	switch outcome.Category {
	case core.ErrCategoryNavigationTimeout, core.ErrCategoryElementTimeout:
	case core.ErrCategoryDriver:
		telemetry.Event(fr.sink, telemetry.EventExceptionThrown, telemetry.EventException, err.Error())
		fr.sink.TrackException(err, map[string]string{"Test Name": fr.flow.Name})
	default:
		telemetry.Event(fr.sink, telemetry.EventTestFailure, telemetry.PropError,
			fmt.Sprintf("Test %s: %s", fr.flow.Name, failureMessage(err)))
	}
	return outcome
}

func (fr *FlowRunner) captureScreenshot() {
	if fr.config.ScreenshotDir == "" {
		return
	}
	s, ok := fr.driver.(screenshotter)
	if !ok {
		return
	}
	png, err := s.Screenshot()
	if err != nil {
		logger.Warn("screenshot for %s failed: %v", fr.flow.Name, err)
		return
	}
	path := filepath.Join(fr.config.ScreenshotDir,
		fmt.Sprintf("%s-%s.png", fr.flow.Name, time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		logger.Warn("save screenshot %s: %v", path, err)
		return
	}
	logger.Info("screenshot saved: %s", path)
}

// failureMessage returns the ExecutionError message without its cause.
func failureMessage(err error) string {
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

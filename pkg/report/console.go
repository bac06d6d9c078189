// Package report prints run progress and summaries, and writes the suite
// report file.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/dispatch"
	"github.com/b2ctest/flowrunner/pkg/validator"
)

// Console prints live progress lines. Worker lines may come from several
// goroutines.
type Console struct {
	mu     sync.Mutex
	writer io.Writer
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithWriter sets the output, default os.Stdout.
func WithWriter(w io.Writer) ConsoleOption {
	return func(c *Console) {
		c.writer = w
	}
}

// WithNoColor disables colour for the whole process.
func WithNoColor(noColor bool) ConsoleOption {
	return func(*Console) {
		if noColor {
			color.NoColor = true
		}
	}
}

// NewConsole creates a Console.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{writer: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// SuiteStarted prints the suite header.
func (c *Console) SuiteStarted(name, browser string, tests int) {
	fmt.Fprintf(c.writer, "\n%s %s\n\n", bold("Running: "+name), cyan(fmt.Sprintf("(%s, %d test(s))", browser, tests)))
}

// TestStarted prints the test being run.
func (c *Console) TestStarted(idx, total int, name string) {
	fmt.Fprintf(c.writer, "  [%d/%d] %s\n", idx+1, total, name)
}

// TestEnded prints the outcome of one test.
func (c *Console) TestEnded(res core.TestResult) {
	took := cyan(fmt.Sprintf("(%dms)", res.Duration.Milliseconds()))
	switch res.Status {
	case core.StatusPassed:
		fmt.Fprintf(c.writer, "  %s %s %s\n", green("✓"), res.Name, took)
	case core.StatusWarned:
		fmt.Fprintf(c.writer, "  %s %s %s\n", yellow("!"), res.Name, yellow(res.Reason))
	case core.StatusSkipped:
		fmt.Fprintf(c.writer, "  %s %s (%s)\n", yellow("-"), res.Name, res.Reason)
	default:
		fmt.Fprintf(c.writer, "  %s %s %s\n", red("✗"), res.Name, took)
		if res.Reason != "" {
			fmt.Fprintf(c.writer, "    %s %s\n", red("→"), res.Reason)
		}
	}
}

// SuiteEnded prints the totals line.
func (c *Console) SuiteEnded(s *core.SuiteResult) {
	fmt.Fprintf(c.writer, "\nTests: ")
	if s.PassedTests > 0 {
		fmt.Fprintf(c.writer, "%s, ", green(fmt.Sprintf("%d passed", s.PassedTests)))
	}
	if s.FailedTests > 0 {
		fmt.Fprintf(c.writer, "%s, ", red(fmt.Sprintf("%d failed", s.FailedTests)))
	}
	if s.WarnedTests > 0 {
		fmt.Fprintf(c.writer, "%s, ", yellow(fmt.Sprintf("%d warned", s.WarnedTests)))
	}
	if s.SkippedTests > 0 {
		fmt.Fprintf(c.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", s.SkippedTests)))
	}
	fmt.Fprintf(c.writer, "%d total\n", s.TotalTests)
	fmt.Fprintf(c.writer, "Time:  %s\n", s.Duration.Round(time.Millisecond))
}

// WorkerStarted prints a dispatched worker.
func (c *Console) WorkerStarted(a dispatch.WorkerAssignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, "  %s %s %s\n", cyan("→"), itemName(a), cyan(fmt.Sprintf("(iteration %d)", a.Iteration)))
}

// WorkerExited prints a finished worker, with its output when it failed.
func (c *Console) WorkerExited(r dispatch.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.ExitCode == 0 {
		fmt.Fprintf(c.writer, "  %s %s %s\n", green("✓"), itemName(r.Assignment), cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
		return
	}
	fmt.Fprintf(c.writer, "  %s %s %s\n", red("✗"), itemName(r.Assignment), red(fmt.Sprintf("(exit %d)", r.ExitCode)))
	if r.Err != nil {
		fmt.Fprintf(c.writer, "    %s %v\n", red("→"), r.Err)
	}
	if r.Output != "" {
		fmt.Fprintf(c.writer, "%s\n", r.Output)
	}
}

func itemName(a dispatch.WorkerAssignment) string {
	return dispatch.Item{SuiteFile: a.SuiteFile, Test: a.Test}.String()
}

// Validation prints the problems found in a suite and a closing verdict.
func (c *Console) Validation(settings string, res *validator.Result) {
	fmt.Fprintf(c.writer, "\n%s\n\n", bold("Validating: "+settings))
	for _, err := range res.Errors {
		fmt.Fprintf(c.writer, "  %s %v\n", red("✗"), err)
	}
	for _, err := range res.Warnings {
		fmt.Fprintf(c.writer, "  %s %v\n", yellow("!"), err)
	}
	if res.IsValid() {
		fmt.Fprintf(c.writer, "\n%s\n", green(fmt.Sprintf("%d test(s) valid", len(res.Tests))))
		return
	}
	fmt.Fprintf(c.writer, "\n%s\n", red(fmt.Sprintf("%d error(s)", len(res.Errors))))
}

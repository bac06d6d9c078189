package core

import (
	"time"
)

// Outcome is the result of interpreting one flow: Pass, Fail(reason) or
// Error(detail).
type Outcome struct {
	Status   TestStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"` // Set for driver faults
}

// Pass returns a passing outcome.
func Pass() Outcome {
	return Outcome{Status: StatusPassed}
}

// Fail returns a failing outcome with a reason.
func Fail(category ErrorCategory, reason string) Outcome {
	return Outcome{Status: StatusFailed, Category: category, Reason: reason}
}

// Warn returns a non-blocking outcome with a reason.
func Warn(category ErrorCategory, reason string) Outcome {
	return Outcome{Status: StatusWarned, Category: category, Reason: reason}
}

// Errored returns an outcome for an unexpected fault.
func Errored(err error) Outcome {
	return Outcome{Status: StatusErrored, Category: CategoryOf(err), Reason: err.Error(), Err: err}
}

// FromError classifies err: ExecutionErrors outside the driver category are
// failures, anything else is an unexpected fault.
func FromError(err error) Outcome {
	if err == nil {
		return Pass()
	}
	cat := CategoryOf(err)
	if cat == ErrCategoryDriver {
		return Errored(err)
	}
	return Fail(cat, err.Error())
}

// TestResult captures the complete outcome of executing a single test
type TestResult struct {
	// Identity
	Name       string `json:"name"`
	SourcePath string `json:"sourcePath"`

	Outcome

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Progress
	ActionsTotal int `json:"actionsTotal"`
	ActionsRun   int `json:"actionsRun"`
}

// SuiteResult captures the complete outcome of executing one suite in a worker
type SuiteResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"` // Correlation id shared across worker processes

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Tests []TestResult `json:"tests"`

	// Summary
	TotalTests   int `json:"totalTests"`
	PassedTests  int `json:"passedTests"`
	FailedTests  int `json:"failedTests"`
	SkippedTests int `json:"skippedTests"`
	WarnedTests  int `json:"warnedTests"`
}

// ComputeSummary calculates test counts from the Tests slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalTests = len(s.Tests)
	s.PassedTests = 0
	s.FailedTests = 0
	s.SkippedTests = 0
	s.WarnedTests = 0

	for _, t := range s.Tests {
		switch t.Status {
		case StatusPassed:
			s.PassedTests++
		case StatusFailed, StatusErrored:
			s.FailedTests++
		case StatusSkipped:
			s.SkippedTests++
		case StatusWarned:
			s.WarnedTests++
		}
	}
}

// AggregateStatus determines the suite status from test results.
// Skipped tests count as failures: a test file that cannot be read never ran.
func (s *SuiteResult) AggregateStatus() TestStatus {
	hasWarning := false
	for _, t := range s.Tests {
		switch t.Status {
		case StatusFailed, StatusErrored, StatusSkipped:
			return StatusFailed
		case StatusWarned:
			hasWarning = true
		}
	}
	if hasWarning {
		return StatusWarned
	}
	return StatusPassed
}

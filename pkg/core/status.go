package core

// TestStatus represents the execution status of a test
type TestStatus int

const (
	StatusPending TestStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Reached its completion marker
	StatusFailed                    // Wait timed out, interaction or function failed
	StatusErrored                   // Unexpected driver fault
	StatusSkipped                   // Not run (unreadable file, cancelled run)
	StatusWarned                    // Finished without a completion marker in warn-only mode
)

// String returns the string representation of TestStatus
func (s TestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	case StatusWarned:
		return "warned"
	default:
		return "unknown"
	}
}

// IsFailure returns true if the status counts against the run.
func (s TestStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusErrored
}

// ErrorCategory classifies the type of error for reporting
type ErrorCategory int

const (
	ErrCategoryNone              ErrorCategory = iota // No error
	ErrCategoryConfig                                 // Settings missing or invalid, unknown browser
	ErrCategoryParse                                  // Test file unreadable or malformed
	ErrCategoryNavigationTimeout                      // Expected URL never reached
	ErrCategoryElementTimeout                         // Element never present or visible
	ErrCategoryInteraction                            // Click, select, toggle or input failed
	ErrCategoryExternalService                        // OTP retrieval failed
	ErrCategoryLogic                                  // Flow structure invalid or never completed
	ErrCategoryDriver                                 // Driver fault outside of a wait
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryParse:
		return "parse"
	case ErrCategoryNavigationTimeout:
		return "navigation_timeout"
	case ErrCategoryElementTimeout:
		return "element_timeout"
	case ErrCategoryInteraction:
		return "interaction"
	case ErrCategoryExternalService:
		return "external_service"
	case ErrCategoryLogic:
		return "logic"
	case ErrCategoryDriver:
		return "driver"
	default:
		return "unknown"
	}
}

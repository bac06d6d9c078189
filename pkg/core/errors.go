package core

import (
	"errors"
	"fmt"
)

// ExecutionError is an error with a failure category and a stable code.
type ExecutionError struct {
	Category ErrorCategory
	Code     string // Machine-readable code: element_timeout, otp_failed, etc.
	Message  string // Human-readable message
	Cause    error  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError with the same code, so copies made by the
// With* helpers still match the predefined errors.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
	ErrUnknownBrowser = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unknown_browser",
		Message:  "unrecognized browser environment",
	}
	ErrUnknownFunction = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unknown_function",
		Message:  "unknown function",
	}

	// Parse errors
	ErrInvalidTestFile = &ExecutionError{
		Category: ErrCategoryParse,
		Code:     "invalid_test_file",
		Message:  "invalid test file",
	}

	// Timeout errors
	ErrURLMismatch = &ExecutionError{
		Category: ErrCategoryNavigationTimeout,
		Code:     "url_mismatch",
		Message:  "expected URL was not reached",
	}
	ErrPageTimeout = &ExecutionError{
		Category: ErrCategoryNavigationTimeout,
		Code:     "page_timeout",
		Message:  "page did not load within timeout",
	}
	ErrStaleURL = &ExecutionError{
		Category: ErrCategoryNavigationTimeout,
		Code:     "stale_url",
		Message:  "page did not change before navigation",
	}
	ErrElementTimeout = &ExecutionError{
		Category: ErrCategoryElementTimeout,
		Code:     "element_timeout",
		Message:  "element did not appear within timeout",
	}

	// Driver errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryDriver,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryDriver,
		Code:     "server_unreachable",
		Message:  "could not connect to webdriver server",
	}

	// Interaction errors
	ErrInteraction = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "interaction_failed",
		Message:  "element interaction failed",
	}

	// External service errors
	ErrOTPFailed = &ExecutionError{
		Category: ErrCategoryExternalService,
		Code:     "otp_failed",
		Message:  "one-time passcode retrieval failed",
	}

	// Logic errors
	ErrNoStart = &ExecutionError{
		Category: ErrCategoryLogic,
		Code:     "no_start",
		Message:  "invalid test: no start action",
	}
	ErrMissingComplete = &ExecutionError{
		Category: ErrCategoryLogic,
		Code:     "missing_complete",
		Message:  "missing completion marker: test case logic failure or the test was not terminated",
	}
	ErrFunctionArgs = &ExecutionError{
		Category: ErrCategoryLogic,
		Code:     "function_args",
		Message:  "invalid function arguments",
	}
)

// CategoryOf returns the category of the first ExecutionError in err's chain,
// or ErrCategoryDriver for any other error.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryDriver
}

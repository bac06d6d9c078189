// Package validator checks a settings file and every test it lists before
// execution. It reads all files upfront and reports every problem found
// rather than stopping at the first.
package validator

import (
	"context"
	"fmt"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/flow"
	"github.com/b2ctest/flowrunner/pkg/source"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Tests is the list of test references that parsed, in suite order.
	Tests []string
	// Errors contains everything that would fail or skip a test.
	Errors []error
	// Warnings contains problems that do not fail a run.
	Warnings []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(file, format string, args ...interface{}) {
	r.Errors = append(r.Errors, &ValidationError{File: file, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(file, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, &ValidationError{File: file, Message: fmt.Sprintf(format, args...)})
}

// Validator validates suites.
type Validator struct {
	source source.Reader
}

// New creates a Validator reading files through src.
func New(src source.Reader) *Validator {
	return &Validator{source: src}
}

// Validate validates a settings file and the tests it lists. single narrows
// the suite to one test, as a worker would. strict overrides the settings
// file's StrictCompletion when non-nil.
func (v *Validator) Validate(ctx context.Context, settings, single string, strict *bool) *Result {
	result := &Result{}

	data, err := v.source.Read(ctx, settings)
	if err != nil {
		result.errorf(settings, "cannot access: %v", err)
		return result
	}
	suite, err := config.ParseSuite(data)
	if err != nil {
		result.errorf(settings, "%v", err)
		return result
	}
	suite.Filter(single)
	if strict != nil {
		suite.StrictCompletion = *strict
	}

	validated := make(map[string]bool)
	for _, ref := range suite.Tests {
		if validated[ref] {
			result.warnf(settings, "test %s is listed more than once", ref)
			continue
		}
		validated[ref] = true
		v.validateTest(ctx, ref, suite.StrictCompletion, result)
	}
	return result
}

// validateTest parses one test and checks the action order the interpreter
// relies on.
func (v *Validator) validateTest(ctx context.Context, ref string, strict bool, result *Result) {
	data, err := v.source.Read(ctx, ref)
	if err != nil {
		result.errorf(ref, "cannot access: %v", err)
		return
	}
	f, err := flow.Parse(data, ref)
	if err != nil {
		result.errorf(ref, "parse error: %v", err)
		return
	}
	result.Tests = append(result.Tests, ref)

	first := f.FirstInteractive()
	switch {
	case first < 0:
		result.errorf(ref, "no actions besides metadata")
		return
	case f.Actions[first].Kind != flow.KindStart:
		result.errorf(ref, "first action must be %s, got %s", flow.InputStart, f.Actions[first].InputType())
	}

	for i, a := range f.Actions {
		switch {
		case a.Kind == flow.KindStart && i != first:
			result.errorf(ref, "action %d: %s may only appear once, at the beginning", i+1, flow.InputStart)
		case a.Kind == flow.KindStart || a.Kind == flow.KindNavigate || a.Kind == flow.KindComplete:
			if a.Value == "" {
				result.errorf(ref, "action %d: %s has no URL", i+1, a.InputType())
			}
		case a.Kind.NeedsElement() && a.Kind != flow.KindFunction && a.ID == "":
			result.errorf(ref, "action %d: %s has no element id", i+1, a.InputType())
		}
	}

	completeAt := f.CompleteIndex()
	switch {
	case completeAt < 0 && strict:
		result.errorf(ref, "never reaches %s", flow.InputComplete)
	case completeAt < 0:
		result.warnf(ref, "never reaches %s", flow.InputComplete)
	case completeAt < len(f.Actions)-1:
		result.warnf(ref, "%d action(s) after %s are never run", len(f.Actions)-1-completeAt, flow.InputComplete)
	}
}

package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuiteResult_ComputeSummary(t *testing.T) {
	suite := &SuiteResult{
		Name: "suite",
		Tests: []TestResult{
			{Name: "a", Outcome: Pass()},
			{Name: "b", Outcome: Pass()},
			{Name: "c", Outcome: Fail(ErrCategoryElementTimeout, "timeout")},
			{Name: "d", Outcome: Outcome{Status: StatusSkipped}},
			{Name: "e", Outcome: Warn(ErrCategoryLogic, "no complete")},
			{Name: "f", Outcome: Errored(errors.New("boom"))},
		},
	}

	suite.ComputeSummary()

	assert.Equal(t, 6, suite.TotalTests)
	assert.Equal(t, 2, suite.PassedTests)
	assert.Equal(t, 2, suite.FailedTests, "failed and errored")
	assert.Equal(t, 1, suite.SkippedTests)
	assert.Equal(t, 1, suite.WarnedTests)
}

func TestSuiteResult_ComputeSummary_Empty(t *testing.T) {
	suite := &SuiteResult{Name: "empty"}
	suite.ComputeSummary()

	assert.Zero(t, suite.TotalTests)
}

func TestSuiteResult_AggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []TestStatus
		want     TestStatus
	}{
		{"all passed", []TestStatus{StatusPassed, StatusPassed}, StatusPassed},
		{"empty", nil, StatusPassed},
		{"warned", []TestStatus{StatusPassed, StatusWarned}, StatusWarned},
		{"failed", []TestStatus{StatusPassed, StatusFailed, StatusWarned}, StatusFailed},
		{"errored", []TestStatus{StatusErrored}, StatusFailed},
		{"skipped", []TestStatus{StatusPassed, StatusSkipped}, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suite := &SuiteResult{}
			for _, s := range tt.statuses {
				suite.Tests = append(suite.Tests, TestResult{Outcome: Outcome{Status: s}})
			}
			assert.Equal(t, tt.want, suite.AggregateStatus())
		})
	}
}

func TestFromError(t *testing.T) {
	assert.Equal(t, StatusPassed, FromError(nil).Status)

	fail := FromError(ErrElementTimeout.WithMessage("element #x did not appear"))
	assert.Equal(t, StatusFailed, fail.Status)
	assert.Equal(t, ErrCategoryElementTimeout, fail.Category)
	assert.Equal(t, "element #x did not appear", fail.Reason)
	assert.NoError(t, fail.Err, "failures do not carry an error")

	cause := errors.New("session deleted")
	errored := FromError(ErrElementNotFound.WithCause(cause))
	assert.Equal(t, StatusErrored, errored.Status)
	assert.ErrorIs(t, errored.Err, cause)

	plain := FromError(errors.New("EOF"))
	assert.Equal(t, StatusErrored, plain.Status)
	assert.Equal(t, ErrCategoryDriver, plain.Category)
}

// Package fn implements the named functions a flow can invoke with an
// "Fn::<name>" input type.
package fn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/flow"
	"github.com/b2ctest/flowrunner/pkg/otp"
	"github.com/b2ctest/flowrunner/pkg/telemetry"
	"github.com/b2ctest/flowrunner/pkg/wait"
)

// VerifyCodeAnchor is the element that signals the email verification screen
// is ready to accept a passcode.
const VerifyCodeAnchor = "emailVerificationControl_but_verify_code"

// UserPrefix starts every synthesized user name.
const UserPrefix = "testDriver"

// Session is state shared by every test a worker runs.
type Session struct {
	User string // Base user name, fixed for the life of the worker
}

// NewSession derives the session user from now.
func NewSession(now time.Time) Session {
	return Session{User: UserPrefix + strconv.FormatInt(now.Unix(), 10)}
}

// Dispatcher invokes functions against the current page.
type Dispatcher struct {
	Driver  core.Driver
	Wait    wait.Policy
	OTP     otp.Retriever
	MaxAge  string // Passed to the passcode service as maxage
	Session Session
	Sink    telemetry.Sink
	Now     func() time.Time
}

// Invoke runs the function named by a. test names the running test in
// telemetry.
func (d *Dispatcher) Invoke(ctx context.Context, test string, a flow.Action) error {
	switch a.Function {
	case flow.FuncOTPEmail:
		return d.otpEmail(ctx, a)
	case flow.FuncNewRandomUser:
		return d.newRandomUser(test, a)
	case flow.FuncSessionUser:
		return d.Driver.SendKeys(a.ID, d.Session.User+a.Value)
	default:
		return core.ErrUnknownFunction.WithMessage(fmt.Sprintf("unknown function %q", a.Function))
	}
}

// otpEmail reads the address typed into element a.ID, fetches its passcode
// and types it into element a.Value.
func (d *Dispatcher) otpEmail(ctx context.Context, a flow.Action) error {
	if err := d.Wait.Await(wait.ElementVisible(d.Driver, VerifyCodeAnchor)); err != nil {
		if errors.Is(err, wait.ErrTimeout) {
			return core.ErrElementTimeout.WithMessage(fmt.Sprintf(
				"Next element %s was not completed within the timeout period of %s second(s).",
				VerifyCodeAnchor, seconds(d.Wait.Timeout))).WithCause(err)
		}
		return err
	}

	switch {
	case a.ID == "" && a.Value == "":
		return core.ErrFunctionArgs.WithMessage("otpEmail function requires an id and a value.")
	case a.ID == "":
		return core.ErrFunctionArgs.WithMessage("otpEmail function requires an id.")
	case a.Value == "":
		return core.ErrFunctionArgs.WithMessage("otpEmail function requires a value.")
	}

	email, err := d.Driver.Attribute(a.ID, "value")
	if err != nil {
		return err
	}

	if d.OTP == nil {
		return core.ErrOTPFailed.WithMessage("passcode service is not configured")
	}
	code, err := d.OTP.Code(ctx, email, d.MaxAge)
	if err != nil {
		return err
	}

	if err := d.Driver.SendKeys(a.Value, code); err != nil {
		if errors.Is(err, core.ErrElementNotFound) {
			return core.ErrFunctionArgs.WithMessage("otpEmail function value does not match the id of a visible element on the page.").WithCause(err)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) newRandomUser(test string, a flow.Action) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	user := UserPrefix + strconv.FormatInt(now().Unix(), 10) + a.Value
	if d.Sink != nil {
		telemetry.Event(d.Sink, telemetry.EventInformation, "New User",
			fmt.Sprintf("Test %s: New user ID: %s", test, user))
	}
	return d.Driver.SendKeys(a.ID, user)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// Package wait implements bounded polling against live browser state.
package wait

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultInterval is the poll interval used when a Policy leaves it unset.
const DefaultInterval = 100 * time.Millisecond

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("wait timed out")

// TimeoutError is returned when a predicate never became true.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition not met within %s", e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Predicate is evaluated on each poll. An error aborts the wait.
type Predicate func() (bool, error)

// Policy polls a predicate until it holds or the timeout elapses.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// New returns a Policy with the default interval.
func New(timeout time.Duration) Policy {
	return Policy{Timeout: timeout, Interval: DefaultInterval}
}

// Await blocks until pred returns true, pred returns an error, or the timeout
// elapses. The predicate is always evaluated at least once, and a final time
// at the deadline. Predicate errors are returned unchanged.
func (p Policy) Await(pred Predicate) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(p.Timeout)

	for {
		ok, err := pred()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &TimeoutError{Timeout: p.Timeout}
		}
		if remaining < interval {
			time.Sleep(remaining)
		} else {
			time.Sleep(interval)
		}
	}
}

// Browser is the observable state predicates read.
type Browser interface {
	CurrentURL() (string, error)
	ElementPresent(id string) (bool, error)
	ElementDisplayed(id string) (bool, error)
}

// URLContains holds when the current URL contains value.
func URLContains(b Browser, value string) Predicate {
	return func() (bool, error) {
		url, err := b.CurrentURL()
		if err != nil {
			return false, err
		}
		return strings.Contains(url, value), nil
	}
}

// URLDiffers holds when the current URL is no longer prev.
func URLDiffers(b Browser, prev string) Predicate {
	return func() (bool, error) {
		url, err := b.CurrentURL()
		if err != nil {
			return false, err
		}
		return url != prev, nil
	}
}

// ElementPresent holds when an element with id exists.
func ElementPresent(b Browser, id string) Predicate {
	return func() (bool, error) {
		return b.ElementPresent(id)
	}
}

// ElementVisible holds when an element with id exists and is displayed.
// A missing element is treated as not yet visible.
func ElementVisible(b Browser, id string) Predicate {
	return func() (bool, error) {
		present, err := b.ElementPresent(id)
		if err != nil || !present {
			return false, err
		}
		return b.ElementDisplayed(id)
	}
}

// And holds when every predicate holds, evaluated in order.
func And(preds ...Predicate) Predicate {
	return func() (bool, error) {
		for _, p := range preds {
			ok, err := p()
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Arrival is the predicate used for Start and Complete markers: the URL
// contains value and, when id is set, the element is present.
func Arrival(b Browser, value, id string) Predicate {
	if id == "" {
		return URLContains(b, value)
	}
	return And(URLContains(b, value), ElementPresent(b, id))
}

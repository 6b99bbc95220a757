package scheduling

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// DefaultCancellationWindow is how long before the start a client may still cancel.
const DefaultCancellationWindow = 24 * time.Hour

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active appointments occupy their interval.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Lifecycle decides whether an appointment may move to another status.
// It never mutates anything; the store applies the change as a
// compare-and-swap on the current status.
type Lifecycle struct {
	CancellationWindow time.Duration
}

func NewLifecycle(cancellationWindow time.Duration) Lifecycle {
	if cancellationWindow < 0 {
		cancellationWindow = 0
	}
	return Lifecycle{CancellationWindow: cancellationWindow}
}

// Cancel allows scheduled and confirmed appointments to be cancelled while
// now is strictly before start minus the cancellation window.
func (l Lifecycle) Cancel(current Status, start, now time.Time) error {
	if !current.Active() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, StatusCancelled)
	}
	if !now.Before(start.Add(-l.CancellationWindow)) {
		return ErrCancellationWindowExpired
	}
	return nil
}

func (l Lifecycle) Confirm(current Status, start, now time.Time) error {
	if current != StatusScheduled {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, StatusConfirmed)
	}
	if !now.Before(start) {
		return fmt.Errorf("%w: appointment already started", ErrInvalidTransition)
	}
	return nil
}

func (l Lifecycle) Complete(current Status, start, now time.Time) error {
	if !current.Active() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, StatusCompleted)
	}
	if now.Before(start) {
		return fmt.Errorf("%w: appointment has not started", ErrInvalidTransition)
	}
	return nil
}

// Transition dispatches to the rule for next.
func (l Lifecycle) Transition(current, next Status, start, now time.Time) error {
	switch next {
	case StatusCancelled:
		return l.Cancel(current, start, now)
	case StatusConfirmed:
		return l.Confirm(current, start, now)
	case StatusCompleted:
		return l.Complete(current, start, now)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
}

// CheckOwner rejects requests on appointments that belong to someone else.
func CheckOwner(ownerID, requesterID int64) error {
	if ownerID != requesterID {
		return ErrForbidden
	}
	return nil
}

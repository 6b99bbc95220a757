package scheduling

import "errors"

var (
	ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM")
	ErrInvalidInterval   = errors.New("interval start must be before end")
	ErrInvalidDuration   = errors.New("duration must be positive")

	ErrOutOfHours   = errors.New("requested time is outside working hours")
	ErrDateInPast   = errors.New("requested time is in the past")
	ErrSlotConflict = errors.New("requested time overlaps an existing appointment")

	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
	ErrInvalidTransition         = errors.New("status transition is not allowed")
	ErrForbidden                 = errors.New("appointment belongs to another user")
)

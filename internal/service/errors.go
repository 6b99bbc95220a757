package service

import (
	"errors"

	"clinicbook/internal/database"
	"clinicbook/internal/scheduling"
)

var (
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrUserNotFound         = errors.New("user not found")

	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	ErrDateTooFar  = errors.New("date is beyond the booking horizon")
	ErrRateLimited = errors.New("too many booking attempts, try again later")
	ErrInvalidUser = errors.New("invalid user")
)

// Kind is the transport-independent class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindForbidden
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrProfessionalNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, database.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrDateTooFar),
		errors.Is(err, ErrInvalidUser),
		errors.Is(err, scheduling.ErrInvalidTimeFormat),
		errors.Is(err, scheduling.ErrInvalidInterval),
		errors.Is(err, scheduling.ErrInvalidDuration),
		errors.Is(err, scheduling.ErrOutOfHours),
		errors.Is(err, scheduling.ErrDateInPast):
		return KindValidation
	case errors.Is(err, scheduling.ErrSlotConflict),
		errors.Is(err, scheduling.ErrInvalidTransition),
		errors.Is(err, database.ErrConcurrentModification):
		return KindConflict
	case errors.Is(err, scheduling.ErrForbidden),
		errors.Is(err, scheduling.ErrCancellationWindowExpired):
		return KindForbidden
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// Code is a stable machine-readable name for err, used in API error bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrProfessionalNotFound):
		return "professional_not_found"
	case errors.Is(err, ErrServiceNotFound):
		return "service_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, database.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidUser):
		return "invalid_user"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrDateTooFar):
		return "date_too_far"
	case errors.Is(err, scheduling.ErrInvalidTimeFormat):
		return "invalid_time_format"
	case errors.Is(err, scheduling.ErrInvalidInterval), errors.Is(err, scheduling.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, scheduling.ErrOutOfHours):
		return "out_of_hours"
	case errors.Is(err, scheduling.ErrDateInPast):
		return "date_in_past"
	case errors.Is(err, scheduling.ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, scheduling.ErrInvalidTransition), errors.Is(err, database.ErrConcurrentModification):
		return "invalid_transition"
	case errors.Is(err, scheduling.ErrForbidden):
		return "forbidden"
	case errors.Is(err, scheduling.ErrCancellationWindowExpired):
		return "cancellation_window_expired"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

package scheduling

import (
	"fmt"
	"time"
)

// BookingCheck is a consistent snapshot of everything needed to decide on a
// booking request. Booked must hold only non-cancelled intervals of the same
// professional and date.
type BookingCheck struct {
	Window          Interval
	Date            time.Time
	Start           TimeOfDay
	DurationMinutes int
	Booked          []Interval
	Now             time.Time
}

// ValidateBooking resolves the requested interval and checks it against the
// working window, the clock and the existing bookings, in that order. The
// first failing rule wins. Persisting the result is up to the caller, which
// must run this check and its insert as one unit.
func ValidateBooking(req BookingCheck) (Interval, error) {
	requested, err := Span(req.Start, req.DurationMinutes)
	if err != nil {
		return Interval{}, err
	}

	if !Contains(req.Window, requested) {
		return Interval{}, fmt.Errorf("%w: %s not within %s", ErrOutOfHours, requested, req.Window)
	}

	if At(req.Date, req.Start).Before(req.Now) {
		return Interval{}, ErrDateInPast
	}

	if taken, ok := ConflictsWith(requested, req.Booked); ok {
		return Interval{}, fmt.Errorf("%w: %s overlaps %s", ErrSlotConflict, requested, taken)
	}

	return requested, nil
}

// At places t on the calendar day of date, in date's location.
func At(date time.Time, t TimeOfDay) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location())
}

// Package scheduling holds the availability and conflict rules for
// appointments. Everything here is pure: callers pass in the working window,
// the booked intervals and the clock, and get back a decision.
package scheduling

import (
	"fmt"
	"strings"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time counted in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts zero-padded "HH:MM" and the "HH:MM:SS" form stored by
// SQL TIME columns. Seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	h, err := parseField(parts[0], 23)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	m, err := parseField(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if len(parts) == 3 {
		if _, err := parseField(parts[2], 59); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
		}
	}

	return TimeOfDay(h*60 + m), nil
}

// parseField reads exactly two ASCII digits.
func parseField(s string, maxVal int) (int, error) {
	if len(s) != 2 || !isDigit(s[0]) || !isDigit(s[1]) {
		return 0, ErrInvalidTimeFormat
	}
	v := int(s[0]-'0')*10 + int(s[1]-'0')
	if v > maxVal {
		return 0, ErrInvalidTimeFormat
	}
	return v, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// MustParseTimeOfDay is ParseTimeOfDay for literals known to be valid.
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// AddMinutes shifts t without wrapping past midnight. Results beyond 24:00
// stay representable so that containment checks can reject them.
func (t TimeOfDay) AddMinutes(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Valid reports whether t falls within a single calendar day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= minutesPerDay
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func NewInterval(start, end TimeOfDay) (Interval, error) {
	if start >= end {
		return Interval{}, fmt.Errorf("%w: %s-%s", ErrInvalidInterval, start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// ParseInterval builds an interval from two boundary strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(s, e)
}

// Span returns the interval of the given length starting at start.
func Span(start TimeOfDay, durationMinutes int) (Interval, error) {
	if durationMinutes <= 0 {
		return Interval{}, ErrInvalidDuration
	}
	return Interval{Start: start, End: start.AddMinutes(durationMinutes)}, nil
}

func (iv Interval) Minutes() int { return int(iv.End - iv.Start) }

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// Overlaps reports whether a and b share any minute. Touching ends
// (a.End == b.Start) do not overlap so back-to-back appointments are allowed.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Contains reports whether iv lies entirely inside window.
func Contains(window, iv Interval) bool {
	return iv.Start >= window.Start && iv.End <= window.End
}

// ConflictsWith returns the first booked interval overlapping iv.
func ConflictsWith(iv Interval, booked []Interval) (Interval, bool) {
	for _, b := range booked {
		if Overlaps(iv, b) {
			return b, true
		}
	}
	return Interval{}, false
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

package scheduling

// DefaultGranularityMinutes is the step between candidate slot starts.
const DefaultGranularityMinutes = 30

// GenerateSlots walks window in fixed granularity steps and returns every
// [cursor, cursor+duration) that fits inside window and overlaps none of the
// booked intervals. The step does not depend on the duration, so a 45 minute
// service on a 30 minute grid yields slots whose tails overlap each other;
// each one is still conflict-free on its own.
func GenerateSlots(window Interval, durationMinutes, granularityMinutes int, booked []Interval) ([]Interval, error) {
	if window.Start >= window.End {
		return nil, ErrInvalidInterval
	}
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if granularityMinutes <= 0 {
		granularityMinutes = DefaultGranularityMinutes
	}

	slots := make([]Interval, 0, window.Minutes()/granularityMinutes)
	for cursor := window.Start; cursor.AddMinutes(durationMinutes) <= window.End; cursor = cursor.AddMinutes(granularityMinutes) {
		candidate := Interval{Start: cursor, End: cursor.AddMinutes(durationMinutes)}
		if _, taken := ConflictsWith(candidate, booked); taken {
			continue
		}
		slots = append(slots, candidate)
	}

	return slots, nil
}

package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clinic = time.FixedZone("clinic", 3*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, clinic)
}

func baseCheck() BookingCheck {
	return BookingCheck{
		Window:          iv("08:00", "18:00"),
		Date:            day(2025, time.March, 10),
		Start:           MustParseTimeOfDay("09:00"),
		DurationMinutes: 30,
		Now:             time.Date(2025, time.March, 1, 12, 0, 0, 0, clinic),
	}
}

func TestValidateBookingAccepts(t *testing.T) {
	req := baseCheck()
	req.Booked = []Interval{iv("08:30", "09:00"), iv("09:30", "10:00")}

	got, err := ValidateBooking(req)
	require.NoError(t, err)
	assert.Equal(t, iv("09:00", "09:30"), got)
}

func TestValidateBookingConflict(t *testing.T) {
	req := baseCheck()
	req.Booked = []Interval{iv("09:00", "09:30")}

	_, err := ValidateBooking(req)
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestValidateBookingPartialConflict(t *testing.T) {
	req := baseCheck()
	req.DurationMinutes = 60
	req.Booked = []Interval{iv("09:45", "10:15")}

	_, err := ValidateBooking(req)
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestValidateBookingPastDateOnEmptyDay(t *testing.T) {
	req := baseCheck()
	req.Now = time.Date(2025, time.March, 12, 8, 0, 0, 0, clinic)

	_, err := ValidateBooking(req)
	assert.ErrorIs(t, err, ErrDateInPast)
}

func TestValidateBookingSameDayEarlierTime(t *testing.T) {
	req := baseCheck()
	req.Now = time.Date(2025, time.March, 10, 9, 0, 1, 0, clinic)

	_, err := ValidateBooking(req)
	assert.ErrorIs(t, err, ErrDateInPast)

	req.Now = time.Date(2025, time.March, 10, 9, 0, 0, 0, clinic)
	_, err = ValidateBooking(req)
	assert.NoError(t, err, "a start equal to now is not in the past")
}

func TestValidateBookingOutOfHours(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		duration int
	}{
		{"before opening", "07:30", 30},
		{"runs past closing", "17:45", 30},
		{"after closing", "18:00", 30},
		{"past midnight", "23:30", 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseCheck()
			req.Start = MustParseTimeOfDay(tt.start)
			req.DurationMinutes = tt.duration

			_, err := ValidateBooking(req)
			assert.ErrorIs(t, err, ErrOutOfHours)
		})
	}
}

func TestValidateBookingRuleOrder(t *testing.T) {
	// out of hours, in the past and conflicting at once: hours are checked first
	req := baseCheck()
	req.Start = MustParseTimeOfDay("17:45")
	req.Now = time.Date(2026, time.January, 1, 0, 0, 0, 0, clinic)
	req.Booked = []Interval{iv("17:30", "18:00")}

	_, err := ValidateBooking(req)
	assert.ErrorIs(t, err, ErrOutOfHours)

	// in the past and conflicting: past wins
	req.Start = MustParseTimeOfDay("17:30")
	_, err = ValidateBooking(req)
	assert.ErrorIs(t, err, ErrDateInPast)
}

func TestValidateBookingInvalidDuration(t *testing.T) {
	req := baseCheck()
	req.DurationMinutes = 0

	_, err := ValidateBooking(req)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestAt(t *testing.T) {
	got := At(time.Date(2025, time.March, 10, 23, 59, 0, 0, clinic), MustParseTimeOfDay("09:15"))
	assert.Equal(t, time.Date(2025, time.March, 10, 9, 15, 0, 0, clinic), got)
}

package models

import (
	"time"

	"clinicbook/internal/scheduling"
)

type Appointment struct {
	ID               int64                `json:"id"`
	UserID           int64                `json:"user_id"`
	UserName         string               `json:"user_name,omitempty"`
	ProfessionalID   int64                `json:"professional_id"`
	ProfessionalName string               `json:"professional_name,omitempty"`
	ServiceID        int64                `json:"service_id"`
	ServiceName      string               `json:"service_name,omitempty"`
	Date             time.Time            `json:"date"`
	Start            scheduling.TimeOfDay `json:"start"`
	End              scheduling.TimeOfDay `json:"end"`
	Status           scheduling.Status    `json:"status"`
	Notes            string               `json:"notes,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	CancelledAt      *time.Time           `json:"cancelled_at,omitempty"`
	Version          int64                `json:"version"`
}

func (a *Appointment) Interval() scheduling.Interval {
	return scheduling.Interval{Start: a.Start, End: a.End}
}

// StartsAt is the moment the appointment begins in the location of Date.
func (a *Appointment) StartsAt() time.Time {
	return scheduling.At(a.Date, a.Start)
}

// DateString formats Date for storage and the API.
func (a *Appointment) DateString() string {
	return a.Date.Format(DateLayout)
}

type Slot struct {
	Start scheduling.TimeOfDay `json:"start"`
	End   scheduling.TimeOfDay `json:"end"`
}

func SlotsFromIntervals(ivs []scheduling.Interval) []Slot {
	slots := make([]Slot, 0, len(ivs))
	for _, iv := range ivs {
		slots = append(slots, Slot{Start: iv.Start, End: iv.End})
	}
	return slots
}

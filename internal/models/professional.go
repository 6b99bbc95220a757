package models

import (
	"time"

	"clinicbook/internal/scheduling"
)

type Professional struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Specialty   string               `json:"specialty"`
	Bio         string               `json:"bio,omitempty"`
	WorkStart   scheduling.TimeOfDay `json:"work_start"`
	WorkEnd     scheduling.TimeOfDay `json:"work_end"`
	Rating      float64              `json:"rating"`
	ReviewCount int                  `json:"review_count"`
	IsActive    bool                 `json:"is_active"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// WorkingWindow returns the daily interval during which the professional accepts appointments.
func (p *Professional) WorkingWindow() (scheduling.Interval, error) {
	return scheduling.NewInterval(p.WorkStart, p.WorkEnd)
}

type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

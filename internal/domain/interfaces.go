package domain

import (
	"context"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"
)

// Store is the persistence collaborator of the booking engine.
type Store interface {
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListBookedIntervals(ctx context.Context, professionalID int64, date time.Time) ([]scheduling.Interval, error)
	CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, expected, next scheduling.Status, at time.Time) error
	ListUserAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error)
	ListUpcomingAppointments(ctx context.Context, userID int64, now time.Time, limit int) ([]*models.Appointment, error)
	ListAppointmentsByDate(ctx context.Context, date time.Time, professionalID int64) ([]*models.Appointment, error)
	ListElapsedActive(ctx context.Context, now time.Time) ([]*models.Appointment, error)
}

type CatalogStore interface {
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	ListProfessionals(ctx context.Context) ([]*models.Professional, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
}

// SlotKey identifies a cached availability computation.
type SlotKey struct {
	ProfessionalID int64
	Date           string
	ServiceID      int64
}

// SlotCache holds computed availability. Every (professional, date) has a
// version that Invalidate advances; SetSlots only stores lists computed under
// the version that is still current.
type SlotCache interface {
	SlotVersion(ctx context.Context, professionalID int64, date string) (int64, error)
	GetSlots(ctx context.Context, key SlotKey) ([]models.Slot, bool, error)
	SetSlots(ctx context.Context, key SlotKey, version int64, slots []models.Slot) error
	Invalidate(ctx context.Context, professionalID int64, date string) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SheetsWriter interface {
	UpsertAppointment(ctx context.Context, appt *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status scheduling.Status) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, appt *models.Appointment) error
}

type UserStore interface {
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserActivity(ctx context.Context, id int64) error
	GetAllUsers(ctx context.Context) ([]*models.User, error)
}

package api

import (
	"context"

	"clinicbook/internal/models"
	"clinicbook/internal/service"
)

// BookingAPI is the part of service.BookingService the transports call.
type BookingAPI interface {
	GetAvailableSlots(ctx context.Context, professionalID int64, date string, serviceID int64) ([]models.Slot, error)
	CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*models.Appointment, error)
	CancelBooking(ctx context.Context, userID, appointmentID int64) (*models.Appointment, error)
	ConfirmBooking(ctx context.Context, staffID, appointmentID int64) (*models.Appointment, error)
	CompleteBooking(ctx context.Context, staffID, appointmentID int64) (*models.Appointment, error)
	GetAppointment(ctx context.Context, userID, appointmentID int64) (*models.Appointment, error)
	ListUserAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error)
	UpcomingAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error)
	Agenda(ctx context.Context, date string, professionalID int64) ([]*models.Appointment, error)
}

type CatalogAPI interface {
	ListProfessionals(ctx context.Context) ([]*models.Professional, error)
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
}

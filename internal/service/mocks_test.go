package service

import (
	"context"
	"time"

	"clinicbook/internal/domain"
	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProfessional(ctx context.Context, id int64) (*models.Professional, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Professional), args.Error(1)
}

func (m *mockStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *mockStore) ListProfessionals(ctx context.Context) ([]*models.Professional, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Professional), args.Error(1)
}

func (m *mockStore) ListServices(ctx context.Context) ([]*models.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Service), args.Error(1)
}

func (m *mockStore) ListBookedIntervals(ctx context.Context, professionalID int64, date time.Time) ([]scheduling.Interval, error) {
	args := m.Called(ctx, professionalID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scheduling.Interval), args.Error(1)
}

func (m *mockStore) CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error {
	return m.Called(ctx, appt).Error(0)
}

func (m *mockStore) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *mockStore) UpdateAppointmentStatus(ctx context.Context, id int64, expected, next scheduling.Status, at time.Time) error {
	return m.Called(ctx, id, expected, next, at).Error(0)
}

func (m *mockStore) ListUserAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}

func (m *mockStore) ListUpcomingAppointments(ctx context.Context, userID int64, now time.Time, limit int) ([]*models.Appointment, error) {
	args := m.Called(ctx, userID, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}

func (m *mockStore) ListAppointmentsByDate(ctx context.Context, date time.Time, professionalID int64) ([]*models.Appointment, error) {
	args := m.Called(ctx, date, professionalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}

func (m *mockStore) ListElapsedActive(ctx context.Context, now time.Time) ([]*models.Appointment, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetSlots(ctx context.Context, key domain.SlotKey) ([]models.Slot, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]models.Slot), args.Bool(1), args.Error(2)
}

func (m *mockCache) SlotVersion(ctx context.Context, professionalID int64, date string) (int64, error) {
	args := m.Called(ctx, professionalID, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCache) SetSlots(ctx context.Context, key domain.SlotKey, version int64, slots []models.Slot) error {
	return m.Called(ctx, key, version, slots).Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, professionalID int64, date string) error {
	return m.Called(ctx, professionalID, date).Error(0)
}

func (m *mockCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) UpdateUserActivity(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserStore) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

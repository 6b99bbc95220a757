package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicbook/internal/database"
	"clinicbook/internal/domain"
	"clinicbook/internal/events"
	"clinicbook/internal/metrics"
	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"github.com/rs/zerolog"
)

// BookingOptions carries the booking policy. Zero values fall back to defaults,
// except CancellationWindow: zero allows cancelling right up to the start.
type BookingOptions struct {
	GranularityMinutes int
	MaxBookingDays     int
	CancellationWindow time.Duration
	RateLimitAttempts  int
	RateLimitWindow    time.Duration
	Location           *time.Location
	Now                func() time.Time
}

type CreateBookingRequest struct {
	UserID         int64
	ProfessionalID int64
	ServiceID      int64
	Date           string
	Start          string
	Notes          string
}

type BookingService struct {
	store          domain.Store
	cache          domain.SlotCache
	eventBus       domain.EventPublisher
	lifecycle      scheduling.Lifecycle
	granularity    int
	maxBookingDays int
	rateAttempts   int
	rateWindow     time.Duration
	loc            *time.Location
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewBookingService(
	store domain.Store,
	cache domain.SlotCache,
	eventBus domain.EventPublisher,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.GranularityMinutes <= 0 {
		opts.GranularityMinutes = scheduling.DefaultGranularityMinutes
	}
	if opts.MaxBookingDays <= 0 {
		opts.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = models.BookingRateLimitWindow
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:          store,
		cache:          cache,
		eventBus:       eventBus,
		lifecycle:      scheduling.NewLifecycle(opts.CancellationWindow),
		granularity:    opts.GranularityMinutes,
		maxBookingDays: opts.MaxBookingDays,
		rateAttempts:   opts.RateLimitAttempts,
		rateWindow:     opts.RateLimitWindow,
		loc:            opts.Location,
		now:            opts.Now,
		logger:         logger,
	}
}

// Location is the clinic time zone all dates are interpreted in.
func (s *BookingService) Location() *time.Location {
	return s.loc
}

func (s *BookingService) clock() (now, today time.Time) {
	now = s.now().In(s.loc)
	y, m, d := now.Date()
	return now, time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// ParseDate reads a YYYY-MM-DD calendar day in the clinic location.
func (s *BookingService) ParseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return day, nil
}

func (s *BookingService) professional(ctx context.Context, id int64) (*models.Professional, error) {
	p, err := s.store.GetProfessional(ctx, id)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !p.IsActive) {
		return nil, fmt.Errorf("%w: %d", ErrProfessionalNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *BookingService) service(ctx context.Context, id int64) (*models.Service, error) {
	svc, err := s.store.GetService(ctx, id)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !svc.IsActive) {
		return nil, fmt.Errorf("%w: %d", ErrServiceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// GetAvailableSlots lists the free slots of the professional on date for the
// service's duration. Past days are empty and, for today, slots that already
// started are left out.
func (s *BookingService) GetAvailableSlots(ctx context.Context, professionalID int64, date string, serviceID int64) ([]models.Slot, error) {
	day, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	prof, err := s.professional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	svc, err := s.service(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	now, today := s.clock()
	if day.Before(today) {
		return []models.Slot{}, nil
	}

	key := domain.SlotKey{ProfessionalID: professionalID, Date: day.Format(models.DateLayout), ServiceID: serviceID}
	slots, ok := s.cachedSlots(ctx, key)
	if !ok {
		// The version is read before the bookings so that an invalidation
		// racing the computation makes the cache drop this list.
		version, cacheable := s.slotVersion(ctx, key)
		slots, err = s.computeSlots(ctx, prof, svc, day)
		if err != nil {
			return nil, err
		}
		if cacheable {
			if err := s.cache.SetSlots(ctx, key, version, slots); err != nil {
				s.logger.Warn().Err(err).Int64("professional_id", professionalID).Msg("slot cache write failed")
			}
		}
	}

	if day.Equal(today) {
		slots = startingFrom(slots, day, now)
	}
	return slots, nil
}

func (s *BookingService) cachedSlots(ctx context.Context, key domain.SlotKey) ([]models.Slot, bool) {
	if s.cache == nil {
		return nil, false
	}
	slots, ok, err := s.cache.GetSlots(ctx, key)
	switch {
	case err != nil:
		metrics.IncCacheResult("error")
		s.logger.Warn().Err(err).Int64("professional_id", key.ProfessionalID).Msg("slot cache read failed")
		return nil, false
	case ok:
		metrics.IncCacheResult("hit")
		return slots, true
	default:
		metrics.IncCacheResult("miss")
		return nil, false
	}
}

func (s *BookingService) slotVersion(ctx context.Context, key domain.SlotKey) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	version, err := s.cache.SlotVersion(ctx, key.ProfessionalID, key.Date)
	if err != nil {
		s.logger.Warn().Err(err).Int64("professional_id", key.ProfessionalID).Msg("slot cache version read failed")
		return 0, false
	}
	return version, true
}

func (s *BookingService) computeSlots(ctx context.Context, prof *models.Professional, svc *models.Service, day time.Time) ([]models.Slot, error) {
	started := time.Now()
	window, err := prof.WorkingWindow()
	if err != nil {
		return nil, fmt.Errorf("professional %d working hours: %w", prof.ID, err)
	}
	booked, err := s.store.ListBookedIntervals(ctx, prof.ID, day)
	if err != nil {
		return nil, err
	}
	free, err := scheduling.GenerateSlots(window, svc.DurationMinutes, s.granularity, booked)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSlotGeneration(time.Since(started).Seconds())
	return models.SlotsFromIntervals(free), nil
}

func startingFrom(slots []models.Slot, day, now time.Time) []models.Slot {
	out := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		if !scheduling.At(day, slot.Start).Before(now) {
			out = append(out, slot)
		}
	}
	return out
}

// CreateBooking validates the request against the professional's hours, the
// clock and the current bookings, then stores it. The store repeats the
// conflict check inside its write transaction.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (appt *models.Appointment, err error) {
	defer func() {
		if err != nil {
			metrics.IncBookingRejected(KindOf(err).String())
		}
	}()

	if err := s.checkRateLimit(ctx, req.UserID); err != nil {
		return nil, err
	}

	day, err := s.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	start, err := scheduling.ParseTimeOfDay(req.Start)
	if err != nil {
		return nil, err
	}

	now, today := s.clock()
	if day.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return nil, fmt.Errorf("%w: more than %d days ahead", ErrDateTooFar, s.maxBookingDays)
	}

	prof, err := s.professional(ctx, req.ProfessionalID)
	if err != nil {
		return nil, err
	}
	svc, err := s.service(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	window, err := prof.WorkingWindow()
	if err != nil {
		return nil, fmt.Errorf("professional %d working hours: %w", prof.ID, err)
	}

	booked, err := s.store.ListBookedIntervals(ctx, prof.ID, day)
	if err != nil {
		return nil, err
	}

	iv, err := scheduling.ValidateBooking(scheduling.BookingCheck{
		Window:          window,
		Date:            day,
		Start:           start,
		DurationMinutes: svc.DurationMinutes,
		Booked:          booked,
		Now:             now,
	})
	if err != nil {
		return nil, err
	}

	appt = &models.Appointment{
		UserID:           req.UserID,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		ServiceID:        svc.ID,
		ServiceName:      svc.Name,
		Date:             day,
		Start:            iv.Start,
		End:              iv.End,
		Status:           scheduling.StatusScheduled,
		Notes:            req.Notes,
	}
	if err := s.store.CreateAppointmentWithLock(ctx, appt); err != nil {
		return nil, err
	}

	s.invalidate(ctx, appt)
	s.publishEvent(events.EventAppointmentCreated, appt, "user", req.UserID)
	return appt, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.cache == nil || s.rateAttempts <= 0 {
		return nil
	}
	allowed, err := s.cache.CheckRateLimit(ctx, userID, s.rateAttempts, s.rateWindow)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// CancelBooking cancels the user's own appointment while the cancellation
// window is still open.
func (s *BookingService) CancelBooking(ctx context.Context, userID, appointmentID int64) (*models.Appointment, error) {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := scheduling.CheckOwner(appt.UserID, userID); err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, scheduling.StatusCancelled, "user", userID)
}

// ConfirmBooking is the staff acknowledgement of a scheduled appointment.
func (s *BookingService) ConfirmBooking(ctx context.Context, staffID, appointmentID int64) (*models.Appointment, error) {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, scheduling.StatusConfirmed, "staff", staffID)
}

func (s *BookingService) CompleteBooking(ctx context.Context, staffID, appointmentID int64) (*models.Appointment, error) {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, scheduling.StatusCompleted, "staff", staffID)
}

// CompleteElapsed marks every active appointment that has already started as
// completed and reports how many were moved. Appointments changed
// concurrently are skipped.
func (s *BookingService) CompleteElapsed(ctx context.Context) (int, error) {
	now, _ := s.clock()
	elapsed, err := s.store.ListElapsedActive(ctx, now)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, appt := range elapsed {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if _, err := s.transition(ctx, s.inLocation(appt), scheduling.StatusCompleted, "system", 0); err != nil {
			s.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("skip elapsed appointment")
			continue
		}
		completed++
	}
	return completed, nil
}

func (s *BookingService) transition(
	ctx context.Context,
	appt *models.Appointment,
	next scheduling.Status,
	actor string,
	actorID int64,
) (*models.Appointment, error) {
	now, _ := s.clock()
	if err := s.lifecycle.Transition(appt.Status, next, appt.StartsAt(), now); err != nil {
		return nil, err
	}

	if err := s.store.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, next, now); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, fmt.Errorf("%w: appointment %d changed concurrently", scheduling.ErrInvalidTransition, appt.ID)
		}
		return nil, err
	}

	appt.Status = next
	appt.UpdatedAt = now
	appt.Version++
	if next == scheduling.StatusCancelled {
		cancelledAt := now
		appt.CancelledAt = &cancelledAt
		s.invalidate(ctx, appt)
	}

	s.publishEvent(eventFor(next), appt, actor, actorID)
	return appt, nil
}

func eventFor(status scheduling.Status) string {
	switch status {
	case scheduling.StatusConfirmed:
		return events.EventAppointmentConfirmed
	case scheduling.StatusCancelled:
		return events.EventAppointmentCancelled
	case scheduling.StatusCompleted:
		return events.EventAppointmentCompleted
	default:
		return events.EventAppointmentCreated
	}
}

// GetAppointment returns the appointment if it belongs to userID.
func (s *BookingService) GetAppointment(ctx context.Context, userID, appointmentID int64) (*models.Appointment, error) {
	appt, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := scheduling.CheckOwner(appt.UserID, userID); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *BookingService) getAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrAppointmentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.inLocation(appt), nil
}

// inLocation pins the stored calendar day to the clinic time zone.
func (s *BookingService) inLocation(appt *models.Appointment) *models.Appointment {
	y, m, d := appt.Date.Date()
	appt.Date = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return appt
}

func (s *BookingService) ListUserAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error) {
	return s.store.ListUserAppointments(ctx, userID)
}

// UpcomingAppointments returns the user's next active appointments, soonest first.
func (s *BookingService) UpcomingAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error) {
	now, _ := s.clock()
	return s.store.ListUpcomingAppointments(ctx, userID, now, models.UpcomingLimit)
}

// Agenda lists all appointments of a day; professionalID 0 means every professional.
func (s *BookingService) Agenda(ctx context.Context, date string, professionalID int64) ([]*models.Appointment, error) {
	day, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.store.ListAppointmentsByDate(ctx, day, professionalID)
}

func (s *BookingService) invalidate(ctx context.Context, appt *models.Appointment) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, appt.ProfessionalID, appt.DateString()); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", appt.ID).Msg("slot cache invalidation failed")
	}
}

func (s *BookingService) publishEvent(eventType string, appt *models.Appointment, changedBy string, changedByID int64) {
	metrics.IncAppointmentEvent(eventType)
	if s.eventBus == nil {
		return
	}

	payload := events.NewAppointmentPayload(appt, changedBy, changedByID)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("appointment_id", appt.ID).Msg("publish event error")
	}
}

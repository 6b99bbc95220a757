package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"github.com/mattn/go-sqlite3"
)

const appointmentSelect = `SELECT a.id, a.user_id, COALESCE(u.full_name, ''), a.professional_id, COALESCE(p.name, ''),
                 a.service_id, COALESCE(s.name, ''), a.date, a.start_time, a.end_time, a.status,
                 COALESCE(a.notes, ''), a.created_at, a.updated_at, a.cancelled_at, a.version
              FROM appointments a
              LEFT JOIN users u ON u.id = a.user_id
              LEFT JOIN professionals p ON p.id = a.professional_id
              LEFT JOIN services s ON s.id = a.service_id`

const activeStatuses = `('scheduled', 'confirmed')`

// ListBookedIntervals returns the intervals held by non-cancelled appointments
// of the professional on date.
func (db *DB) ListBookedIntervals(ctx context.Context, professionalID int64, date time.Time) ([]scheduling.Interval, error) {
	return listBookedIntervals(ctx, db.DB, professionalID, date)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listBookedIntervals(ctx context.Context, q queryer, professionalID int64, date time.Time) ([]scheduling.Interval, error) {
	query := `SELECT start_time, end_time FROM appointments
              WHERE professional_id = ? AND date = ? AND status != 'cancelled'
              ORDER BY start_time ASC`
	rows, err := q.QueryContext(ctx, query, professionalID, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list booked intervals: %w", err)
	}
	defer rows.Close()

	var booked []scheduling.Interval
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		iv, err := scheduling.ParseInterval(start, end)
		if err != nil {
			return nil, fmt.Errorf("stored interval %s-%s: %w", start, end, err)
		}
		booked = append(booked, iv)
	}
	return booked, rows.Err()
}

// CreateAppointmentWithLock re-reads the professional's live intervals for the
// day inside a write transaction and inserts the appointment only if it
// overlaps none of them. A concurrent insert of the same start that slips past
// is caught by the unique index; both cases report scheduling.ErrSlotConflict.
func (db *DB) CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booked, err := listBookedIntervals(ctx, tx, appt.ProfessionalID, appt.Date)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if taken, ok := scheduling.ConflictsWith(appt.Interval(), booked); ok {
		return fmt.Errorf("%w: %s overlaps %s", scheduling.ErrSlotConflict, appt.Interval(), taken)
	}

	query := `INSERT INTO appointments (
				user_id, professional_id, service_id, date, start_time, end_time,
				status, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if appt.Status == "" {
		appt.Status = scheduling.StatusScheduled
	}
	result, err := tx.ExecContext(ctx, query,
		appt.UserID,
		appt.ProfessionalID,
		appt.ServiceID,
		appt.DateString(),
		appt.Start.String(),
		appt.End.String(),
		string(appt.Status),
		appt.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s already taken", scheduling.ErrSlotConflict, appt.Start)
		}
		return fmt.Errorf("failed to insert appointment in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s already taken", scheduling.ErrSlotConflict, appt.Start)
		}
		return fmt.Errorf("failed to commit appointment: %w", err)
	}

	appt.ID = id
	appt.CreatedAt = now
	appt.UpdatedAt = now
	appt.Version = 1
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, appointmentSelect+` WHERE a.id = ?`, id)
	appt, err := db.scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// UpdateAppointmentStatus moves the appointment from expected to next only if
// it is still in expected. cancelledAt is recorded when next is cancelled.
func (db *DB) UpdateAppointmentStatus(
	ctx context.Context,
	id int64,
	expected, next scheduling.Status,
	at time.Time,
) error {
	var cancelledAt any
	if next == scheduling.StatusCancelled {
		cancelledAt = at
	}
	query := `UPDATE appointments
              SET status = ?, updated_at = ?, version = version + 1,
                  cancelled_at = COALESCE(?, cancelled_at)
              WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, string(next), at, cancelledAt, id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ListUserAppointments returns every appointment of the user, latest first.
func (db *DB) ListUserAppointments(ctx context.Context, userID int64) ([]*models.Appointment, error) {
	return db.queryAppointments(ctx,
		appointmentSelect+` WHERE a.user_id = ? ORDER BY a.date DESC, a.start_time DESC`, userID)
}

// ListUpcomingAppointments returns the user's live appointments starting at or after now.
func (db *DB) ListUpcomingAppointments(ctx context.Context, userID int64, now time.Time, limit int) ([]*models.Appointment, error) {
	day, clock := db.split(now)
	return db.queryAppointments(ctx, appointmentSelect+`
              WHERE a.user_id = ? AND a.status IN `+activeStatuses+`
                AND (a.date > ? OR (a.date = ? AND a.start_time >= ?))
              ORDER BY a.date ASC, a.start_time ASC LIMIT ?`,
		userID, day, day, clock, limit)
}

// ListAppointmentsByDate returns the agenda of a day. A zero professionalID
// returns every professional.
func (db *DB) ListAppointmentsByDate(ctx context.Context, date time.Time, professionalID int64) ([]*models.Appointment, error) {
	day := date.Format(models.DateLayout)
	if professionalID == 0 {
		return db.queryAppointments(ctx, appointmentSelect+`
              WHERE a.date = ? ORDER BY a.professional_id ASC, a.start_time ASC`, day)
	}
	return db.queryAppointments(ctx, appointmentSelect+`
              WHERE a.date = ? AND a.professional_id = ? ORDER BY a.start_time ASC`, day, professionalID)
}

// ListElapsedActive returns live appointments whose start is not after now.
func (db *DB) ListElapsedActive(ctx context.Context, now time.Time) ([]*models.Appointment, error) {
	day, clock := db.split(now)
	return db.queryAppointments(ctx, appointmentSelect+`
              WHERE a.status IN `+activeStatuses+`
                AND (a.date < ? OR (a.date = ? AND a.start_time <= ?))
              ORDER BY a.date ASC, a.start_time ASC`,
		day, day, clock)
}

func (db *DB) split(now time.Time) (day, clock string) {
	local := now.In(db.loc)
	return local.Format(models.DateLayout), scheduling.TimeOfDay(local.Hour()*60 + local.Minute()).String()
}

func (db *DB) queryAppointments(ctx context.Context, query string, args ...any) ([]*models.Appointment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		appt, err := db.scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (db *DB) scanAppointment(r rowScanner) (*models.Appointment, error) {
	var (
		a                         models.Appointment
		dateStr, start, end, stat string
		cancelledAt               sql.NullTime
	)
	err := r.Scan(
		&a.ID, &a.UserID, &a.UserName, &a.ProfessionalID, &a.ProfessionalName,
		&a.ServiceID, &a.ServiceName, &dateStr, &start, &end, &stat,
		&a.Notes, &a.CreatedAt, &a.UpdatedAt, &cancelledAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}

	if a.Date, err = time.ParseInLocation(models.DateLayout, dateStr, db.loc); err != nil {
		return nil, fmt.Errorf("failed to parse appointment date %s: %w", dateStr, err)
	}
	if a.Start, err = scheduling.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if a.End, err = scheduling.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	if a.Status, err = scheduling.ParseStatus(stat); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		a.CancelledAt = &t
	}
	return &a, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"
)

const professionalColumns = `id, name, specialty, bio, work_start, work_end, rating, review_count, is_active, created_at, updated_at`

const serviceColumns = `id, name, description, duration_minutes, is_active, created_at`

// UpsertProfessional inserts the professional or updates the row with the same id.
// A zero id lets the database assign one.
func (db *DB) UpsertProfessional(ctx context.Context, p *models.Professional) error {
	if p == nil {
		return fmt.Errorf("professional is nil")
	}
	if _, err := p.WorkingWindow(); err != nil {
		return fmt.Errorf("professional %q: %w", p.Name, err)
	}

	now := time.Now()
	var id any
	if p.ID != 0 {
		id = p.ID
	}
	query := `INSERT INTO professionals (` + professionalColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                specialty = excluded.specialty,
                bio = excluded.bio,
                work_start = excluded.work_start,
                work_end = excluded.work_end,
                rating = excluded.rating,
                review_count = excluded.review_count,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`
	res, err := db.ExecContext(ctx, query,
		id, p.Name, p.Specialty, p.Bio, p.WorkStart.String(), p.WorkEnd.String(),
		p.Rating, p.ReviewCount, p.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert professional: %w", err)
	}
	if p.ID == 0 {
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	db.mu.Lock()
	db.professionals[p.ID] = *p
	db.mu.Unlock()
	return nil
}

func (db *DB) GetProfessional(ctx context.Context, id int64) (*models.Professional, error) {
	db.mu.RLock()
	cached, ok := db.professionals[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	row := db.QueryRowContext(ctx, `SELECT `+professionalColumns+` FROM professionals WHERE id = ?`, id)
	p, err := scanProfessional(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get professional: %w", err)
	}

	db.mu.Lock()
	db.professionals[p.ID] = *p
	db.mu.Unlock()
	return p, nil
}

// ListProfessionals returns active professionals, best rated first.
func (db *DB) ListProfessionals(ctx context.Context) ([]*models.Professional, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+professionalColumns+` FROM professionals
              WHERE is_active = 1 ORDER BY rating DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list professionals: %w", err)
	}
	defer rows.Close()

	var out []*models.Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan professional: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	if s == nil {
		return fmt.Errorf("service is nil")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("service %q: %w", s.Name, scheduling.ErrInvalidDuration)
	}

	now := time.Now()
	var id any
	if s.ID != 0 {
		id = s.ID
	}
	query := `INSERT INTO services (` + serviceColumns + `)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                description = excluded.description,
                duration_minutes = excluded.duration_minutes,
                is_active = excluded.is_active`
	res, err := db.ExecContext(ctx, query, id, s.Name, s.Description, s.DurationMinutes, s.IsActive, now)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	if s.ID == 0 {
		if s.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		s.CreatedAt = now
	}

	db.mu.Lock()
	db.services[s.ID] = *s
	db.mu.Unlock()
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	db.mu.RLock()
	cached, ok := db.services[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	db.mu.Lock()
	db.services[s.ID] = *s
	db.mu.Unlock()
	return s, nil
}

func (db *DB) ListServices(ctx context.Context) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SyncCatalog upserts the configured professionals and services in one transaction.
func (db *DB) SyncCatalog(ctx context.Context, professionals []models.Professional, services []models.Service) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for i := range professionals {
		p := &professionals[i]
		if p.ID <= 0 {
			return fmt.Errorf("professional %q: catalog entries need an explicit id", p.Name)
		}
		if _, err := p.WorkingWindow(); err != nil {
			return fmt.Errorf("professional %q: %w", p.Name, err)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO professionals (`+professionalColumns+`)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, specialty = excluded.specialty, bio = excluded.bio,
                work_start = excluded.work_start, work_end = excluded.work_end,
                rating = excluded.rating, review_count = excluded.review_count,
                is_active = excluded.is_active, updated_at = excluded.updated_at`,
			p.ID, p.Name, p.Specialty, p.Bio, p.WorkStart.String(), p.WorkEnd.String(),
			p.Rating, p.ReviewCount, p.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to sync professional %d: %w", p.ID, err)
		}
	}
	for i := range services {
		s := &services[i]
		if s.ID <= 0 {
			return fmt.Errorf("service %q: catalog entries need an explicit id", s.Name)
		}
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("service %q: %w", s.Name, scheduling.ErrInvalidDuration)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO services (`+serviceColumns+`)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, description = excluded.description,
                duration_minutes = excluded.duration_minutes, is_active = excluded.is_active`,
			s.ID, s.Name, s.Description, s.DurationMinutes, s.IsActive, now,
		)
		if err != nil {
			return fmt.Errorf("failed to sync service %d: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}

	db.mu.Lock()
	db.professionals = make(map[int64]models.Professional, len(professionals))
	db.services = make(map[int64]models.Service, len(services))
	db.mu.Unlock()

	db.logger.Info().
		Int("professionals", len(professionals)).
		Int("services", len(services)).
		Msg("Catalog synchronized")
	return nil
}

func scanProfessional(r rowScanner) (*models.Professional, error) {
	var (
		p          models.Professional
		bio        sql.NullString
		start, end string
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Specialty, &bio, &start, &end,
		&p.Rating, &p.ReviewCount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Bio = bio.String

	var err error
	if p.WorkStart, err = scheduling.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("professional %d work_start: %w", p.ID, err)
	}
	if p.WorkEnd, err = scheduling.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("professional %d work_end: %w", p.ID, err)
	}
	return &p, nil
}

func scanService(r rowScanner) (*models.Service, error) {
	var (
		s    models.Service
		desc sql.NullString
	)
	if err := r.Scan(&s.ID, &s.Name, &desc, &s.DurationMinutes, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Description = desc.String
	return &s, nil
}

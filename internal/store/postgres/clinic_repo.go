package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
)

// Settings

func (s *Store) Settings(ctx context.Context) (domain.Settings, error) {
	return loadSettings(ctx, s.db)
}

// UpdateSettings is a compare-and-swap on the version column.
func (s *Store) UpdateSettings(ctx context.Context, in domain.Settings, expectedVersion int64) (domain.Settings, error) {
	m := in
	m.ID = domain.DefaultSettings().ID
	m.Version = expectedVersion + 1
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().
		Model(&m).
		Column("version", "number_of_rooms", "default_duration_minutes", "display_timezone", "display_days_of_week", "updated_at").
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := expectAffected(res); errors.Is(err, store.ErrNotFound) {
		return domain.Settings{}, store.ErrVersionConflict
	} else if err != nil {
		return domain.Settings{}, err
	}
	return m, nil
}

func loadSettings(ctx context.Context, db bun.IDB) (domain.Settings, error) {
	var m domain.Settings
	err := db.NewSelect().
		Model(&m).
		Where("cs.id = ?", domain.DefaultSettings().ID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Settings{}, notFound(err)
	}
	return m, nil
}

// Doctors

func (s *Store) CreateDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error) {
	m := d
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeUniqueViolation {
			return domain.Doctor{}, store.ErrConflict
		}
		return domain.Doctor{}, err
	}
	return m, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error) {
	m := d
	res, err := s.db.NewUpdate().
		Model(&m).
		Column("name", "honorific", "email", "min_duration_minutes", "default_duration_minutes", "max_duration_minutes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Doctor{}, err
	}
	if err := expectAffected(res); err != nil {
		return domain.Doctor{}, err
	}
	return getDoctor(ctx, s.db, d.ID)
}

func (s *Store) GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error) {
	return getDoctor(ctx, s.db, id)
}

func (s *Store) ListDoctors(ctx context.Context) ([]domain.Doctor, error) {
	rows := make([]domain.Doctor, 0)
	if err := s.db.NewSelect().Model(&rows).OrderExpr("d.name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteDoctor removes the doctor and their schedule entries. Reservations
// reference doctors with ON DELETE RESTRICT, so a doctor with bookings is a
// conflict.
func (s *Store) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.Doctor)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeForeignKeyViolation {
			return store.ErrConflict
		}
		return err
	}
	return expectAffected(res)
}

func getDoctor(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Doctor, error) {
	var d domain.Doctor
	err := db.NewSelect().
		Model(&d).
		Where("d.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Doctor{}, notFound(err)
	}
	return d, nil
}

// Nurses

func (s *Store) CreateNurse(ctx context.Context, n domain.Nurse) (domain.Nurse, error) {
	m := n
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Nurse{}, err
	}
	return m, nil
}

func (s *Store) GetNurse(ctx context.Context, id uuid.UUID) (domain.Nurse, error) {
	var n domain.Nurse
	err := s.db.NewSelect().
		Model(&n).
		Where("n.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Nurse{}, notFound(err)
	}
	return n, nil
}

func (s *Store) ListNurses(ctx context.Context) ([]domain.Nurse, error) {
	rows := make([]domain.Nurse, 0)
	if err := s.db.NewSelect().Model(&rows).OrderExpr("n.name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteNurse clears the nurse from reservations through ON DELETE SET NULL.
func (s *Store) DeleteNurse(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.Nurse)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Schedules

// ReplaceSchedule upserts on (doctor_id, date) so the stored periods are
// always the last complete set written.
func (s *Store) ReplaceSchedule(ctx context.Context, entry domain.ScheduleEntry) (domain.ScheduleEntry, error) {
	m := entry
	if m.Periods == nil {
		m.Periods = []domain.TimeWindow{}
	}
	_, err := s.db.NewInsert().
		Model(&m).
		On("CONFLICT (doctor_id, date) DO UPDATE").
		Set("time_periods = EXCLUDED.time_periods").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeForeignKeyViolation {
			return domain.ScheduleEntry{}, store.ErrNotFound
		}
		return domain.ScheduleEntry{}, err
	}
	return m, nil
}

func (s *Store) GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (domain.ScheduleEntry, error) {
	return getSchedule(ctx, s.db, doctorID, date)
}

func (s *Store) ListSchedules(ctx context.Context, doctorID *uuid.UUID, from, to time.Time) ([]domain.ScheduleEntry, error) {
	rows := make([]domain.ScheduleEntry, 0)
	q := s.db.NewSelect().
		Model(&rows).
		Where("se.date >= ?::date", dateParam(from)).
		Where("se.date <= ?::date", dateParam(to))
	if doctorID != nil {
		q = q.Where("se.doctor_id = ?", *doctorID)
	}
	if err := q.OrderExpr("se.date ASC, se.doctor_id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.ScheduleEntry)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func getSchedule(ctx context.Context, db bun.IDB, doctorID uuid.UUID, date time.Time) (domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	err := db.NewSelect().
		Model(&e).
		Where("se.doctor_id = ?", doctorID).
		Where("se.date = ?::date", dateParam(date)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.ScheduleEntry{}, notFound(err)
	}
	return e, nil
}

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

// InBookingTransaction serializes booking writes that share lockKey with a
// transaction-scoped advisory lock. The reservations_no_overlap exclusion
// constraint still rejects a double booking that slips past the lock.
func (s *Store) InBookingTransaction(ctx context.Context, lockKey string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := advisoryLock(ctx, tx, lockKey); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func advisoryLock(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func (s *Store) ListReservations(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Reservation, error) {
	return listReservations(ctx, s.db, store.ReservationFilter{WindowStart: &windowStart, WindowEnd: &windowEnd})
}

func (s *Store) SchedulePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error) {
	return schedulePeriods(ctx, s.db, doctorID, date)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return getReservation(ctx, s.db, id)
}

func (s *Store) List(ctx context.Context, filter store.ReservationFilter) ([]domain.Reservation, error) {
	return listReservations(ctx, s.db, filter)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.Reservation)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

type bookingTx struct {
	tx bun.Tx
}

func (t bookingTx) Settings(ctx context.Context) (domain.Settings, error) {
	return loadSettings(ctx, t.tx)
}

func (t bookingTx) SchedulePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error) {
	return schedulePeriods(ctx, t.tx, doctorID, date)
}

func (t bookingTx) ListReservations(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Reservation, error) {
	return listReservations(ctx, t.tx, store.ReservationFilter{WindowStart: &windowStart, WindowEnd: &windowEnd})
}

func (t bookingTx) GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error) {
	return getDoctor(ctx, t.tx, id)
}

func (t bookingTx) GetReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return getReservation(ctx, t.tx, id)
}

// CreateReservation inserts r. A caller-chosen id that already exists is an
// idempotent replay: the stored row is returned when it describes the same
// booking and ErrIdempotencyConflict otherwise. The lookup runs before the
// insert because a failed statement aborts the transaction.
func (t bookingTx) CreateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	if r.ID != uuid.Nil {
		existing, err := getReservation(ctx, t.tx, r.ID)
		switch {
		case err == nil:
			if !sameBooking(existing, r) {
				return domain.Reservation{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Reservation{}, err
		}
	}

	m := r
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Reservation{}, mapReservationError(err)
	}
	return m, nil
}

func (t bookingTx) UpdateReservationTimes(ctx context.Context, id uuid.UUID, start, end time.Time) (domain.Reservation, error) {
	m := domain.Reservation{ID: id, StartTime: start, EndTime: end}
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("start_time", "end_time", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Reservation{}, mapReservationError(err)
	}
	if err := expectAffected(res); err != nil {
		return domain.Reservation{}, err
	}
	return getReservation(ctx, t.tx, id)
}

// mapReservationError turns constraint violations on the reservations table
// into store errors.
func mapReservationError(err error) error {
	pgErr, ok := pgError(err)
	if !ok {
		return err
	}
	switch {
	case pgErr.Code == codeExclusionViolation && pgErr.ConstraintName == constraintNoOverlap:
		return store.ErrConflict
	case pgErr.Code == codeUniqueViolation:
		return store.ErrIdempotencyConflict
	case pgErr.Code == codeForeignKeyViolation:
		return store.ErrNotFound
	}
	return err
}

func sameBooking(a, b domain.Reservation) bool {
	return a.DoctorID == b.DoctorID &&
		a.EmployeeID == b.EmployeeID &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

func getReservation(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Reservation, error) {
	var r domain.Reservation
	err := db.NewSelect().
		Model(&r).
		Where("r.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Reservation{}, notFound(err)
	}
	return r, nil
}

func listReservations(ctx context.Context, db bun.IDB, filter store.ReservationFilter) ([]domain.Reservation, error) {
	rows := make([]domain.Reservation, 0)
	q := db.NewSelect().Model(&rows)
	if filter.DoctorID != nil {
		q = q.Where("r.doctor_id = ?", *filter.DoctorID)
	}
	if filter.EmployeeID != "" {
		q = q.Where("r.employee_id = ?", filter.EmployeeID)
	}
	if filter.WindowEnd != nil {
		q = q.Where("r.start_time < ?", *filter.WindowEnd)
	}
	if filter.WindowStart != nil {
		q = q.Where("r.end_time > ?", *filter.WindowStart)
	}
	if err := q.OrderExpr("r.start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func schedulePeriods(ctx context.Context, db bun.IDB, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error) {
	e, err := getSchedule(ctx, db, doctorID, date)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Periods, nil
}

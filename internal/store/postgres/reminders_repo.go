package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
)

// Policies

func (s *Store) CreatePolicy(ctx context.Context, p domain.ReminderPolicy) (domain.ReminderPolicy, error) {
	m := p
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeForeignKeyViolation {
			return domain.ReminderPolicy{}, store.ErrNotFound
		}
		return domain.ReminderPolicy{}, err
	}
	return m, nil
}

func (s *Store) ListPolicies(ctx context.Context, activeOnly bool) ([]domain.ReminderPolicy, error) {
	rows := make([]domain.ReminderPolicy, 0)
	q := s.db.NewSelect().Model(&rows)
	if activeOnly {
		q = q.Where("rp.active")
	}
	if err := q.OrderExpr("rp.created_at ASC, rp.id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) SetPolicyActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.db.NewUpdate().
		Model((*domain.ReminderPolicy)(nil)).
		Set("active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.ReminderPolicy)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Dispatch

func (s *Store) ListUnsent(ctx context.Context, policyID uuid.UUID, dayStart, dayEnd time.Time) ([]domain.ReminderCandidate, error) {
	var rows []domain.Reservation
	err := s.db.NewSelect().
		Model(&rows).
		Where("r.start_time >= ?", dayStart).
		Where("r.start_time < ?", dayEnd).
		Where("NOT EXISTS (SELECT 1 FROM reminder_sends AS rs WHERE rs.reservation_id = r.id AND rs.policy_id = ?)", policyID).
		OrderExpr("r.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	doctorIDs := make([]uuid.UUID, 0, len(rows))
	var nurseIDs []uuid.UUID
	for _, r := range rows {
		doctorIDs = append(doctorIDs, r.DoctorID)
		if r.NurseID != nil {
			nurseIDs = append(nurseIDs, *r.NurseID)
		}
	}

	var doctors []domain.Doctor
	if err := s.db.NewSelect().Model(&doctors).Where("d.id IN (?)", bun.In(doctorIDs)).Scan(ctx); err != nil {
		return nil, err
	}
	doctorNames := make(map[uuid.UUID]string, len(doctors))
	for _, d := range doctors {
		doctorNames[d.ID] = d.DisplayName()
	}

	nurseNames := make(map[uuid.UUID]string)
	if len(nurseIDs) > 0 {
		var nurses []domain.Nurse
		if err := s.db.NewSelect().Model(&nurses).Where("n.id IN (?)", bun.In(nurseIDs)).Scan(ctx); err != nil {
			return nil, err
		}
		for _, n := range nurses {
			nurseNames[n.ID] = n.Name
		}
	}

	out := make([]domain.ReminderCandidate, 0, len(rows))
	for _, r := range rows {
		c := domain.ReminderCandidate{Reservation: r, DoctorName: doctorNames[r.DoctorID]}
		if r.NurseID != nil {
			c.NurseName = nurseNames[*r.NurseID]
		}
		out = append(out, c)
	}
	return out, nil
}

// SendOnce holds a transaction-scoped try-lock for the pair while send runs.
// The record is inserted in the same transaction only after send succeeds, so
// a failed send leaves the pair eligible for the next tick. A commit failure
// after a successful send can cause one repeat delivery.
func (s *Store) SendOnce(ctx context.Context, reservationID, policyID uuid.UUID, send func(ctx context.Context) error) (bool, error) {
	var sent bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var locked bool
		if err := tx.NewRaw("SELECT pg_try_advisory_xact_lock(hashtext(?))", sendLockKey(reservationID, policyID)).Scan(ctx, &locked); err != nil {
			return err
		}
		if !locked {
			return nil
		}

		exists, err := tx.NewSelect().
			Model((*domain.ReminderSendRecord)(nil)).
			Where("rs.reservation_id = ?", reservationID).
			Where("rs.policy_id = ?", policyID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if err := send(ctx); err != nil {
			return err
		}

		rec := domain.ReminderSendRecord{
			ReservationID: reservationID,
			PolicyID:      policyID,
			SentAt:        time.Now().UTC(),
		}
		res, err := tx.NewInsert().
			Model(&rec).
			On("CONFLICT (reservation_id, policy_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			if pgErr, ok := pgError(err); ok && pgErr.Code == codeForeignKeyViolation {
				return store.ErrNotFound
			}
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		sent = affected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return sent, nil
}

func sendLockKey(reservationID, policyID uuid.UUID) string {
	return "reminder:" + reservationID.String() + ":" + policyID.String()
}

func (s *Store) ListSendRecords(ctx context.Context, reservationID uuid.UUID) ([]domain.ReminderSendRecord, error) {
	rows := make([]domain.ReminderSendRecord, 0)
	err := s.db.NewSelect().
		Model(&rows).
		Where("rs.reservation_id = ?", reservationID).
		OrderExpr("rs.policy_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Templates

func (s *Store) CreateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error) {
	m := t
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.EmailTemplate{}, mapTemplateError(err)
	}
	return m, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error) {
	m := t
	res, err := s.db.NewUpdate().
		Model(&m).
		Column("name", "subject", "body", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.EmailTemplate{}, mapTemplateError(err)
	}
	if err := expectAffected(res); err != nil {
		return domain.EmailTemplate{}, err
	}
	return s.GetTemplate(ctx, t.ID)
}

func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	err := s.db.NewSelect().
		Model(&t).
		Where("et.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.EmailTemplate{}, notFound(err)
	}
	return t, nil
}

// GetTemplateByName matches case-insensitively, like the unique index on lower(name).
func (s *Store) GetTemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	err := s.db.NewSelect().
		Model(&t).
		Where("lower(et.name) = lower(?)", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.EmailTemplate{}, notFound(err)
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows := make([]domain.EmailTemplate, 0)
	if err := s.db.NewSelect().Model(&rows).OrderExpr("et.name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*domain.EmailTemplate)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func mapTemplateError(err error) error {
	if pgErr, ok := pgError(err); ok && pgErr.Code == codeUniqueViolation {
		return store.ErrConflict
	}
	return err
}

var (
	_ store.ReservationRepository = (*Store)(nil)
	_ store.DoctorRepository      = (*Store)(nil)
	_ store.NurseRepository       = (*Store)(nil)
	_ store.SettingsRepository    = (*Store)(nil)
	_ store.ScheduleRepository    = (*Store)(nil)
	_ store.ReminderRepository    = (*Store)(nil)
	_ store.TemplateRepository    = (*Store)(nil)
)

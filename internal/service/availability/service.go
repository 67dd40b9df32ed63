package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/scheduling"
	"clinic/backend/internal/store"
)

// maxListDays bounds ListEntries so one call cannot scan the whole table.
const maxListDays = 92

type Repository interface {
	store.ScheduleRepository
	store.SettingsRepository
	GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With(slog.String("component", "availability"))}
}

// ReplacePeriods stores periods as the doctor's complete availability for
// date. Validation happens before any write, so a rejected set leaves the
// previously stored periods in place. An empty set marks the doctor
// unavailable that day.
func (s *Service) ReplacePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time, periods []domain.TimeWindow) (domain.ScheduleEntry, error) {
	if doctorID == uuid.Nil {
		return domain.ScheduleEntry{}, domain.NewValidationError("doctor_id is required")
	}
	if date.IsZero() {
		return domain.ScheduleEntry{}, domain.NewValidationError("date is required")
	}
	sorted, err := domain.ValidatePeriods(periods)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return domain.ScheduleEntry{}, fmt.Errorf("doctor %s: %w", doctorID, err)
	}

	entry, err := s.repo.ReplaceSchedule(ctx, domain.ScheduleEntry{
		DoctorID: doctorID,
		Date:     calendarDate(date),
		Periods:  sorted,
	})
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	s.log.InfoContext(ctx, "periods replaced",
		slog.String("doctor_id", doctorID.String()),
		slog.String("date", entry.DateString()),
		slog.Int("periods", len(sorted)),
	)
	return entry, nil
}

// PeriodsFor returns the doctor's periods on date in chronological order, or
// an empty slice when none are declared.
func (s *Service) PeriodsFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error) {
	if doctorID == uuid.Nil {
		return nil, domain.NewValidationError("doctor_id is required")
	}
	entry, err := s.repo.GetSchedule(ctx, doctorID, calendarDate(date))
	if errors.Is(err, store.ErrNotFound) {
		return []domain.TimeWindow{}, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.ValidatePeriods(entry.Periods)
}

func (s *Service) ListEntries(ctx context.Context, doctorID *uuid.UUID, from, to time.Time) ([]domain.ScheduleEntry, error) {
	from, to = calendarDate(from), calendarDate(to)
	if to.Before(from) {
		return nil, domain.NewValidationError("to must not be before from")
	}
	if to.Sub(from) > maxListDays*24*time.Hour {
		return nil, domain.NewValidationError(fmt.Sprintf("date range must be at most %d days", maxListDays))
	}
	return s.repo.ListSchedules(ctx, doctorID, from, to)
}

// DeleteEntry removes a schedule entry. Reservations made against it stay.
func (s *Service) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("schedule_id is required")
	}
	if err := s.repo.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "schedule entry deleted", slog.String("schedule_id", id.String()))
	return nil
}

// RoomWarning flags a proposed period during which other doctors' declared
// periods already fill every room.
type RoomWarning struct {
	Period       domain.TimeWindow
	Concurrent   int
	Rooms        int
	OtherDoctors []uuid.UUID
}

// RoomWarnings is the advisory capacity check used while a schedule is being
// authored. It counts declared periods, not reservations, and never blocks a
// write.
func (s *Service) RoomWarnings(ctx context.Context, doctorID uuid.UUID, date time.Time, periods []domain.TimeWindow) ([]RoomWarning, error) {
	sorted, err := domain.ValidatePeriods(periods)
	if err != nil {
		return nil, err
	}
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}
	date = calendarDate(date)
	entries, err := s.repo.ListSchedules(ctx, nil, date, date)
	if err != nil {
		return nil, err
	}
	occupancy := scheduling.OccupancyFromSchedules(entries, loc)

	var out []RoomWarning
	for _, p := range sorted {
		span := p.Span(date, loc)
		if !scheduling.RoomsExhausted(doctorID, span, occupancy, settings.NumberOfRooms) {
			continue
		}
		out = append(out, RoomWarning{
			Period:       p,
			Concurrent:   scheduling.ConcurrentDoctorCount(span, occupancy, doctorID),
			Rooms:        settings.NumberOfRooms,
			OtherDoctors: overlappingDoctors(span, occupancy, doctorID),
		})
	}
	return out, nil
}

func overlappingDoctors(span domain.Interval, occupancy []scheduling.Occupancy, exclude uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, o := range occupancy {
		if o.DoctorID == exclude || !o.Span.Overlaps(span) {
			continue
		}
		if _, ok := seen[o.DoctorID]; ok {
			continue
		}
		seen[o.DoctorID] = struct{}{}
		out = append(out, o.DoctorID)
	}
	return out
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

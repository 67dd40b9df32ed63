package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/directory"
	"clinic/backend/internal/domain"
	"clinic/backend/internal/metrics"
	"clinic/backend/internal/scheduling"
	"clinic/backend/internal/store"
)

const maxLockAttempts = 3

// errLockMoved means the calendar date a decision locks on changed between
// choosing the lock and reading state under it.
var errLockMoved = errors.New("booking lock date moved")

type Service struct {
	repo        store.ReservationRepository
	directory   directory.Resolver
	metrics     *metrics.Metrics
	log         *slog.Logger
	stepMinutes int
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithStepMinutes(step int) Option {
	return func(s *Service) {
		if step > 0 {
			s.stepMinutes = step
		}
	}
}

func NewService(repo store.ReservationRepository, dir directory.Resolver, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		directory:   dir,
		log:         slog.Default(),
		stepMinutes: scheduling.DefaultStepMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "reservations"))
	return s
}

type BookInput struct {
	DoctorID       uuid.UUID
	EmployeeNumber string
	NurseID        *uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	IdempotencyKey string
}

// Book resolves the employee, then decides and persists the reservation under
// the booking lock for its calendar date.
func (s *Service) Book(ctx context.Context, in BookInput) (res domain.Reservation, err error) {
	defer func() { s.observe(ctx, "book", in.DoctorID, err) }()

	if in.DoctorID == uuid.Nil {
		return domain.Reservation{}, domain.NewValidationError("doctor_id is required")
	}
	number := strings.TrimSpace(in.EmployeeNumber)
	if number == "" {
		return domain.Reservation{}, domain.NewValidationError("employee_number is required")
	}
	start, end, err := normalizeSpan(in.StartTime, in.EndTime)
	if err != nil {
		return domain.Reservation{}, err
	}

	employee, err := s.directory.ResolveEmployee(ctx, number)
	if errors.Is(err, directory.ErrNotFound) {
		return domain.Reservation{}, domain.ErrEmployeeNotFound
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("resolve employee: %w", err)
	}

	candidate := domain.Reservation{
		DoctorID:       in.DoctorID,
		EmployeeID:     employee.ID,
		EmployeeNumber: number,
		EmployeeName:   employee.Name,
		EmployeeEmail:  employee.Email,
		NurseID:        in.NurseID,
		StartTime:      start,
		EndTime:        end,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Reservation{}, domain.NewValidationError("idempotency_key too long")
		}
		candidate.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("clinic:book_reservation:"+number+":"+key))
	}

	err = s.withBookingLock(ctx, start, func(ctx context.Context, tx store.BookingTx, settings domain.Settings, loc *time.Location) error {
		if _, err := tx.GetDoctor(ctx, in.DoctorID); err != nil {
			return fmt.Errorf("doctor %s: %w", in.DoctorID, err)
		}

		if candidate.ID != uuid.Nil {
			existing, err := tx.GetReservation(ctx, candidate.ID)
			switch {
			case err == nil:
				if existing.DoctorID != candidate.DoctorID || !existing.StartTime.Equal(start) || !existing.EndTime.Equal(end) {
					return store.ErrIdempotencyConflict
				}
				res = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		snap, err := loadSnapshot(ctx, tx, in.DoctorID, start, end, settings, loc)
		if err != nil {
			return err
		}
		c := scheduling.Candidate{DoctorID: in.DoctorID, StartTime: start, EndTime: end}
		if err := scheduling.Check(c, snap, scheduling.CheckOptions{}); err != nil {
			return err
		}

		created, err := tx.CreateReservation(ctx, candidate)
		if err != nil {
			return mapWriteError(err)
		}
		res = created
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

type UpdateTimesInput struct {
	ReservationID uuid.UUID
	StartTime     *time.Time
	EndTime       *time.Time
}

// UpdateTimes is the trusted update path: it applies the supplied fields and
// only checks that the reservation still starts before it ends on the same
// display date. Schedule and room capacity are not consulted; the per-doctor
// overlap constraint of the store still applies.
func (s *Service) UpdateTimes(ctx context.Context, in UpdateTimesInput) (domain.Reservation, error) {
	return s.update(ctx, in, false)
}

// Reschedule is the validated update path: the new span runs through the same
// double-booking, schedule and capacity checks as Book, ignoring the
// reservation being moved.
func (s *Service) Reschedule(ctx context.Context, in UpdateTimesInput) (domain.Reservation, error) {
	return s.update(ctx, in, true)
}

func (s *Service) update(ctx context.Context, in UpdateTimesInput, validate bool) (res domain.Reservation, err error) {
	var doctorID uuid.UUID
	if validate {
		defer func() { s.observe(ctx, "reschedule", doctorID, err) }()
	}

	if in.ReservationID == uuid.Nil {
		return domain.Reservation{}, domain.NewValidationError("reservation_id is required")
	}
	if in.StartTime == nil && in.EndTime == nil {
		return domain.Reservation{}, domain.NewValidationError("start_time or end_time is required")
	}

	current, err := s.repo.Get(ctx, in.ReservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	doctorID = current.DoctorID
	anchor, _ := applyTimes(current, in)

	err = s.withBookingLock(ctx, anchor, func(ctx context.Context, tx store.BookingTx, settings domain.Settings, loc *time.Location) error {
		existing, err := tx.GetReservation(ctx, in.ReservationID)
		if err != nil {
			return err
		}
		start, end := applyTimes(existing, in)
		if !start.Equal(anchor) {
			return errLockMoved
		}
		if _, _, err := domain.ProjectOntoDate(start, end, loc); err != nil {
			return err
		}

		if validate {
			snap, err := loadSnapshot(ctx, tx, existing.DoctorID, start, end, settings, loc)
			if err != nil {
				return err
			}
			c := scheduling.Candidate{DoctorID: existing.DoctorID, StartTime: start, EndTime: end}
			if err := scheduling.Check(c, snap, scheduling.CheckOptions{Ignore: existing.ID}); err != nil {
				return err
			}
		}

		updated, err := tx.UpdateReservationTimes(ctx, existing.ID, start, end)
		if err != nil {
			return mapWriteError(err)
		}
		res = updated
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func applyTimes(r domain.Reservation, in UpdateTimesInput) (time.Time, time.Time) {
	start, end := r.StartTime, r.EndTime
	if in.StartTime != nil {
		start = in.StartTime.UTC()
	}
	if in.EndTime != nil {
		end = in.EndTime.UTC()
	}
	return start, end
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	if id == uuid.Nil {
		return domain.Reservation{}, domain.NewValidationError("reservation_id is required")
	}
	return s.repo.Get(ctx, id)
}

type ListInput struct {
	DoctorID    *uuid.UUID
	EmployeeID  string
	WindowStart *time.Time
	WindowEnd   *time.Time
}

func (s *Service) List(ctx context.Context, in ListInput) ([]domain.Reservation, error) {
	filter := store.ReservationFilter{DoctorID: in.DoctorID, EmployeeID: strings.TrimSpace(in.EmployeeID)}
	if in.WindowStart != nil {
		ws := in.WindowStart.UTC()
		filter.WindowStart = &ws
	}
	if in.WindowEnd != nil {
		we := in.WindowEnd.UTC()
		filter.WindowEnd = &we
	}
	if filter.WindowStart != nil && filter.WindowEnd != nil && !filter.WindowEnd.After(*filter.WindowStart) {
		return nil, domain.NewValidationError("window_end must be after window_start")
	}
	return s.repo.List(ctx, filter)
}

// Cancel deletes a reservation together with its reminder send records.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("reservation_id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "reservation cancelled", slog.String("reservation_id", id.String()))
	return nil
}

type CandidatesInput struct {
	DoctorID        uuid.UUID
	Date            time.Time
	DurationMinutes int
	StepMinutes     int
}

// Candidates lists bookable start times for a doctor on a date. It reads
// without the booking lock; Book re-checks at commit.
func (s *Service) Candidates(ctx context.Context, in CandidatesInput) ([]time.Time, error) {
	if in.DoctorID == uuid.Nil {
		return nil, domain.NewValidationError("doctor_id is required")
	}
	if in.Date.IsZero() {
		return nil, domain.NewValidationError("date is required")
	}
	if in.DurationMinutes < 0 {
		return nil, domain.NewValidationError("duration_minutes must be positive")
	}
	date := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, time.UTC)

	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor %s: %w", in.DoctorID, err)
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = doctor.DefaultDurationMinutes
	}
	if duration == 0 {
		duration = settings.DefaultDurationMinutes
	}
	step := in.StepMinutes
	if step == 0 {
		step = s.stepMinutes
	}

	periods, err := s.repo.SchedulePeriods(ctx, in.DoctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load periods: %w", err)
	}
	day := domain.DayBounds(date, loc)
	existing, err := s.repo.ListReservations(ctx, day.Start, day.End)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	return scheduling.GenerateCandidates(
		scheduling.SlotQuery{DoctorID: in.DoctorID, Date: date, DurationMinutes: duration, StepMinutes: step},
		scheduling.Snapshot{Periods: periods, Reservations: existing, Rooms: settings.NumberOfRooms, Location: loc},
	)
}

// withBookingLock runs fn inside the booking transaction of the display-date
// that start falls on. Two overlapping reservations always share that date
// because a reservation may not cross midnight.
func (s *Service) withBookingLock(ctx context.Context, start time.Time, fn func(ctx context.Context, tx store.BookingTx, settings domain.Settings, loc *time.Location) error) error {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		settings, err := s.repo.Settings(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		loc, err := settings.Location()
		if err != nil {
			return err
		}
		key := LockKey(domain.DateOf(start, loc))

		err = s.repo.InBookingTransaction(ctx, key, func(ctx context.Context, tx store.BookingTx) error {
			current, err := tx.Settings(ctx)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			currentLoc, err := current.Location()
			if err != nil {
				return err
			}
			if LockKey(domain.DateOf(start, currentLoc)) != key {
				return errLockMoved
			}
			return fn(ctx, tx, current, currentLoc)
		})
		if errors.Is(err, errLockMoved) {
			continue
		}
		return err
	}
	return fmt.Errorf("booking lock for %s: %w", start.Format(time.RFC3339), errLockMoved)
}

func LockKey(date time.Time) string {
	return "booking:" + date.Format(domain.DateLayout)
}

func loadSnapshot(ctx context.Context, r store.BookingReader, doctorID uuid.UUID, start, end time.Time, settings domain.Settings, loc *time.Location) (scheduling.Snapshot, error) {
	date, _, err := domain.ProjectOntoDate(start, end, loc)
	if err != nil {
		return scheduling.Snapshot{}, err
	}
	periods, err := r.SchedulePeriods(ctx, doctorID, date)
	if err != nil {
		return scheduling.Snapshot{}, fmt.Errorf("load periods: %w", err)
	}
	day := domain.DayBounds(date, loc)
	existing, err := r.ListReservations(ctx, day.Start, day.End)
	if err != nil {
		return scheduling.Snapshot{}, fmt.Errorf("load reservations: %w", err)
	}
	return scheduling.Snapshot{
		Periods:      periods,
		Reservations: existing,
		Rooms:        settings.NumberOfRooms,
		Location:     loc,
	}, nil
}

func normalizeSpan(startTime, endTime time.Time) (time.Time, time.Time, error) {
	if startTime.IsZero() || endTime.IsZero() {
		return time.Time{}, time.Time{}, domain.NewValidationError("start_time and end_time are required")
	}
	start := startTime.UTC()
	end := endTime.UTC()
	if !start.Before(end) {
		return time.Time{}, time.Time{}, domain.NewValidationError("end_time must be after start_time")
	}
	if end.Sub(start) > 24*time.Hour {
		return time.Time{}, time.Time{}, domain.NewValidationError("duration too long")
	}
	return start, end, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return domain.ErrDoubleBooked
	}
	return err
}

func (s *Service) observe(ctx context.Context, op string, doctorID uuid.UUID, err error) {
	s.metrics.ObserveBooking(err)
	attrs := []any{slog.String("op", op), slog.String("doctor_id", doctorID.String())}
	switch metrics.BookingOutcome(err) {
	case metrics.OutcomeAccepted:
		s.log.InfoContext(ctx, "booking accepted", attrs...)
	case metrics.OutcomeInvalidInput:
		s.log.WarnContext(ctx, "booking rejected", append(attrs, slog.String("error", err.Error()))...)
	case metrics.OutcomeError:
		s.log.ErrorContext(ctx, "booking failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.log.InfoContext(ctx, "booking rejected", append(attrs, slog.String("reason", metrics.BookingOutcome(err)))...)
	}
}

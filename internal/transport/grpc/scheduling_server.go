package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/service/availability"
	"clinic/backend/internal/service/clinic"
	"clinic/backend/internal/service/reservations"
)

type reservationService interface {
	Book(ctx context.Context, in reservations.BookInput) (domain.Reservation, error)
	Reschedule(ctx context.Context, in reservations.UpdateTimesInput) (domain.Reservation, error)
	UpdateTimes(ctx context.Context, in reservations.UpdateTimesInput) (domain.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, in reservations.ListInput) ([]domain.Reservation, error)
	Candidates(ctx context.Context, in reservations.CandidatesInput) ([]time.Time, error)
}

type availabilityService interface {
	ReplacePeriods(ctx context.Context, doctorID uuid.UUID, date time.Time, periods []domain.TimeWindow) (domain.ScheduleEntry, error)
	PeriodsFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]domain.TimeWindow, error)
	RoomWarnings(ctx context.Context, doctorID uuid.UUID, date time.Time, periods []domain.TimeWindow) ([]availability.RoomWarning, error)
}

type settingsService interface {
	Settings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, in clinic.SettingsInput) (domain.Settings, error)
}

type SchedulingServer struct {
	reservations reservationService
	availability availabilityService
	settings     settingsService
	log          *slog.Logger
}

func NewSchedulingServer(res reservationService, avail availabilityService, settings settingsService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		reservations: res,
		availability: avail,
		settings:     settings,
		log:          log.With(slog.String("component", "grpc.scheduling")),
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func respond(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}

// BookReservation takes doctorId, employeeNumber, startTime, endTime and
// optional nurseId and idempotencyKey. The key may also arrive as the
// idempotency-key metadata header.
func (s *SchedulingServer) BookReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "BookReservation"))
	a := newArgs(req)

	in, err := bookInput(ctx, a)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}

	r, err := s.reservations.Book(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, log.With(slog.String("doctor_id", in.DoctorID.String())), err)
	}
	log.Info("reservation booked",
		slog.String("reservation_id", r.ID.String()),
		slog.String("doctor_id", r.DoctorID.String()),
		slog.Time("start_time", r.StartTime),
		slog.Time("end_time", r.EndTime),
	)
	return respond(map[string]any{"reservation": reservationFields(r)})
}

func bookInput(ctx context.Context, a args) (reservations.BookInput, error) {
	var in reservations.BookInput
	var err error
	if in.DoctorID, err = a.requiredUUID("doctorId"); err != nil {
		return in, err
	}
	if in.EmployeeNumber, err = a.str("employeeNumber"); err != nil {
		return in, err
	}
	if in.NurseID, err = a.optUUID("nurseId"); err != nil {
		return in, err
	}
	if in.StartTime, err = a.requiredTime("startTime"); err != nil {
		return in, err
	}
	if in.EndTime, err = a.requiredTime("endTime"); err != nil {
		return in, err
	}
	if in.IdempotencyKey, err = a.str("idempotencyKey"); err != nil {
		return in, err
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = idempotencyKey(ctx)
	}
	return in, nil
}

// RescheduleReservation moves a reservation and re-runs every booking check
// against the new times. Takes reservationId and startTime and/or endTime.
func (s *SchedulingServer) RescheduleReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.updateTimes(ctx, "RescheduleReservation", req, s.reservations.Reschedule)
}

// UpdateReservationTimes applies new times after checking only that the
// reservation still starts before it ends.
func (s *SchedulingServer) UpdateReservationTimes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.updateTimes(ctx, "UpdateReservationTimes", req, s.reservations.UpdateTimes)
}

func (s *SchedulingServer) updateTimes(ctx context.Context, rpc string, req *structpb.Struct, apply func(context.Context, reservations.UpdateTimesInput) (domain.Reservation, error)) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))
	a := newArgs(req)

	var in reservations.UpdateTimesInput
	var err error
	if in.ReservationID, err = a.requiredUUID("reservationId"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.StartTime, err = a.optTime("startTime"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.EndTime, err = a.optTime("endTime"); err != nil {
		return nil, toStatus(ctx, log, err)
	}

	r, err := apply(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, log.With(slog.String("reservation_id", in.ReservationID.String())), err)
	}
	log.Info("reservation times updated",
		slog.String("reservation_id", r.ID.String()),
		slog.Time("start_time", r.StartTime),
		slog.Time("end_time", r.EndTime),
	)
	return respond(map[string]any{"reservation": reservationFields(r)})
}

func (s *SchedulingServer) CancelReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CancelReservation"))
	id, err := newArgs(req).requiredUUID("reservationId")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if err := s.reservations.Cancel(ctx, id); err != nil {
		return nil, toStatus(ctx, log.With(slog.String("reservation_id", id.String())), err)
	}
	return respond(map[string]any{})
}

// ListReservations filters by any of doctorId, employeeId, windowStart and windowEnd.
func (s *SchedulingServer) ListReservations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListReservations"))
	a := newArgs(req)

	var in reservations.ListInput
	var err error
	if in.DoctorID, err = a.optUUID("doctorId"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.EmployeeID, err = a.str("employeeId"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.WindowStart, err = a.optTime("windowStart"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.WindowEnd, err = a.optTime("windowEnd"); err != nil {
		return nil, toStatus(ctx, log, err)
	}

	rows, err := s.reservations.List(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, reservationFields(r))
	}
	log.Debug("reservations listed", slog.Int("count", len(out)))
	return respond(map[string]any{"reservations": out})
}

// GenerateCandidates takes doctorId, date and optional durationMinutes and
// stepMinutes, and returns bookable start times.
func (s *SchedulingServer) GenerateCandidates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GenerateCandidates"))
	a := newArgs(req)

	var in reservations.CandidatesInput
	var err error
	if in.DoctorID, err = a.requiredUUID("doctorId"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.Date, err = a.date("date"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	duration, err := a.optInt("durationMinutes")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if duration != nil {
		in.DurationMinutes = *duration
	}
	step, err := a.optInt("stepMinutes")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if step != nil {
		in.StepMinutes = *step
	}

	slots, err := s.reservations.Candidates(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	out := make([]any, 0, len(slots))
	for _, t := range slots {
		out = append(out, formatTime(t))
	}
	return respond(map[string]any{"candidates": out})
}

// ReplacePeriods stores timePeriods as the doctor's whole schedule for date.
// The response carries advisory roomWarnings; they never block the write.
func (s *SchedulingServer) ReplacePeriods(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ReplacePeriods"))
	a := newArgs(req)

	doctorID, err := a.requiredUUID("doctorId")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	date, err := a.date("date")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	periods, err := a.periods("timePeriods")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}

	log = log.With(slog.String("doctor_id", doctorID.String()), slog.String("date", date.Format(domain.DateLayout)))
	entry, err := s.availability.ReplacePeriods(ctx, doctorID, date, periods)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}

	warnings, err := s.availability.RoomWarnings(ctx, doctorID, date, entry.Periods)
	if err != nil {
		log.Warn("room warnings unavailable", slog.String("error", err.Error()))
		warnings = nil
	}
	return respond(map[string]any{
		"entry":        scheduleEntryFields(entry),
		"roomWarnings": roomWarningFields(warnings),
	})
}

func (s *SchedulingServer) ListPeriods(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListPeriods"))
	a := newArgs(req)

	doctorID, err := a.requiredUUID("doctorId")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	date, err := a.date("date")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	periods, err := s.availability.PeriodsFor(ctx, doctorID, date)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	return respond(map[string]any{"timePeriods": periodsFields(periods)})
}

func (s *SchedulingServer) GetSettings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetSettings"))
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	return respond(map[string]any{"settings": settingsFields(settings)})
}

// UpdateSettings requires expectedVersion and changes any of numberOfRooms,
// defaultDurationMinutes, displayTimezone and displayDaysOfWeek.
func (s *SchedulingServer) UpdateSettings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateSettings"))
	a := newArgs(req)

	var in clinic.SettingsInput
	version, err := a.optInt("expectedVersion")
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if version != nil {
		in.ExpectedVersion = int64(*version)
	}
	if in.NumberOfRooms, err = a.optInt("numberOfRooms"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if in.DefaultDurationMinutes, err = a.optInt("defaultDurationMinutes"); err != nil {
		return nil, toStatus(ctx, log, err)
	}
	if _, ok := a.value("displayTimezone"); ok {
		zone, err := a.str("displayTimezone")
		if err != nil {
			return nil, toStatus(ctx, log, err)
		}
		in.DisplayTimezone = &zone
	}
	if in.DisplayDaysOfWeek, err = a.days("displayDaysOfWeek"); err != nil {
		return nil, toStatus(ctx, log, err)
	}

	settings, err := s.settings.UpdateSettings(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, log, err)
	}
	return respond(map[string]any{"settings": settingsFields(settings)})
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

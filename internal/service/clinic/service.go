package clinic

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
)

const (
	defaultMinDurationMinutes = 15
	defaultMaxDurationMinutes = 60
)

type Repository interface {
	store.DoctorRepository
	store.NurseRepository
	store.SettingsRepository
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With(slog.String("component", "clinic"))}
}

type DoctorInput struct {
	Name                   string
	Honorific              string
	Email                  string
	MinDurationMinutes     int
	DefaultDurationMinutes int
	MaxDurationMinutes     int
}

// CreateDoctor fills unset duration bounds from clinic defaults and enforces
// min <= default <= max.
func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (domain.Doctor, error) {
	d, err := s.doctorFromInput(ctx, in)
	if err != nil {
		return domain.Doctor{}, err
	}
	created, err := s.repo.CreateDoctor(ctx, d)
	if err != nil {
		return domain.Doctor{}, err
	}
	s.log.InfoContext(ctx, "doctor created", slog.String("doctor_id", created.ID.String()))
	return created, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (domain.Doctor, error) {
	if id == uuid.Nil {
		return domain.Doctor{}, domain.NewValidationError("doctor_id is required")
	}
	d, err := s.doctorFromInput(ctx, in)
	if err != nil {
		return domain.Doctor{}, err
	}
	d.ID = id
	return s.repo.UpdateDoctor(ctx, d)
}

func (s *Service) doctorFromInput(ctx context.Context, in DoctorInput) (domain.Doctor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Doctor{}, domain.NewValidationError("name is required")
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.Doctor{}, domain.NewValidationError("invalid email")
		}
	}

	d := domain.Doctor{
		Name:                   name,
		Honorific:              strings.TrimSpace(in.Honorific),
		Email:                  email,
		MinDurationMinutes:     in.MinDurationMinutes,
		DefaultDurationMinutes: in.DefaultDurationMinutes,
		MaxDurationMinutes:     in.MaxDurationMinutes,
	}
	if d.MinDurationMinutes == 0 {
		d.MinDurationMinutes = defaultMinDurationMinutes
	}
	if d.DefaultDurationMinutes == 0 {
		settings, err := s.repo.Settings(ctx)
		if err != nil {
			return domain.Doctor{}, fmt.Errorf("load settings: %w", err)
		}
		d.DefaultDurationMinutes = settings.DefaultDurationMinutes
	}
	if d.MaxDurationMinutes == 0 {
		d.MaxDurationMinutes = max(defaultMaxDurationMinutes, d.DefaultDurationMinutes)
	}
	if err := d.ValidateDurations(); err != nil {
		return domain.Doctor{}, err
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error) {
	if id == uuid.Nil {
		return domain.Doctor{}, domain.NewValidationError("doctor_id is required")
	}
	return s.repo.GetDoctor(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]domain.Doctor, error) {
	return s.repo.ListDoctors(ctx)
}

// DeleteDoctor refuses with store.ErrConflict while the doctor still has
// reservations.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("doctor_id is required")
	}
	return s.repo.DeleteDoctor(ctx, id)
}

type NurseInput struct {
	EmployeeNumber string
	Name           string
	Title          string
	Email          string
}

func (s *Service) CreateNurse(ctx context.Context, in NurseInput) (domain.Nurse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Nurse{}, domain.NewValidationError("name is required")
	}
	return s.repo.CreateNurse(ctx, domain.Nurse{
		EmployeeNumber: strings.TrimSpace(in.EmployeeNumber),
		Name:           name,
		Title:          strings.TrimSpace(in.Title),
		Email:          strings.TrimSpace(in.Email),
	})
}

func (s *Service) GetNurse(ctx context.Context, id uuid.UUID) (domain.Nurse, error) {
	if id == uuid.Nil {
		return domain.Nurse{}, domain.NewValidationError("nurse_id is required")
	}
	return s.repo.GetNurse(ctx, id)
}

func (s *Service) ListNurses(ctx context.Context) ([]domain.Nurse, error) {
	return s.repo.ListNurses(ctx)
}

// DeleteNurse removes a nurse and clears the assignment on their reservations.
func (s *Service) DeleteNurse(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("nurse_id is required")
	}
	return s.repo.DeleteNurse(ctx, id)
}

func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	return s.repo.Settings(ctx)
}

// SettingsInput changes only the non-nil fields. ExpectedVersion must match
// the stored version or the update fails with store.ErrVersionConflict.
type SettingsInput struct {
	ExpectedVersion        int64
	NumberOfRooms          *int
	DefaultDurationMinutes *int
	DisplayTimezone        *string
	DisplayDaysOfWeek      []int16
}

func (s *Service) UpdateSettings(ctx context.Context, in SettingsInput) (domain.Settings, error) {
	if in.ExpectedVersion < 1 {
		return domain.Settings{}, domain.NewValidationError("expected_version is required")
	}
	current, err := s.repo.Settings(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if current.Version != in.ExpectedVersion {
		return domain.Settings{}, store.ErrVersionConflict
	}

	next := current
	if in.NumberOfRooms != nil {
		next.NumberOfRooms = *in.NumberOfRooms
	}
	if in.DefaultDurationMinutes != nil {
		next.DefaultDurationMinutes = *in.DefaultDurationMinutes
	}
	if in.DisplayTimezone != nil {
		next.DisplayTimezone = strings.TrimSpace(*in.DisplayTimezone)
	}
	if in.DisplayDaysOfWeek != nil {
		next.DisplayDaysOfWeek = dedupDays(in.DisplayDaysOfWeek)
	}
	if err := next.Validate(); err != nil {
		return domain.Settings{}, err
	}

	updated, err := s.repo.UpdateSettings(ctx, next, in.ExpectedVersion)
	if err != nil {
		return domain.Settings{}, err
	}
	s.log.InfoContext(ctx, "settings updated",
		slog.Int64("version", updated.Version),
		slog.Int("number_of_rooms", updated.NumberOfRooms),
		slog.String("display_timezone", updated.DisplayTimezone),
	)
	return updated, nil
}

func dedupDays(days []int16) []int16 {
	var seen [7]bool
	out := make([]int16, 0, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			if seen[d] {
				continue
			}
			seen[d] = true
		}
		out = append(out, d)
	}
	return out
}

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

type DoctorRepository interface {
	CreateDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error)
	UpdateDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (domain.Doctor, error)
	ListDoctors(ctx context.Context) ([]domain.Doctor, error)
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
}

type NurseRepository interface {
	CreateNurse(ctx context.Context, n domain.Nurse) (domain.Nurse, error)
	GetNurse(ctx context.Context, id uuid.UUID) (domain.Nurse, error)
	ListNurses(ctx context.Context) ([]domain.Nurse, error)
	DeleteNurse(ctx context.Context, id uuid.UUID) error
}

type SettingsRepository interface {
	Settings(ctx context.Context) (domain.Settings, error)
	// UpdateSettings writes s when the stored version equals expectedVersion and
	// returns the stored record with its new version.
	UpdateSettings(ctx context.Context, s domain.Settings, expectedVersion int64) (domain.Settings, error)
}

type ScheduleRepository interface {
	// ReplaceSchedule stores entry as the only schedule for its doctor and date.
	ReplaceSchedule(ctx context.Context, entry domain.ScheduleEntry) (domain.ScheduleEntry, error)
	GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (domain.ScheduleEntry, error)
	ListSchedules(ctx context.Context, doctorID *uuid.UUID, from, to time.Time) ([]domain.ScheduleEntry, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
}

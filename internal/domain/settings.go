package domain

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

const (
	DefaultNumberOfRooms          = 1
	DefaultDoctorDurationMinutes  = 30
	DefaultDisplayTimezone        = "UTC"
	settingsRowID           int16 = 1
)

// Settings is the clinic-wide configuration record. Every write bumps Version;
// a booking decision reads one Settings value and uses it throughout.
type Settings struct {
	bun.BaseModel `bun:"table:clinic_settings,alias:cs"`

	ID                     int16     `bun:"id,pk"`
	Version                int64     `bun:"version,notnull"`
	NumberOfRooms          int       `bun:"number_of_rooms,notnull"`
	DefaultDurationMinutes int       `bun:"default_duration_minutes,notnull"`
	DisplayTimezone        string    `bun:"display_timezone,notnull"`
	DisplayDaysOfWeek      []int16   `bun:"display_days_of_week,array,notnull"`
	UpdatedAt              time.Time `bun:"updated_at,notnull"`
}

func DefaultSettings() Settings {
	return Settings{
		ID:                     settingsRowID,
		Version:                1,
		NumberOfRooms:          DefaultNumberOfRooms,
		DefaultDurationMinutes: DefaultDoctorDurationMinutes,
		DisplayTimezone:        DefaultDisplayTimezone,
		DisplayDaysOfWeek:      []int16{0, 1, 2, 3, 4, 5, 6},
	}
}

func (s Settings) Location() (*time.Location, error) {
	if s.DisplayTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("load display timezone %q: %w", s.DisplayTimezone, err)
	}
	return loc, nil
}

func (s Settings) Validate() error {
	if s.NumberOfRooms < 1 {
		return validationError("number_of_rooms must be at least 1")
	}
	if s.DefaultDurationMinutes < 1 || s.DefaultDurationMinutes > MinutesPerDay {
		return validationError("default_duration_minutes must be between 1 and 1440")
	}
	if _, err := time.LoadLocation(s.DisplayTimezone); err != nil {
		return validationError("invalid display_timezone")
	}
	for _, d := range s.DisplayDaysOfWeek {
		if d < 0 || d > 6 {
			return validationError("display_days_of_week must be between 0 and 6")
		}
	}
	return nil
}

package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Doctor struct {
	bun.BaseModel `bun:"table:doctors,alias:d"`

	ID                     uuid.UUID `bun:"id,pk,type:uuid"`
	Name                   string    `bun:"name,notnull"`
	Honorific              string    `bun:"honorific,notnull"`
	Email                  string    `bun:"email,notnull"`
	MinDurationMinutes     int       `bun:"min_duration_minutes,notnull"`
	DefaultDurationMinutes int       `bun:"default_duration_minutes,notnull"`
	MaxDurationMinutes     int       `bun:"max_duration_minutes,notnull"`
	CreatedAt              time.Time `bun:"created_at,notnull"`
	UpdatedAt              time.Time `bun:"updated_at,notnull"`
}

func (d Doctor) DisplayName() string {
	return strings.TrimSpace(d.Name + " " + d.Honorific)
}

// ValidateDurations enforces min <= default <= max. Bookings do not re-check
// these bounds; they only seed durations offered to callers.
func (d Doctor) ValidateDurations() error {
	if d.MinDurationMinutes < 1 {
		return validationError("min_duration_minutes must be at least 1")
	}
	if d.DefaultDurationMinutes < d.MinDurationMinutes {
		return validationError("default_duration_minutes must not be below min_duration_minutes")
	}
	if d.MaxDurationMinutes < d.DefaultDurationMinutes {
		return validationError("max_duration_minutes must not be below default_duration_minutes")
	}
	if d.MaxDurationMinutes > MinutesPerDay {
		return validationError("max_duration_minutes must fit in one day")
	}
	return nil
}

func (d *Doctor) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if d.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			d.ID = id
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if d.UpdatedAt.IsZero() {
			d.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		d.UpdatedAt = now
	}
	return nil
}

type Nurse struct {
	bun.BaseModel `bun:"table:nurses,alias:n"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	EmployeeNumber string    `bun:"employee_number,notnull"`
	Name           string    `bun:"name,notnull"`
	Title          string    `bun:"title,notnull"`
	Email          string    `bun:"email,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func (n *Nurse) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if n.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		n.ID = id
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return nil
}

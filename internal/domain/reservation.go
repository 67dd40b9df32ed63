package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	DoctorID       uuid.UUID  `bun:"doctor_id,notnull,type:uuid"`
	EmployeeID     string     `bun:"employee_id,notnull"`
	EmployeeNumber string     `bun:"employee_number,notnull"`
	EmployeeName   string     `bun:"employee_name,notnull"`
	EmployeeEmail  string     `bun:"employee_email,notnull"`
	NurseID        *uuid.UUID `bun:"nurse_id,type:uuid"`
	StartTime      time.Time  `bun:"start_time,notnull"`
	EndTime        time.Time  `bun:"end_time,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func (r Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

func (r *Reservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

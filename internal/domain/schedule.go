package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ScheduleEntry is the full set of availability periods one doctor declared
// for one calendar date. Updates replace Periods wholesale.
type ScheduleEntry struct {
	bun.BaseModel `bun:"table:schedule_entries,alias:se"`

	ID        uuid.UUID    `bun:"id,pk,type:uuid"`
	DoctorID  uuid.UUID    `bun:"doctor_id,notnull,type:uuid"`
	Date      time.Time    `bun:"date,notnull,type:date"`
	Periods   []TimeWindow `bun:"time_periods,notnull,type:jsonb"`
	CreatedAt time.Time    `bun:"created_at,notnull"`
	UpdatedAt time.Time    `bun:"updated_at,notnull"`
}

func (e ScheduleEntry) DateString() string {
	return e.Date.Format(DateLayout)
}

func (e *ScheduleEntry) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}

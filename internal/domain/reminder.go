package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ReminderPolicy fires for reservations dated today+DaysBefore, from SendHour
// o'clock onward in the reminder timezone.
type ReminderPolicy struct {
	bun.BaseModel `bun:"table:reminder_policies,alias:rp"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	DaysBefore int        `bun:"days_before,notnull"`
	SendHour   int        `bun:"send_hour,notnull"`
	TemplateID *uuid.UUID `bun:"template_id,type:uuid"`
	Active     bool       `bun:"active,notnull"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
}

func (p ReminderPolicy) Validate() error {
	if p.DaysBefore < 0 {
		return validationError("days_before must not be negative")
	}
	if p.SendHour < 0 || p.SendHour > 23 {
		return validationError("send_hour must be between 0 and 23")
	}
	return nil
}

func (p *ReminderPolicy) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if p.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		p.ID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ReminderSendRecord marks a reminder as delivered. (ReservationID, PolicyID) is unique.
type ReminderSendRecord struct {
	bun.BaseModel `bun:"table:reminder_sends,alias:rs"`

	ReservationID uuid.UUID `bun:"reservation_id,pk,type:uuid"`
	PolicyID      uuid.UUID `bun:"policy_id,pk,type:uuid"`
	SentAt        time.Time `bun:"sent_at,notnull"`
}

type EmailTemplate struct {
	bun.BaseModel `bun:"table:email_templates,alias:et"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull,unique"`
	Subject   string    `bun:"subject,notnull"`
	Body      string    `bun:"body,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (t EmailTemplate) Validate() error {
	if t.Name == "" {
		return validationError("name is required")
	}
	if t.Subject == "" {
		return validationError("subject is required")
	}
	if t.Body == "" {
		return validationError("body is required")
	}
	return nil
}

func (t *EmailTemplate) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if t.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			t.ID = id
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		t.UpdatedAt = now
	}
	return nil
}

// ReminderCandidate is a reservation due for a reminder together with the
// names its template needs.
type ReminderCandidate struct {
	Reservation Reservation
	DoctorName  string
	NurseName   string
}

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
)

type ReminderRepository interface {
	CreatePolicy(ctx context.Context, p domain.ReminderPolicy) (domain.ReminderPolicy, error)
	ListPolicies(ctx context.Context, activeOnly bool) ([]domain.ReminderPolicy, error)
	SetPolicyActive(ctx context.Context, id uuid.UUID, active bool) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error

	// ListUnsent returns reservations starting in [dayStart, dayEnd) that have
	// no send record for policyID.
	ListUnsent(ctx context.Context, policyID uuid.UUID, dayStart, dayEnd time.Time) ([]domain.ReminderCandidate, error)

	// SendOnce runs send while holding the (reservation, policy) pair exclusively
	// and records the send only if send succeeds. It reports false without
	// calling send when the pair is already recorded or held by another caller.
	SendOnce(ctx context.Context, reservationID, policyID uuid.UUID, send func(ctx context.Context) error) (bool, error)

	ListSendRecords(ctx context.Context, reservationID uuid.UUID) ([]domain.ReminderSendRecord, error)
}

type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, t domain.EmailTemplate) (domain.EmailTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (domain.EmailTemplate, error)
	GetTemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error)
	ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

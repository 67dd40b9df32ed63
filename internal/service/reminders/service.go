package reminders

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/store"
)

// Service manages reminder policies and email templates.
type Service struct {
	reminders store.ReminderRepository
	templates store.TemplateRepository
	log       *slog.Logger
}

func NewService(reminders store.ReminderRepository, templates store.TemplateRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{reminders: reminders, templates: templates, log: log.With(slog.String("component", "reminders"))}
}

type PolicyInput struct {
	DaysBefore int
	SendHour   int
	TemplateID *uuid.UUID
	Active     bool
}

func (s *Service) CreatePolicy(ctx context.Context, in PolicyInput) (domain.ReminderPolicy, error) {
	p := domain.ReminderPolicy{
		DaysBefore: in.DaysBefore,
		SendHour:   in.SendHour,
		TemplateID: in.TemplateID,
		Active:     in.Active,
	}
	if err := p.Validate(); err != nil {
		return domain.ReminderPolicy{}, err
	}
	if p.TemplateID != nil {
		if _, err := s.templates.GetTemplate(ctx, *p.TemplateID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ReminderPolicy{}, domain.NewValidationError("template_id does not exist")
			}
			return domain.ReminderPolicy{}, err
		}
	}
	created, err := s.reminders.CreatePolicy(ctx, p)
	if err != nil {
		return domain.ReminderPolicy{}, err
	}
	s.log.InfoContext(ctx, "reminder policy created",
		slog.String("policy_id", created.ID.String()),
		slog.Int("days_before", created.DaysBefore),
		slog.Int("send_hour", created.SendHour),
	)
	return created, nil
}

func (s *Service) ListPolicies(ctx context.Context, activeOnly bool) ([]domain.ReminderPolicy, error) {
	return s.reminders.ListPolicies(ctx, activeOnly)
}

func (s *Service) SetPolicyActive(ctx context.Context, id uuid.UUID, active bool) error {
	if id == uuid.Nil {
		return domain.NewValidationError("policy_id is required")
	}
	return s.reminders.SetPolicyActive(ctx, id, active)
}

// DeletePolicy removes the policy together with its send records.
func (s *Service) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("policy_id is required")
	}
	return s.reminders.DeletePolicy(ctx, id)
}

type TemplateInput struct {
	Name    string
	Subject string
	Body    string
}

func (in TemplateInput) toTemplate() (domain.EmailTemplate, error) {
	t := domain.EmailTemplate{
		Name:    strings.TrimSpace(in.Name),
		Subject: strings.TrimSpace(in.Subject),
		Body:    in.Body,
	}
	if err := t.Validate(); err != nil {
		return domain.EmailTemplate{}, err
	}
	return t, nil
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (domain.EmailTemplate, error) {
	t, err := in.toTemplate()
	if err != nil {
		return domain.EmailTemplate{}, err
	}
	return s.templates.CreateTemplate(ctx, t)
}

func (s *Service) UpdateTemplate(ctx context.Context, id uuid.UUID, in TemplateInput) (domain.EmailTemplate, error) {
	if id == uuid.Nil {
		return domain.EmailTemplate{}, domain.NewValidationError("template_id is required")
	}
	t, err := in.toTemplate()
	if err != nil {
		return domain.EmailTemplate{}, err
	}
	t.ID = id
	return s.templates.UpdateTemplate(ctx, t)
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (domain.EmailTemplate, error) {
	return s.templates.GetTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	return s.templates.ListTemplates(ctx)
}

func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("template_id is required")
	}
	return s.templates.DeleteTemplate(ctx, id)
}

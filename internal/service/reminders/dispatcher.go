package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/mail"
	"clinic/backend/internal/metrics"
	"clinic/backend/internal/store"
)

const DefaultTemplateName = "Reminder"

type DispatcherConfig struct {
	// Location is the reference timezone for due hours and target dates.
	Location *time.Location
	// TemplateName is used when a policy has no template of its own.
	TemplateName string
}

// Dispatcher runs reminder ticks. Each tick is safe to repeat or overlap:
// SendOnce holds every (reservation, policy) pair exclusively and only a
// successful send leaves a record.
type Dispatcher struct {
	reminders    store.ReminderRepository
	templates    store.TemplateRepository
	settings     store.SettingsRepository
	sender       mail.Sender
	metrics      *metrics.Metrics
	log          *slog.Logger
	loc          *time.Location
	templateName string
}

func NewDispatcher(
	reminders store.ReminderRepository,
	templates store.TemplateRepository,
	settings store.SettingsRepository,
	sender mail.Sender,
	cfg DispatcherConfig,
	m *metrics.Metrics,
	log *slog.Logger,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	name := strings.TrimSpace(cfg.TemplateName)
	if name == "" {
		name = DefaultTemplateName
	}
	return &Dispatcher{
		reminders:    reminders,
		templates:    templates,
		settings:     settings,
		sender:       sender,
		metrics:      m,
		log:          log.With(slog.String("component", "reminder_dispatcher")),
		loc:          loc,
		templateName: name,
	}
}

type TickReport struct {
	PoliciesDue     int
	Sent            int
	Failed          int
	Skipped         int
	TemplateMissing []uuid.UUID
}

// RunTick processes every active policy that is due at now. Per-reservation
// failures are logged and counted; the returned error is reserved for
// failures that stop the whole tick.
func (d *Dispatcher) RunTick(ctx context.Context, now time.Time) (TickReport, error) {
	started := time.Now()
	var report TickReport
	defer func() {
		d.metrics.ObserveTick(time.Since(started))
		d.metrics.ObserveReminder(metrics.ResultSent, report.Sent)
		d.metrics.ObserveReminder(metrics.ResultFailed, report.Failed)
		d.metrics.ObserveReminder(metrics.ResultSkipped, report.Skipped)
		d.metrics.ObserveReminder(metrics.ResultTemplateMissing, len(report.TemplateMissing))
	}()

	policies, err := d.reminders.ListPolicies(ctx, true)
	if err != nil {
		return report, fmt.Errorf("list reminder policies: %w", err)
	}
	displayLoc := d.displayLocation(ctx)
	local := now.In(d.loc)

	for _, p := range policies {
		if local.Hour() < p.SendHour {
			continue
		}
		report.PoliciesDue++

		tmpl, err := d.resolveTemplate(ctx, p)
		if errors.Is(err, domain.ErrTemplateMissing) {
			report.TemplateMissing = append(report.TemplateMissing, p.ID)
			d.log.WarnContext(ctx, "reminder template missing, policy skipped",
				slog.String("policy_id", p.ID.String()),
				slog.String("template_name", d.templateName),
			)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("resolve template for policy %s: %w", p.ID, err)
		}

		dayStart := time.Date(local.Year(), local.Month(), local.Day()+p.DaysBefore, 0, 0, 0, 0, d.loc)
		dayEnd := dayStart.AddDate(0, 0, 1)
		due, err := d.reminders.ListUnsent(ctx, p.ID, dayStart, dayEnd)
		if err != nil {
			return report, fmt.Errorf("list unsent reminders for policy %s: %w", p.ID, err)
		}

		for _, c := range due {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			d.dispatchOne(ctx, p, tmpl, c, displayLoc, &report)
		}
	}

	d.log.InfoContext(ctx, "reminder tick complete",
		slog.Int("policies_due", report.PoliciesDue),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Int("template_missing", len(report.TemplateMissing)),
	)
	return report, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, p domain.ReminderPolicy, tmpl domain.EmailTemplate, c domain.ReminderCandidate, displayLoc *time.Location, report *TickReport) {
	r := c.Reservation
	attrs := []any{
		slog.String("reservation_id", r.ID.String()),
		slog.String("policy_id", p.ID.String()),
	}
	if strings.TrimSpace(r.EmployeeEmail) == "" {
		report.Skipped++
		d.log.WarnContext(ctx, "reservation has no employee email", attrs...)
		return
	}

	vars := TemplateVars(c, displayLoc)
	msg := mail.Message{
		To:      r.EmployeeEmail,
		Subject: mail.Render(tmpl.Subject, vars),
		Body:    mail.Render(tmpl.Body, vars),
	}

	sent, err := d.reminders.SendOnce(ctx, r.ID, p.ID, func(ctx context.Context) error {
		if err := d.sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrSendFailed, err)
		}
		return nil
	})
	switch {
	case err != nil:
		report.Failed++
		d.log.WarnContext(ctx, "reminder send failed", append(attrs, slog.String("error", err.Error()))...)
	case !sent:
		report.Skipped++
		d.log.DebugContext(ctx, "reminder already sent or in flight", attrs...)
	default:
		report.Sent++
	}
}

func (d *Dispatcher) resolveTemplate(ctx context.Context, p domain.ReminderPolicy) (domain.EmailTemplate, error) {
	if p.TemplateID != nil {
		t, err := d.templates.GetTemplate(ctx, *p.TemplateID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.EmailTemplate{}, err
		}
	}
	t, err := d.templates.GetTemplateByName(ctx, d.templateName)
	if errors.Is(err, store.ErrNotFound) {
		return domain.EmailTemplate{}, domain.ErrTemplateMissing
	}
	return t, err
}

func (d *Dispatcher) displayLocation(ctx context.Context) *time.Location {
	if d.settings == nil {
		return d.loc
	}
	s, err := d.settings.Settings(ctx)
	if err != nil {
		d.log.WarnContext(ctx, "load settings for reminder rendering", slog.String("error", err.Error()))
		return d.loc
	}
	loc, err := s.Location()
	if err != nil {
		d.log.WarnContext(ctx, "invalid display timezone", slog.String("error", err.Error()))
		return d.loc
	}
	return loc
}

// TemplateVars are the placeholders a reminder template may use. Times are
// rendered in loc.
func TemplateVars(c domain.ReminderCandidate, loc *time.Location) map[string]string {
	start := c.Reservation.StartTime.In(loc)
	return map[string]string{
		"employeeName":        c.Reservation.EmployeeName,
		"doctorName":          c.DoctorName,
		"nurseName":           c.NurseName,
		"reservationDateTime": start.Format(time.RFC3339),
		"reservationDate":     start.Format(domain.DateLayout),
		"reservationTime":     start.Format("15:04"),
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/metrics"
	"clinic/backend/internal/service/reminders"
)

func (c *cli) remindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run reminder ticks and manage reminder policies and templates",
	}
	cmd.AddCommand(c.remindRunCmd())
	cmd.AddCommand(c.policyCmd())
	cmd.AddCommand(c.templateCmd())
	return cmd
}

func (c *cli) remindRunCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single reminder tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			return c.runTick(cmd.Context(), now)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate the tick as of this RFC3339 instant instead of now")
	return cmd
}

func (c *cli) runTick(ctx context.Context, now time.Time) error {
	cfg, log := c.cfg, c.log

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	sender, err := newSender(cfg, log)
	if err != nil {
		return fmt.Errorf("mail sender: %w", err)
	}

	d := reminders.NewDispatcher(st, st, st, sender, reminders.DispatcherConfig{
		Location:     cfg.RemindersTimezone,
		TemplateName: cfg.RemindersTemplateName,
	}, metrics.MustNew(prometheus.NewRegistry()), log)

	if cfg.RemindersTickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RemindersTickTimeout)
		defer cancel()
	}

	report, err := d.RunTick(ctx, now)
	if err != nil {
		return err
	}
	missing := make([]string, 0, len(report.TemplateMissing))
	for _, id := range report.TemplateMissing {
		missing = append(missing, id.String())
	}
	log.Info("reminder tick finished",
		slog.Time("at", now),
		slog.Int("policies_due", report.PoliciesDue),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.String("template_missing", strings.Join(missing, ",")),
	)
	return nil
}

func (c *cli) policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Manage reminder policies"}

	var (
		daysBefore int
		sendHour   int
		templateID string
		inactive   bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a reminder policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := reminders.PolicyInput{DaysBefore: daysBefore, SendHour: sendHour, Active: !inactive}
			if templateID != "" {
				id, err := uuid.Parse(templateID)
				if err != nil {
					return fmt.Errorf("--template-id: %w", err)
				}
				in.TemplateID = &id
			}
			return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
				p, err := svc.CreatePolicy(ctx, in)
				if err != nil {
					return err
				}
				return printPolicies(cmd, []domain.ReminderPolicy{p})
			})
		},
	}
	add.Flags().IntVar(&daysBefore, "days-before", 1, "days between the reminder and the reservation")
	add.Flags().IntVar(&sendHour, "send-hour", 9, "hour of day (0-23) from which the reminder is due")
	add.Flags().StringVar(&templateID, "template-id", "", "template to render; defaults to the configured template name")
	add.Flags().BoolVar(&inactive, "inactive", false, "create the policy disabled")

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List reminder policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
				ps, err := svc.ListPolicies(ctx, activeOnly)
				if err != nil {
					return err
				}
				return printPolicies(cmd, ps)
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only list active policies")

	setActive := func(use string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <policy-id>",
			Short: strings.ToUpper(use[:1]) + use[1:] + " a reminder policy",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}
				return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
					return svc.SetPolicyActive(ctx, id, active)
				})
			},
		}
	}

	del := &cobra.Command{
		Use:   "delete <policy-id>",
		Short: "Delete a reminder policy and its send records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
				return svc.DeletePolicy(ctx, id)
			})
		},
	}

	cmd.AddCommand(add, list, setActive("enable", true), setActive("disable", false), del)
	return cmd
}

func (c *cli) templateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "template", Short: "Manage reminder email templates"}

	var in reminders.TemplateInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an email template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
				t, err := svc.CreateTemplate(ctx, in)
				if err != nil {
					return err
				}
				return printTemplates(cmd, []domain.EmailTemplate{t})
			})
		},
	}
	add.Flags().StringVar(&in.Name, "name", reminders.DefaultTemplateName, "template name")
	add.Flags().StringVar(&in.Subject, "subject", "", "subject line; placeholders like {{doctorName}} are substituted")
	add.Flags().StringVar(&in.Body, "body", "", "message body; placeholders like {{reservationDateTime}} are substituted")

	list := &cobra.Command{
		Use:   "list",
		Short: "List email templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
				ts, err := svc.ListTemplates(ctx)
				if err != nil {
					return err
				}
				return printTemplates(cmd, ts)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete an email template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return c.withReminders(cmd.Context(), func(ctx context.Context, svc *reminders.Service) error {
				return svc.DeleteTemplate(ctx, id)
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func (c *cli) withReminders(ctx context.Context, fn func(context.Context, *reminders.Service) error) error {
	st, closeStore, err := openStore(c.cfg, c.log)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, reminders.NewService(st, st, c.log))
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"clinic/backend/internal/domain"
	"clinic/backend/internal/service/clinic"
)

func (c *cli) doctorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "doctor", Short: "Manage doctors"}

	var in clinic.DoctorInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClinic(cmd.Context(), func(ctx context.Context, svc *clinic.Service) error {
				d, err := svc.CreateDoctor(ctx, in)
				if err != nil {
					return err
				}
				return printDoctors(cmd, []domain.Doctor{d})
			})
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "display name")
	add.Flags().StringVar(&in.Honorific, "honorific", "", "honorific shown in reminders")
	add.Flags().StringVar(&in.Email, "email", "", "contact address")
	add.Flags().IntVar(&in.MinDurationMinutes, "min-minutes", 0, "shortest bookable reservation; 0 uses the default")
	add.Flags().IntVar(&in.DefaultDurationMinutes, "default-minutes", 0, "reservation length used for candidate slots; 0 uses the default")
	add.Flags().IntVar(&in.MaxDurationMinutes, "max-minutes", 0, "longest bookable reservation; 0 uses the default")

	list := &cobra.Command{
		Use:   "list",
		Short: "List doctors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClinic(cmd.Context(), func(ctx context.Context, svc *clinic.Service) error {
				ds, err := svc.ListDoctors(ctx)
				if err != nil {
					return err
				}
				return printDoctors(cmd, ds)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <doctor-id>",
		Short: "Delete a doctor with no reservations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return c.withClinic(cmd.Context(), func(ctx context.Context, svc *clinic.Service) error {
				return svc.DeleteDoctor(ctx, id)
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func (c *cli) withClinic(ctx context.Context, fn func(context.Context, *clinic.Service) error) error {
	st, closeStore, err := openStore(c.cfg, c.log)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, clinic.NewService(st, c.log))
}

func printDoctors(cmd *cobra.Command, ds []domain.Doctor) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tMIN\tDEFAULT\tMAX")
	for _, d := range ds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", d.ID, d.Name, d.Email, d.MinDurationMinutes, d.DefaultDurationMinutes, d.MaxDurationMinutes)
	}
	return w.Flush()
}

func printPolicies(cmd *cobra.Command, ps []domain.ReminderPolicy) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDAYS_BEFORE\tSEND_HOUR\tTEMPLATE\tACTIVE")
	for _, p := range ps {
		tmpl := "-"
		if p.TemplateID != nil {
			tmpl = p.TemplateID.String()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", p.ID, p.DaysBefore, p.SendHour, tmpl, strconv.FormatBool(p.Active))
	}
	return w.Flush()
}

func printTemplates(cmd *cobra.Command, ts []domain.EmailTemplate) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUBJECT")
	for _, t := range ts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.Subject)
	}
	return w.Flush()
}

package main

import (
	"fmt"
	"time"

	"clinicbook/internal/export"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "export", Short: "Write xlsx reports into the exports directory"}

	exporter := func() *export.AgendaExporter {
		return export.NewAgendaExporter(a.booking, a.catalog, a.cfg.Exports.Path, a.logger)
	}

	var (
		date           string
		professionalID int64
	)
	agendaCmd := &cobra.Command{
		Use:   "agenda",
		Short: "Export the appointments of a day",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				date = today(a)
			}
			day, err := a.booking.ParseDate(date)
			if err != nil {
				return err
			}
			path, err := exporter().ExportAgenda(cmd.Context(), day, professionalID)
			if err != nil {
				return err
			}
			cmd.Printf("Agenda exported to %s\n", path)
			return nil
		}),
	}
	agendaCmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (defaults to today)")
	agendaCmd.Flags().Int64Var(&professionalID, "professional", 0, "only this professional")

	var from, to string
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Export a professionals by days occupancy grid",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			start, end, err := a.dateRange(from, to)
			if err != nil {
				return err
			}
			path, err := exporter().ExportSchedule(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			cmd.Printf("Schedule exported to %s\n", path)
			return nil
		}),
	}
	addRangeFlags(scheduleCmd, &from, &to)

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Export registered users",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			users, err := a.users.GetAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			path, err := exporter().ExportUsers(users, time.Now().In(a.booking.Location()))
			if err != nil {
				return err
			}
			cmd.Printf("%d users exported to %s\n", len(users), path)
			return nil
		}),
	}

	cmd.AddCommand(agendaCmd, scheduleCmd, usersCmd)
	return cmd
}

func addRangeFlags(cmd *cobra.Command, from, to *string) {
	cmd.Flags().StringVar(from, "from", "", "first day as YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(to, "to", "", "last day as YYYY-MM-DD (defaults to a week after --from)")
}

// dateRange resolves --from/--to in the clinic location.
func (a *app) dateRange(from, to string) (time.Time, time.Time, error) {
	if from == "" {
		from = today(a)
	}
	start, err := a.booking.ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to == "" {
		return start, start.AddDate(0, 0, 6), nil
	}
	end, err := a.booking.ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"clinicbook/internal/google"
	"clinicbook/internal/models"
	"clinicbook/internal/worker"

	"github.com/spf13/cobra"
)

var errGoogleNotConfigured = errors.New("google sheets is not configured")

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "sync", Short: "Inspect and repair the Sheets ledger sync"}

	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "List sync tasks that ran out of retries",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			tasks, err := a.db.GetFailedSyncTasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				cmd.Println("No failed sync tasks")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tAPPOINTMENT\tRETRIES\tERROR")
			for _, t := range tasks {
				lastErr := ""
				if t.LastError != nil {
					lastErr = *t.LastError
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", t.ID, t.TaskType, t.AppointmentID, t.RetryCount, lastErr)
			}
			return w.Flush()
		}),
	}

	requeueCmd := &cobra.Command{
		Use:   "requeue",
		Short: "Give failed sync tasks a fresh retry budget",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			n, err := a.sync.Requeue(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Requeued %d tasks\n", n)
			return nil
		}),
	}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Deliver one batch of due sync tasks now",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			sheets, err := a.sheets(cmd.Context())
			if err != nil {
				return err
			}
			w := worker.NewSyncWorker(a.db, sheets, a.redis, worker.DefaultRetryPolicy(), a.logger)
			n, err := w.ProcessPending(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Processed %d tasks\n", n)
			return nil
		}),
	}

	var from, to string
	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rewrite the ledger from the database for a date range",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			start, end, err := a.dateRange(from, to)
			if err != nil {
				return err
			}
			sheets, err := a.sheets(cmd.Context())
			if err != nil {
				return err
			}
			byDate, err := a.appointmentsBetween(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			var all []*models.Appointment
			for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
				all = append(all, byDate[d.Format(models.DateLayout)]...)
			}
			if err := sheets.ReplaceAppointments(cmd.Context(), all); err != nil {
				return err
			}
			cmd.Printf("Ledger rebuilt with %d appointments\n", len(all))
			return nil
		}),
	}
	addRangeFlags(rebuildCmd, &from, &to)

	var sheetName string
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Redraw the occupancy grid sheet",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			start, end, err := a.dateRange(from, to)
			if err != nil {
				return err
			}
			sheets, err := a.sheets(cmd.Context())
			if err != nil {
				return err
			}
			profs, err := a.catalog.ListProfessionals(cmd.Context())
			if err != nil {
				return err
			}
			byDate, err := a.appointmentsBetween(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			if err := sheets.UpdateScheduleSheet(cmd.Context(), sheetName, start, end, profs, byDate); err != nil {
				return err
			}
			cmd.Printf("Schedule sheet %q updated\n", sheetName)
			return nil
		}),
	}
	addRangeFlags(scheduleCmd, &from, &to)
	scheduleCmd.Flags().StringVar(&sheetName, "sheet", "Schedule", "sheet tab to draw on")

	cmd.AddCommand(failedCmd, requeueCmd, processCmd, rebuildCmd, scheduleCmd)
	return cmd
}

func (a *app) sheets(ctx context.Context) (*google.SheetsService, error) {
	if !googleConfigured(a.cfg) {
		return nil, errGoogleNotConfigured
	}
	return google.NewSheetsService(ctx, a.cfg.Google.CredentialsFile, a.cfg.Google.AppointmentsSpreadsheetID, a.cfg.Google.SheetName)
}

// appointmentsBetween loads every day of [start, end] keyed by YYYY-MM-DD.
func (a *app) appointmentsBetween(ctx context.Context, start, end time.Time) (map[string][]*models.Appointment, error) {
	byDate := make(map[string][]*models.Appointment)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(models.DateLayout)
		appts, err := a.booking.Agenda(ctx, date, 0)
		if err != nil {
			return nil, fmt.Errorf("agenda %s: %w", date, err)
		}
		byDate[date] = appts
	}
	return byDate, nil
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"clinicbook/internal/config"
	"clinicbook/internal/database"
	"clinicbook/internal/models"

	"github.com/spf13/cobra"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Manage professionals and services"}

	var path string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Load the catalog file into the database",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = a.cfg.Catalog.Path
			}
			if path == "" {
				return errors.New("catalog path is not set, use --file or catalog.path")
			}
			catalog, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}
			professionals, services, err := catalog.Models()
			if err != nil {
				return err
			}
			if err := a.db.SyncCatalog(cmd.Context(), professionals, services); err != nil {
				return err
			}
			cmd.Printf("Synced %d professionals and %d services from %s\n", len(professionals), len(services), path)
			return nil
		}),
	}
	syncCmd.Flags().StringVarP(&path, "file", "f", "", "catalog yaml (defaults to catalog.path)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print professionals and services",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			profs, err := a.catalog.ListProfessionals(cmd.Context())
			if err != nil {
				return err
			}
			services, err := a.catalog.ListServices(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROFESSIONAL\tSPECIALTY\tHOURS\tRATING\tACTIVE")
			for _, p := range profs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s-%s\t%.1f\t%t\n", p.ID, p.Name, p.Specialty, p.WorkStart, p.WorkEnd, p.Rating, p.IsActive)
			}
			fmt.Fprintln(w, "\nID\tSERVICE\tMINUTES\tACTIVE")
			for _, s := range services {
				fmt.Fprintf(w, "%d\t%s\t%d\t%t\n", s.ID, s.Name, s.DurationMinutes, s.IsActive)
			}
			return w.Flush()
		}),
	}

	cmd.AddCommand(syncCmd, listCmd)
	return cmd
}

func newConfirmCmd(a *app) *cobra.Command {
	var staffID int64
	cmd := &cobra.Command{
		Use:   "confirm <appointment-id>",
		Short: "Confirm a scheduled appointment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.checkStaff(cmd, staffID); err != nil {
				return err
			}
			appt, err := a.booking.ConfirmBooking(cmd.Context(), staffID, id)
			if err != nil {
				return err
			}
			cmd.Printf("Appointment %d is %s\n", appt.ID, appt.Status)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&staffID, "staff-id", 0, "staff user acting on the appointment")
	return cmd
}

func newCompleteCmd(a *app) *cobra.Command {
	var staffID int64
	cmd := &cobra.Command{
		Use:   "complete <appointment-id>",
		Short: "Mark a started appointment completed",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(a, func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.checkStaff(cmd, staffID); err != nil {
				return err
			}
			appt, err := a.booking.CompleteBooking(cmd.Context(), staffID, id)
			if err != nil {
				return err
			}
			cmd.Printf("Appointment %d is %s\n", appt.ID, appt.Status)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&staffID, "staff-id", 0, "staff user acting on the appointment")
	return cmd
}

func newCompleteElapsedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-elapsed",
		Short: "Complete every active appointment that has already started",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			n, err := a.booking.CompleteElapsed(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Completed %d appointments\n", n)
			return nil
		}),
	}
}

func newAgendaCmd(a *app) *cobra.Command {
	var (
		date           string
		professionalID int64
	)
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Print the appointments of a day",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				date = today(a)
			}
			appts, err := a.booking.Agenda(cmd.Context(), date, professionalID)
			if err != nil {
				return err
			}
			if len(appts) == 0 {
				cmd.Printf("No appointments on %s\n", date)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tPROFESSIONAL\tSERVICE\tPATIENT\tSTATUS")
			for _, appt := range appts {
				fmt.Fprintf(w, "%d\t%s-%s\t%s\t%s\t%s\t%s\n",
					appt.ID, appt.Start, appt.End, appt.ProfessionalName, appt.ServiceName, patient(appt), appt.Status)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (defaults to today)")
	cmd.Flags().Int64Var(&professionalID, "professional", 0, "only this professional")
	return cmd
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a database backup now",
		Args:  cobra.NoArgs,
		RunE: withApp(a, func(cmd *cobra.Command, _ []string) error {
			backups := database.NewBackupService(a.cfg.Database.Path, a.cfg.Backup, a.logger)
			path, err := backups.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			removed := backups.CleanupOldBackups()
			cmd.Printf("Backup written to %s (%d old backups removed)\n", path, removed)
			return nil
		}),
	}
}

// checkStaff rejects a staff id that does not belong to a staff user. Zero
// means the operator acts as the system.
func (a *app) checkStaff(cmd *cobra.Command, staffID int64) error {
	if staffID == 0 {
		return nil
	}
	u, err := a.users.GetUserByID(cmd.Context(), staffID)
	if err != nil {
		return err
	}
	if !u.IsStaff {
		return fmt.Errorf("user %d is not staff", staffID)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func today(a *app) string {
	return time.Now().In(a.booking.Location()).Format(models.DateLayout)
}

func patient(appt *models.Appointment) string {
	if appt.UserName != "" {
		return appt.UserName
	}
	return fmt.Sprintf("#%d", appt.UserID)
}

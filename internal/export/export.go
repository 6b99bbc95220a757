package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// AgendaSource lists one day's appointments, optionally for one professional.
type AgendaSource interface {
	Agenda(ctx context.Context, date string, professionalID int64) ([]*models.Appointment, error)
}

type ProfessionalLister interface {
	ListProfessionals(ctx context.Context) ([]*models.Professional, error)
}

// maxDays bounds the columns of a schedule export.
const maxDays = 62

const (
	fillFree        = "#FFFFFF"
	fillFull        = "#FFC7CE"
	fillUnconfirmed = "#FFEB9C"
	fillConfirmed   = "#C6EFCE"
	fillCancelled   = "#EDEDED"
	fillHeader      = "#DDEBF7"
	fillRowTitle    = "#E2EFDA"
)

// AgendaExporter writes agendas and schedules as xlsx files into dir.
type AgendaExporter struct {
	agenda        AgendaSource
	professionals ProfessionalLister
	dir           string
	logger        zerolog.Logger
}

func NewAgendaExporter(agenda AgendaSource, professionals ProfessionalLister, dir string, logger *zerolog.Logger) *AgendaExporter {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "export").Logger()
	}
	if dir == "" {
		dir = "exports"
	}
	return &AgendaExporter{agenda: agenda, professionals: professionals, dir: dir, logger: l}
}

// ExportAgenda writes every appointment of day, cancelled ones included, one
// row each, ordered by professional and start.
func (e *AgendaExporter) ExportAgenda(ctx context.Context, day time.Time, professionalID int64) (string, error) {
	appts, err := e.agenda.Agenda(ctx, day.Format(models.DateLayout), professionalID)
	if err != nil {
		return "", fmt.Errorf("error getting agenda: %w", err)
	}
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].ProfessionalID != appts[j].ProfessionalID {
			return appts[i].ProfessionalID < appts[j].ProfessionalID
		}
		return appts[i].Start < appts[j].Start
	})

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Agenda"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheet, "A1", "Agenda "+day.Format(models.DateLayout))
	headers := []string{"ID", "Start", "End", "Professional", "Service", "Patient", "Status", "Notes"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, h)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillHeader}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(sheet, "A2", "H2", headerStyle)
	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	styles := map[scheduling.Status]int{}
	for i, a := range appts {
		row := i + 3
		values := []interface{}{
			a.ID, a.Start.String(), a.End.String(), a.ProfessionalName, a.ServiceName,
			patientLabel(a), string(a.Status), a.Notes,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		style, ok := styles[a.Status]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{statusFill(a.Status)}, Pattern: 1},
			})
			if err == nil {
				styles[a.Status] = style
			}
		}
		_ = f.SetCellStyle(sheet, fmt.Sprintf("G%d", row), fmt.Sprintf("G%d", row), style)
	}

	_ = f.SetColWidth(sheet, "A", "C", 8)
	_ = f.SetColWidth(sheet, "D", "F", 24)
	_ = f.SetColWidth(sheet, "G", "G", 12)
	_ = f.SetColWidth(sheet, "H", "H", 40)

	return e.save(f, fmt.Sprintf("agenda_%s.xlsx", day.Format(models.DateLayout)))
}

// ExportSchedule writes a professionals x days grid for [from, to]. Cells are
// colored by how much of the working window is booked.
func (e *AgendaExporter) ExportSchedule(ctx context.Context, from, to time.Time) (string, error) {
	if to.Before(from) {
		return "", fmt.Errorf("invalid date range: %s - %s", from.Format(models.DateLayout), to.Format(models.DateLayout))
	}

	profs, err := e.professionals.ListProfessionals(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting professionals: %w", err)
	}
	active := profs[:0:0]
	for _, p := range profs {
		if p.IsActive {
			active = append(active, p)
		}
	}

	var days []time.Time
	for d := from; !d.After(to) && len(days) < maxDays; d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Schedule"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Schedule %s - %s", from.Format(models.DateLayout), to.Format(models.DateLayout)))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(days) + 1)
	_ = f.MergeCell(sheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{fillHeader}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, d := range days {
		cell, _ := excelize.CoordinatesToCellName(i+2, 2)
		_ = f.SetCellValue(sheet, cell, d.Format("Mon 02.01"))
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	rowStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillRowTitle}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, p := range active {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(sheet, cell, fmt.Sprintf("%s (%s)", p.Name, p.Specialty))
		_ = f.SetCellStyle(sheet, cell, cell, rowStyle)
	}

	cellStyles := map[string]int{}
	for col, d := range days {
		appts, err := e.agenda.Agenda(ctx, d.Format(models.DateLayout), 0)
		if err != nil {
			return "", fmt.Errorf("error getting agenda for %s: %w", d.Format(models.DateLayout), err)
		}
		byProfessional := make(map[int64][]*models.Appointment)
		for _, a := range appts {
			byProfessional[a.ProfessionalID] = append(byProfessional[a.ProfessionalID], a)
		}

		for row, p := range active {
			cell, _ := excelize.CoordinatesToCellName(col+2, row+3)
			value, fill := scheduleCell(p, byProfessional[p.ID])
			_ = f.SetCellValue(sheet, cell, value)

			style, ok := cellStyles[fill]
			if !ok {
				style, err = f.NewStyle(&excelize.Style{
					Fill:      excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
					Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
				})
				if err != nil {
					continue
				}
				cellStyles[fill] = style
			}
			_ = f.SetCellStyle(sheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	if len(days) > 0 {
		_ = f.SetColWidth(sheet, "B", lastCol, 24)
	}

	return e.save(f, fmt.Sprintf("schedule_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout)))
}

// ExportUsers writes the patient and staff directory.
func (e *AgendaExporter) ExportUsers(users []*models.User, now time.Time) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Users"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Email", "Full name", "Phone", "Staff", "Last activity", "Registered"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheet, "A1", "G1", bold)

	for i, u := range users {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), u.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), u.Email)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), u.FullName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), u.Phone)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), yesNo(u.IsStaff))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), u.LastActivity.Format("2006-01-02 15:04"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), u.CreatedAt.Format("2006-01-02 15:04"))
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "C", 28)
	_ = f.SetColWidth(sheet, "D", "E", 14)
	_ = f.SetColWidth(sheet, "F", "G", 18)

	return e.save(f, fmt.Sprintf("users_%s.xlsx", now.Format("2006-01-02_15-04-05")))
}

func (e *AgendaExporter) save(f *excelize.File, name string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	e.logger.Info().Str("file_path", path).Msg("Excel file created")
	return path, nil
}

func scheduleCell(p *models.Professional, appts []*models.Appointment) (string, string) {
	var (
		value       string
		booked      int
		unconfirmed bool
	)
	for _, a := range appts {
		if a.Status == scheduling.StatusCancelled {
			continue
		}
		value += fmt.Sprintf("%s-%s %s %s\n", a.Start, a.End, a.ServiceName, statusIcon(a.Status))
		booked += a.Interval().Minutes()
		if a.Status == scheduling.StatusScheduled {
			unconfirmed = true
		}
	}
	if booked == 0 {
		return fmt.Sprintf("Free %s-%s", p.WorkStart, p.WorkEnd), fillFree
	}

	window := 0
	if w, err := p.WorkingWindow(); err == nil {
		window = w.Minutes()
	}
	value += fmt.Sprintf("\nBooked: %d/%d min", booked, window)

	switch {
	case window > 0 && booked >= window:
		return value, fillFull
	case unconfirmed:
		return value, fillUnconfirmed
	default:
		return value, fillConfirmed
	}
}

func statusFill(st scheduling.Status) string {
	switch st {
	case scheduling.StatusScheduled:
		return fillUnconfirmed
	case scheduling.StatusConfirmed, scheduling.StatusCompleted:
		return fillConfirmed
	case scheduling.StatusCancelled:
		return fillCancelled
	default:
		return fillFree
	}
}

func statusIcon(st scheduling.Status) string {
	switch st {
	case scheduling.StatusConfirmed, scheduling.StatusCompleted:
		return "✅"
	case scheduling.StatusScheduled:
		return "⏳"
	case scheduling.StatusCancelled:
		return "❌"
	default:
		return "❓"
	}
}

func patientLabel(a *models.Appointment) string {
	if a.UserName != "" {
		return a.UserName
	}
	return fmt.Sprintf("user #%d", a.UserID)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"

	"google.golang.org/api/sheets/v4"
)

// maxScheduleDays bounds the number of date columns in the schedule sheet.
const maxScheduleDays = 62

var (
	colorFull        = &sheets.Color{Red: 1.0, Green: 0.78, Blue: 0.81}
	colorUnconfirmed = &sheets.Color{Red: 1.0, Green: 0.92, Blue: 0.61}
	colorConfirmed   = &sheets.Color{Red: 0.78, Green: 0.94, Blue: 0.81}
	colorFree        = &sheets.Color{Red: 1.0, Green: 1.0, Blue: 1.0}
	colorHeader      = &sheets.Color{Red: 0.86, Green: 0.92, Blue: 0.97}
	colorRowTitle    = &sheets.Color{Red: 0.89, Green: 0.94, Blue: 0.85}
)

// UpdateScheduleSheet redraws a professionals x days grid on sheetName. Each
// cell lists the day's live appointments and is colored by how full the
// professional's working window is.
func (s *SheetsService) UpdateScheduleSheet(
	ctx context.Context,
	sheetName string,
	startDate, endDate time.Time,
	professionals []*models.Professional,
	byDate map[string][]*models.Appointment,
) error {
	if endDate.Before(startDate) {
		return fmt.Errorf("invalid date range: %s - %s", startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))
	}

	sheetID, err := s.GetSheetIDByName(ctx, sheetName)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, sheetName+"!A:ZZ", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to clear schedule sheet: %w", err)
	}

	headerRow, dates := prepareDateHeaders(startDate, endDate)
	data := [][]interface{}{
		{fmt.Sprintf("Schedule %s - %s", startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))},
		{},
		headerRow,
	}

	requests := []*sheets.Request{
		repeatCell(sheetID, 0, 1, 0, 1, &sheets.CellFormat{
			HorizontalAlignment: "CENTER",
			TextFormat:          &sheets.TextFormat{Bold: true, FontSize: 14},
		}, "userEnteredFormat(textFormat,horizontalAlignment)"),
		repeatCell(sheetID, 2, 3, 1, int64(len(headerRow)), &sheets.CellFormat{
			HorizontalAlignment: "CENTER",
			TextFormat:          &sheets.TextFormat{Bold: true},
			BackgroundColor:     colorHeader,
		}, "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)"),
	}

	for i, p := range professionals {
		row, colors := professionalRow(p, dates, byDate)
		data = append(data, row)
		for col, color := range colors {
			requests = append(requests, repeatCell(sheetID, int64(i+3), int64(i+4), int64(col+1), int64(col+2), &sheets.CellFormat{
				VerticalAlignment: "TOP",
				WrapStrategy:      "WRAP",
				BackgroundColor:   color,
			}, "userEnteredFormat(backgroundColor,verticalAlignment,wrapStrategy)"))
		}
	}
	if len(professionals) > 0 {
		requests = append(requests, repeatCell(sheetID, 3, int64(3+len(professionals)), 0, 1, &sheets.CellFormat{
			TextFormat:      &sheets.TextFormat{Bold: true},
			BackgroundColor: colorRowTitle,
		}, "userEnteredFormat(backgroundColor,textFormat)"))
	} else {
		data = append(data, []interface{}{"No active professionals"})
	}
	requests = append(requests, columnWidths(sheetID, len(dates))...)

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, sheetName+"!A1", &sheets.ValueRange{Values: data}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to update schedule sheet: %w", err)
	}

	_, err = s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to format schedule sheet: %w", err)
	}
	return nil
}

// prepareDateHeaders returns the header row (blank corner first) and the
// storage keys of the covered days.
func prepareDateHeaders(startDate, endDate time.Time) ([]interface{}, []string) {
	headers := []interface{}{""}
	var dates []string
	for d := startDate; !d.After(endDate) && len(dates) < maxScheduleDays; d = d.AddDate(0, 0, 1) {
		headers = append(headers, d.Format("Mon 02.01"))
		dates = append(dates, d.Format(models.DateLayout))
	}
	return headers, dates
}

func professionalRow(p *models.Professional, dates []string, byDate map[string][]*models.Appointment) ([]interface{}, []*sheets.Color) {
	row := []interface{}{fmt.Sprintf("%s (%s)", p.Name, p.Specialty)}
	colors := make([]*sheets.Color, 0, len(dates))
	for _, date := range dates {
		var own []*models.Appointment
		for _, a := range byDate[date] {
			if a.ProfessionalID == p.ID {
				own = append(own, a)
			}
		}
		value, color := formatScheduleCell(p, own)
		row = append(row, value)
		colors = append(colors, color)
	}
	return row, colors
}

// formatScheduleCell renders one professional-day. Red means no minute of the
// working window is left, yellow that something is still unconfirmed.
func formatScheduleCell(p *models.Professional, appts []*models.Appointment) (string, *sheets.Color) {
	var (
		b           strings.Builder
		booked      int
		unconfirmed bool
	)
	for _, a := range appts {
		if a.Status == scheduling.StatusCancelled {
			continue
		}
		fmt.Fprintf(&b, "[#%d] %s-%s %s %s\n", a.ID, a.Start, a.End, a.ServiceName, statusMark(a.Status))
		booked += a.Interval().Minutes()
		if a.Status == scheduling.StatusScheduled {
			unconfirmed = true
		}
	}

	window := 0
	if w, err := p.WorkingWindow(); err == nil {
		window = w.Minutes()
	}

	if booked == 0 {
		return fmt.Sprintf("Free\n%s-%s", p.WorkStart, p.WorkEnd), colorFree
	}
	fmt.Fprintf(&b, "\nBooked: %d/%d min", booked, window)

	switch {
	case window > 0 && booked >= window:
		return b.String(), colorFull
	case unconfirmed:
		return b.String(), colorUnconfirmed
	default:
		return b.String(), colorConfirmed
	}
}

func statusMark(st scheduling.Status) string {
	switch st {
	case scheduling.StatusConfirmed, scheduling.StatusCompleted:
		return "✅"
	case scheduling.StatusScheduled:
		return "⏳"
	default:
		return "❓"
	}
}

func repeatCell(sheetID, startRow, endRow, startCol, endCol int64, format *sheets.CellFormat, fields string) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell:   &sheets.CellData{UserEnteredFormat: format},
			Fields: fields,
		},
	}
}

func columnWidths(sheetID int64, dateCols int) []*sheets.Request {
	width := func(start, end, px int64) *sheets.Request {
		return &sheets.Request{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range:      &sheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", StartIndex: start, EndIndex: end},
				Properties: &sheets.DimensionProperties{PixelSize: px},
				Fields:     "pixelSize",
			},
		}
	}
	if dateCols < 1 {
		dateCols = 1
	}
	return []*sheets.Request{width(0, 1, 220), width(1, int64(dateCols+1), 180)}
}

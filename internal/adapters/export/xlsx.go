// Package export renders reports as spreadsheet downloads.
package export

import (
	"fmt"
	"io"
	"time"

	"frontdesk/internal/application/projections"

	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the MIME type of WriteAttendanceXLSX output.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const attendanceSheet = "Attendance"

var attendanceHeader = []any{"Class date", "Check-in time", "Member ID", "Member", "Plan"}

// WriteAttendanceXLSX writes one sheet with a header row and one row per record.
// Check-in times are rendered in loc.
func WriteAttendanceXLSX(w io.Writer, rows []projections.AttendanceReportRow, loc *time.Location) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), attendanceSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(attendanceSheet, "A1", &attendanceHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		values := []any{
			r.ClassDate,
			r.CheckInTime.In(loc).Format("15:04:05"),
			r.MemberID,
			r.MemberName,
			r.PlanName,
		}
		if err := f.SetSheetRow(attendanceSheet, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	if err := f.SetColWidth(attendanceSheet, "A", "E", 18); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

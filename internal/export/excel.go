package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	usersSheet   = "Users"
	strikesSheet = "Strikes"
)

// ExcelExporter writes the trust standing report that managers download
// from the admin channel.
type ExcelExporter struct {
	logger *zerolog.Logger
}

func NewExcelExporter(logger *zerolog.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// ExportTrustReport writes a two-sheet workbook (user standings, strike
// log) and returns an error only when the file cannot be produced.
func (e *ExcelExporter) ExportTrustReport(_ context.Context, users []*models.User, strikes []*models.Strike, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeUsersSheet(f, users); err != nil {
		return err
	}
	if err := e.writeStrikesSheet(f, strikes); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	e.logger.Info().Str("path", path).Int("users", len(users)).Int("strikes", len(strikes)).Msg("trust report exported")
	return nil
}

func (e *ExcelExporter) writeUsersSheet(f *excelize.File, users []*models.User) error {
	index, err := f.NewSheet(usersSheet)
	if err != nil {
		return fmt.Errorf("create users sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Email", "Name", "Verified", "Trust Level",
		"Weekly Limit", "Successful Bookings", "Banned Until", "Registered",
	}
	e.writeHeaderRow(f, usersSheet, headers)

	for i, user := range users {
		row := i + 2
		bannedUntil := ""
		if user.BookingBanUntil != nil {
			bannedUntil = user.BookingBanUntil.Format("02.01.2006 15:04")
		}

		_ = f.SetCellValue(usersSheet, fmt.Sprintf("A%d", row), user.ID)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("B%d", row), user.Email)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("C%d", row), user.Name)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("D%d", row), boolToYesNo(user.EmailVerified))
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("E%d", row), trustLevelName(user.TrustLevel))
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("F%d", row), user.WeeklyBookingLimit)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("G%d", row), user.SuccessfulBookings)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("H%d", row), bannedUntil)
		_ = f.SetCellValue(usersSheet, fmt.Sprintf("I%d", row), user.CreatedAt.Format("02.01.2006"))
	}

	_ = f.SetColWidth(usersSheet, "A", "A", 10)
	_ = f.SetColWidth(usersSheet, "B", "C", 25)
	_ = f.SetColWidth(usersSheet, "D", "G", 14)
	_ = f.SetColWidth(usersSheet, "H", "I", 20)

	return nil
}

func (e *ExcelExporter) writeStrikesSheet(f *excelize.File, strikes []*models.Strike) error {
	if _, err := f.NewSheet(strikesSheet); err != nil {
		return fmt.Errorf("create strikes sheet: %w", err)
	}

	headers := []string{"ID", "Booking ID", "User ID", "Reporter ID", "Reason", "Active", "Reported", "Expired At"}
	e.writeHeaderRow(f, strikesSheet, headers)

	for i, strike := range strikes {
		row := i + 2
		expiredAt := ""
		if strike.ExpiredAt != nil {
			expiredAt = strike.ExpiredAt.Format("02.01.2006 15:04")
		}

		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("A%d", row), strike.ID)
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("B%d", row), strike.BookingID)
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("C%d", row), strike.UserID)
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("D%d", row), strike.ReporterID)
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("E%d", row), strike.Reason)
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("F%d", row), boolToYesNo(!strike.Expired))
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("G%d", row), strike.CreatedAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(strikesSheet, fmt.Sprintf("H%d", row), expiredAt)
	}

	_ = f.SetColWidth(strikesSheet, "A", "D", 12)
	_ = f.SetColWidth(strikesSheet, "E", "E", 35)
	_ = f.SetColWidth(strikesSheet, "F", "H", 18)

	return nil
}

func (e *ExcelExporter) writeHeaderRow(f *excelize.File, sheet string, headers []string) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

// DefaultReportPath builds a timestamped file name under the export
// directory.
func DefaultReportPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("trust_report_%s.xlsx", now.Format("2006-01-02_15-04-05")))
}

func trustLevelName(level int) string {
	switch level {
	case models.TrustLevelUnverified:
		return "unverified"
	case models.TrustLevelMember:
		return "member"
	case models.TrustLevelRegular:
		return "regular"
	case models.TrustLevelTrusted:
		return "trusted"
	case models.TrustLevelVeteran:
		return "veteran"
	default:
		return fmt.Sprintf("level %d", level)
	}
}

func boolToYesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

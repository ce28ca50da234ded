package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"courtbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService mirrors user trust standings and the strike log to a
// shared spreadsheet facility managers watch. The mirror is a full
// overwrite on every sync; the database stays authoritative.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads one cell to verify credentials and sharing.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Users!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail extracts the account email from the
// credentials file, for sharing instructions in setup logs.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// UpdateUsersSheet overwrites the Users tab with current standings.
func (s *SheetsService) UpdateUsersSheet(ctx context.Context, users []*models.User) error {
	values := [][]interface{}{
		{"ID", "Email", "Name", "Verified", "Trust Level", "Weekly Limit", "Successful Bookings", "Banned Until", "Created At"},
	}
	for _, user := range users {
		values = append(values, userRowValues(user))
	}

	rangeData := fmt.Sprintf("Users!A1:I%d", len(values))
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateStrikesSheet overwrites the Strikes tab with the strike log.
func (s *SheetsService) UpdateStrikesSheet(ctx context.Context, strikes []*models.Strike) error {
	values := [][]interface{}{
		{"ID", "Booking ID", "User ID", "Reporter ID", "Reason", "Expired", "Created At", "Expired At"},
	}
	for _, strike := range strikes {
		values = append(values, strikeRowValues(strike))
	}

	rangeData := fmt.Sprintf("Strikes!A1:H%d", len(values))
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func userRowValues(user *models.User) []interface{} {
	bannedUntil := ""
	if user.BookingBanUntil != nil {
		bannedUntil = user.BookingBanUntil.Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		user.ID,
		user.Email,
		user.Name,
		user.EmailVerified,
		user.TrustLevel,
		user.WeeklyBookingLimit,
		user.SuccessfulBookings,
		bannedUntil,
		user.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func strikeRowValues(strike *models.Strike) []interface{} {
	expiredAt := ""
	if strike.ExpiredAt != nil {
		expiredAt = strike.ExpiredAt.Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		strike.ID,
		strike.BookingID,
		strike.UserID,
		strike.ReporterID,
		strike.Reason,
		strike.Expired,
		strike.CreatedAt.Format("2006-01-02 15:04:05"),
		expiredAt,
	}
}

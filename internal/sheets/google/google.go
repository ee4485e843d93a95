package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"refdesk/internal/core"
	"refdesk/internal/tally"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client mirrors daily tallies into a Google Sheets question log. One row is
// appended per mirrored day state, so the sheet is an audit trail rather
// than a live view; the latest row per day is the current state.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logSheet      string
}

// Ensure interface conformance
var _ tally.DayMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Question Log") and service account
// credentials via GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	logSheet := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if logSheet == "" {
		logSheet = "Question Log"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logSheet:      logSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// MirrorDay implements tally.DayMirror: appends the day's current state as
// one row [day, per-category counts..., total, version, updated_at, updated_by].
func (c *Client) MirrorDay(ctx context.Context, t core.DailyTally) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := t.Day.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	row := make([]interface{}, 0, len(core.Categories())+4)
	row = append(row, t.Day.String())
	for _, cat := range core.Categories() {
		row = append(row, t.Count(cat.ID))
	}
	row = append(row, t.Total(), t.Version, t.UpdatedAt.UTC().Format(time.RFC3339), t.UpdatedBy)

	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rng := fmt.Sprintf("%s!A:Z", c.logSheet)
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(cctx).
		Do()
	if err != nil {
		return fmt.Errorf("append day row: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored day to sheet",
		"day", t.Day,
		"total", t.Total(),
		"version", t.Version,
		"sheet", c.logSheet)

	return nil
}

package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"bilancio/internal/core"
	ports "bilancio/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheTTL = 5 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Bilancio"); the year is prefixed per row.
	summaryBase string

	// Row count cache for the next free row, keyed by sheet name.
	mu                 sync.Mutex
	cachedSheet        string
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.SummaryExporter = (*Client)(nil)
	_ ports.SummaryLister   = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Bilancio").
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client (GOOGLE_OAUTH_CLIENT_JSON
// or GOOGLE_OAUTH_CLIENT_FILE) with the token saved by `bilancioctl sheets-auth`.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	return New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"))
}

func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, spreadsheetID, sheetBase), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Bilancio"
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		summaryBase:        sheetBase,
		cacheValidDuration: defaultRowCacheTTL,
	}
}

// newSheetsService initializes a Sheets Service from service account
// credentials, falling back to a saved OAuth user token.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var opt goption.ClientOption
	switch {
	case serviceAccountJSON != "":
		opt = goption.WithCredentialsJSON([]byte(serviceAccountJSON))
	case serviceAccountFile != "":
		credentialsJSON, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opt = goption.WithCredentialsJSON(credentialsJSON)
	default:
		ts, err := oauthTokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth token: %w", err)
		}
		if ts == nil {
			return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client with a saved token)")
		}
		opt = goption.WithTokenSource(ts)
	}

	service, err := gsheet.NewService(ctx, opt, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.summaryBase, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func validateRow(row ports.SummaryRow) error {
	if strings.TrimSpace(row.PlanName) == "" {
		return errors.New("plan name is required")
	}
	if _, err := core.ParseMonthKey(string(row.Month)); err != nil {
		return fmt.Errorf("month %q: %w", row.Month, err)
	}
	return nil
}

// cachedNextRow returns the next free row if the cache for sheet is fresh.
func (c *Client) cachedNextRow(sheet string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedSheet != sheet || !time.Now().Before(c.cacheExpiresAt) {
		return 0, false
	}
	return c.cachedRowCount + 1, true
}

func (c *Client) storeRowCount(sheet string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedSheet = sheet
	c.cachedRowCount = count
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
}

func (c *Client) invalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheExpiresAt = time.Time{}
}

func (c *Client) nextRow(ctx context.Context, sheet string) (int, error) {
	if row, ok := c.cachedNextRow(sheet); ok {
		return row, nil
	}
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get sheet dimensions for %s: %w", sheet, err)
	}
	c.storeRowCount(sheet, len(resp.Values))
	return len(resp.Values) + 1, nil
}

// AppendSummary writes row to the "<year> <base>" sheet and returns its A1 range.
func (c *Client) AppendSummary(ctx context.Context, row ports.SummaryRow) (string, error) {
	if err := validateRow(row); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	year, _ := row.Month.YearMonth()
	sheet := c.sheetName(year)
	next, err := c.nextRow(ctx, sheet)
	if err != nil {
		return "", err
	}

	ref := fmt.Sprintf("%s!A%d:J%d", sheet, next, next)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(row)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		c.invalidateRowCache()
		return "", fmt.Errorf("update %s: %w", ref, err)
	}
	c.storeRowCount(sheet, next)

	slog.InfoContext(ctx, "Exported zero-based summary",
		"plan", row.PlanName,
		"month", row.Month,
		"sheets_ref", ref)
	return ref, nil
}

// ListSummaries reads every exported row of the year's sheet.
func (c *Client) ListSummaries(ctx context.Context, year int) ([]ports.SummaryRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:J", c.sheetName(year))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	c.storeRowCount(c.sheetName(year), len(resp.Values))
	return parseSummaryRows(resp.Values), nil
}

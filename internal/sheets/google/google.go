package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cashflow/internal/cache"
	"cashflow/internal/core"
	"cashflow/internal/log"
	ports "cashflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultLedgerBase = "Interest Ledger"
	rowCacheSize      = 1024
	rowCacheTTL       = 6 * time.Hour
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Interest Ledger"); the snapshot's year is prefixed.
	ledgerBase string
	// Snapshot ID to row range of rows this process has written or seen.
	rows *cache.LRUCache[string]

	// Serialises the read-check-append sequence in AppendSnapshot.
	appendMu sync.Mutex

	logger *log.Logger
}

var _ ports.SnapshotWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, spreadsheetID, ledgerBase string) (*Client, error) {
	creds, err := serviceAccountJSON(ctx)
	if err != nil {
		return nil, err
	}
	return newClient(ctx, spreadsheetID, ledgerBase,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func newClient(ctx context.Context, spreadsheetID, ledgerBase string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(ledgerBase) == "" {
		ledgerBase = defaultLedgerBase
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerBase:    strings.TrimSpace(ledgerBase),
		rows:          cache.NewLRUCache[string](rowCacheSize, rowCacheTTL),
		logger:        log.Default(log.ComponentSheets),
	}, nil
}

// serviceAccountJSON loads credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func serviceAccountJSON(ctx context.Context) ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		log.Default(log.ComponentSheets).InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	}

	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	log.Default(log.ComponentSheets).InfoContext(ctx, "Read service account credentials", "path", path, "size", len(data))
	return data, nil
}

// AppendSnapshot adds the snapshot to the ledger sheet of its year. A snapshot
// whose ID is already in column A is not written again; its existing row is
// returned instead.
func (c *Client) AppendSnapshot(ctx context.Context, s core.DebtMonthlySnapshot) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if s.ID == "" {
		return "", errors.New("snapshot without id")
	}

	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	if ref, ok := c.rows.Get(s.ID); ok {
		return ref, nil
	}

	sheet := c.ledgerSheetName(s.YearMonth.Year)
	ids, err := c.readIDColumn(ctx, sheet)
	if err != nil {
		return "", err
	}
	if row := rowOf(ids, s.ID); row > 0 {
		c.logger.InfoContext(ctx, "Snapshot already in ledger", log.FieldSnapshotID, s.ID, "sheet", sheet, "row", row)
		ref := rowRef(sheet, row)
		c.rows.Set(s.ID, ref)
		return ref, nil
	}

	var values [][]any
	if len(ids) == 0 {
		values = append(values, toRow(ports.LedgerHeader))
	}
	values = append(values, toRow(ports.LedgerRow(s)))

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:H", &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	ref := rowRef(sheet, len(ids)+len(values))
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.rows.Set(s.ID, ref)
	return ref, nil
}

func (c *Client) readIDColumn(ctx context.Context, sheet string) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return ids, nil
}

func (c *Client) ledgerSheetName(year int) string {
	return yearPrefixedName(c.ledgerBase, year)
}

// rowOf returns the 1-based sheet row holding id, or 0.
func rowOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
}

func toRow(cols []string) []any {
	row := make([]any, len(cols))
	for i, v := range cols {
		row[i] = v
	}
	return row
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

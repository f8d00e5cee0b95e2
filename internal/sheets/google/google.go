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

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetshare/internal/core"
	"budgetshare/internal/sheets"
)

// Columns A..I of the export sheet.
var header = []any{"ID", "Date", "Description", "Kind", "Category", "Amount", "Signed", "Version", "Updated"}

const lastColumn = "I"

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string

	// A user OAuth token is used when no service account is set. The token
	// file is written by budgetshare-sheets-auth.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string
}

// Exporter writes one row per transaction, column A holding the ID.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// Serializes find-then-write so concurrent exports of one ID do not
	// append duplicate rows.
	mu      sync.Mutex
	sheetID *int64
}

var _ sheets.Exporter = (*Exporter)(nil)

// New creates an exporter authenticated with a service account, or with a
// saved OAuth token when no service account is configured.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	auth, method, err := clientAuth(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Creating Google Sheets service",
		"auth", method,
		"scope", gsheet.SpreadsheetsScope)
	svc, err := gsheet.NewService(ctx, auth, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newExporter(svc, cfg), nil
}

func newExporter(svc *gsheet.Service, cfg Config) *Exporter {
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = "Transactions"
	}
	return &Exporter{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: name}
}

func clientAuth(ctx context.Context, cfg Config) (goption.ClientOption, string, error) {
	sa, err := readSecret(cfg.ServiceAccountJSON, cfg.ServiceAccountFile, "service account")
	if err != nil {
		return nil, "", err
	}
	if sa != nil {
		return goption.WithCredentialsJSON(sa), "service_account", nil
	}

	client, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile, "OAuth client")
	if err != nil {
		return nil, "", err
	}
	if client != nil && cfg.OAuthTokenFile != "" {
		oc, err := OAuthConfig(client, "")
		if err != nil {
			return nil, "", err
		}
		tok, err := LoadToken(cfg.OAuthTokenFile)
		if err != nil {
			return nil, "", err
		}
		return goption.WithTokenSource(oc.TokenSource(ctx, tok)), "oauth", nil
	}
	return nil, "", errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON/FILE, or GOOGLE_OAUTH_CLIENT_JSON/FILE with GOOGLE_OAUTH_TOKEN_FILE)")
}

// readSecret returns inline JSON if set, else the file contents, else nil.
func readSecret(inline, file, what string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return b, nil
	}
	return nil, nil
}

// EnsureHeader writes the header row when A1 is empty.
func (e *Exporter) EnsureHeader(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, err := e.readIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 && strings.TrimSpace(ids[0]) != "" {
		return nil
	}
	return e.writeRow(ctx, 1, header)
}

// Upsert overwrites the row holding tx.ID or appends a new one.
func (e *Exporter) Upsert(ctx context.Context, tx core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.readIDs(ctx)
	if err != nil {
		return err
	}
	row := buildRow(tx)
	if n := findRow(ids, tx.ID); n > 0 {
		if err := e.writeRow(ctx, n, row); err != nil {
			return err
		}
		slog.DebugContext(ctx, "Updated sheet row", "id", tx.ID, "row", n)
		return nil
	}

	rng := fmt.Sprintf("%s!A:%s", e.sheetName, lastColumn)
	_, err = e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", e.sheetName, err)
	}
	slog.DebugContext(ctx, "Appended sheet row", "id", tx.ID)
	return nil
}

// Delete removes the row holding id. A missing row is not an error.
func (e *Exporter) Delete(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.readIDs(ctx)
	if err != nil {
		return err
	}
	n := findRow(ids, id)
	if n == 0 {
		slog.DebugContext(ctx, "Row already absent from sheet", "id", id)
		return nil
	}
	sheetID, err := e.lookupSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(n - 1),
			EndIndex:   int64(n),
			// StartIndex 0 is the zero value and would be dropped otherwise.
			ForceSendFields: []string{"SheetId", "StartIndex"},
		}},
	}}}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d from %s: %w", n, e.sheetName, err)
	}
	return nil
}

func (e *Exporter) readIDs(ctx context.Context) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read IDs from %s: %w", e.sheetName, err)
	}
	return firstColumn(resp.Values), nil
}

func (e *Exporter) writeRow(ctx context.Context, n int, row []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", e.sheetName, n, lastColumn, n)
	_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// lookupSheetID resolves the numeric tab ID needed by batch updates. Cached.
func (e *Exporter) lookupSheetID(ctx context.Context) (int64, error) {
	if e.sheetID != nil {
		return *e.sheetID, nil
	}
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == e.sheetName {
			id := s.Properties.SheetId
			e.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", e.sheetName)
}

func buildRow(tx core.Transaction) []any {
	updated := tx.UpdatedAt
	if updated.IsZero() {
		updated = tx.CreatedAt
	}
	return []any{
		strconv.FormatInt(tx.ID, 10),
		tx.Date.String(),
		tx.Description,
		string(tx.Kind),
		tx.Category,
		tx.Amount.Float(),
		float64(tx.Signed()) / 100.0,
		tx.Version,
		updated.UTC().Format(time.RFC3339),
	}
}

// findRow returns the 1-based row whose first cell is id, or 0.
func findRow(ids []string, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, v := range ids {
		if strings.TrimSpace(v) == want {
			return i + 1
		}
	}
	return 0
}

func firstColumn(values [][]interface{}) []string {
	out := make([]string, len(values))
	for i, row := range values {
		if len(row) > 0 {
			out[i] = fmt.Sprint(row[0])
		}
	}
	return out
}

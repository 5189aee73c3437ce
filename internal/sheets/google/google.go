package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"insight/internal/core"
	"insight/internal/log"
	ports "insight/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultRange is the sheet read when no range is configured.
const DefaultRange = "Financial Data"

// Config selects the spreadsheet and the service account used to read it.
type Config struct {
	SpreadsheetID      string
	Range              string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc    *gsheet.Service
	source ports.SourceRef
	logger *log.Logger
}

// Ensure interface conformance
var _ ports.RowFetcher = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
// Credentials come from Config, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	rng := cfg.Range
	if strings.TrimSpace(rng) == "" {
		rng = DefaultRange
	}
	if logger == nil {
		logger = log.NewDefault()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, creds, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, source: ports.SourceRef{SpreadsheetID: id, Range: rng}, logger: logger}, nil
}

func credentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newSheetsService initializes a read-only Sheets service from service account JSON.
func newSheetsService(ctx context.Context, credentialsJSON []byte, logger *log.Logger) (*gsheet.Service, error) {
	logger.DebugContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsReadonlyScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Source returns the spreadsheet and range this client reads.
func (c *Client) Source() ports.SourceRef {
	return c.source
}

// FetchRows reads the whole configured range. Formatted values are requested
// so amounts arrive in the same accounting form a user sees in the sheet.
func (c *Client) FetchRows(ctx context.Context) ([]core.RawRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.source.SpreadsheetID, c.source.Range).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.source.Range, err)
	}

	rows := toRawRows(resp.Values)
	if len(rows) == 0 {
		return nil, fmt.Errorf("read %s: %w", c.source.Range, core.ErrEmptySource)
	}
	c.logger.DebugContext(ctx, "Fetched sheet rows",
		log.FieldSpreadsheetID, c.source.SpreadsheetID,
		log.FieldRange, c.source.Range,
		log.FieldRowCount, len(rows))
	return rows, nil
}

// toRawRows stringifies every cell. The API omits trailing empty cells, so
// rows may be shorter than the header.
func toRawRows(values [][]interface{}) []core.RawRow {
	out := make([]core.RawRow, 0, len(values))
	for _, row := range values {
		out = append(out, toStrings(row))
	}
	return out
}

func toStrings(in []interface{}) core.RawRow {
	out := make(core.RawRow, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"sheetpipe/internal/ingest"
	ports "sheetpipe/internal/sheets"
)

// Client reads one spreadsheet range as an import table.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

var _ ports.TableReader = (*Client)(nil)

// Options configures the sheets client. Exactly one of CredentialsFile or
// CredentialsJSON must be set.
type Options struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
	CredentialsJSON string
}

// NewClient creates a read-only Sheets client from service account
// credentials.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(opts.Range) == "" {
		return nil, errors.New("missing sheet range")
	}

	credentialsJSON, err := resolveCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		readRange:     opts.Range,
	}, nil
}

func resolveCredentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

// ReadTable fetches the configured range and converts the values matrix to
// a table: first row is the header, blank rows are dropped.
func (c *Client) ReadTable(ctx context.Context) (ingest.Table, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		return ingest.Table{}, fmt.Errorf("read range %s: %w", c.readRange, err)
	}

	return tableFromValues(resp.Values)
}

// Source names the spreadsheet range for the job ledger.
func (c *Client) Source() string {
	return fmt.Sprintf("sheets:%s!%s", c.spreadsheetID, c.readRange)
}

package sheets

import (
	"context"

	"sheetpipe/internal/ingest"
)

// TableReader is the inbound port for pull-based sources: anything that can
// produce a header row plus data rows, ready for the ingest pipeline.
type TableReader interface {
	// ReadTable fetches the source and returns it as a table.
	ReadTable(ctx context.Context) (ingest.Table, error)

	// Source names the origin for the job ledger, e.g. a spreadsheet range.
	Source() string
}

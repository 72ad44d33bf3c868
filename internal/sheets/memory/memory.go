// Package memory provides a canned table source for tests and local
// development without Google credentials.
package memory

import (
	"context"

	"sheetpipe/internal/ingest"
	ports "sheetpipe/internal/sheets"
)

type Reader struct {
	table ingest.Table
	name  string
}

var _ ports.TableReader = (*Reader)(nil)

func New(name string, table ingest.Table) *Reader {
	return &Reader{table: table, name: name}
}

func (r *Reader) ReadTable(_ context.Context) (ingest.Table, error) {
	return r.table, nil
}

func (r *Reader) Source() string {
	return r.name
}

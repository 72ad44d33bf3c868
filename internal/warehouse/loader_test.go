package warehouse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sheetpipe/internal/core"
)

func TestCopyRowLayout(t *testing.T) {
	columns := []string{"transaction_id", "occurred_on", "amount", "voided"}
	occurred := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rec := core.Record{
		JobID: "job-1",
		Row:   7,
		Fields: map[string]core.FieldValue{
			"transaction_id": core.TextValue("TXN-1"),
			"occurred_on":    core.DateValue(occurred),
			"amount":         core.DecimalValue(decimal.RequireFromString("19.99")),
			"voided":         core.BoolValue(false),
		},
	}

	row := copyRow(columns, rec)

	if len(row) != len(columns)+2 {
		t.Fatalf("row has %d values, want %d", len(row), len(columns)+2)
	}
	if row[0] != "job-1" || row[1] != 7 {
		t.Errorf("provenance = %v, %v; want job-1, 7", row[0], row[1])
	}
	if row[2] != "TXN-1" {
		t.Errorf("transaction_id = %v, want TXN-1", row[2])
	}
	if got, ok := row[3].(time.Time); !ok || !got.Equal(occurred) {
		t.Errorf("occurred_on = %v, want %v", row[3], occurred)
	}
	if got, ok := row[4].(decimal.Decimal); !ok || !got.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("amount = %v, want 19.99", row[4])
	}
	if row[5] != false {
		t.Errorf("voided = %v, want false", row[5])
	}
}

func TestCopyRowMissingFieldIsNull(t *testing.T) {
	columns := []string{"transaction_id", "customer_id", "description"}

	rec := core.Record{
		JobID: "job-2",
		Row:   1,
		Fields: map[string]core.FieldValue{
			"transaction_id": core.TextValue("TXN-2"),
		},
	}

	row := copyRow(columns, rec)

	if row[3] != nil {
		t.Errorf("customer_id = %v, want nil", row[3])
	}
	if row[4] != nil {
		t.Errorf("description = %v, want nil", row[4])
	}
}

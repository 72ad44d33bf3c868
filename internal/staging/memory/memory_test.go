package memory

import (
	"context"
	"testing"

	"sheetpipe/internal/core"
)

func rec(jobID string, row int) core.RawRecord {
	return core.RawRecord{
		JobID:      jobID,
		Dataset:    "transactions",
		Row:        row,
		SourceFile: "t.csv",
		Headers:    []string{"id"},
		Values:     []string{"x"},
	}
}

func TestStageAndFetchOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Stage out of order; fetch must come back sorted by row.
	if err := s.StageRecords(ctx, []core.RawRecord{rec("j1", 3), rec("j1", 1), rec("j1", 2)}); err != nil {
		t.Fatalf("stage: %v", err)
	}

	batch, err := s.FetchBatch(ctx, "transactions", "j1", 0, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 records, got %d", len(batch))
	}
	for i, r := range batch {
		if r.Row != i+1 {
			t.Errorf("position %d has row %d, want %d", i, r.Row, i+1)
		}
	}
}

func TestFetchBatchPagination(t *testing.T) {
	s := New()
	ctx := context.Background()

	var records []core.RawRecord
	for i := 1; i <= 5; i++ {
		records = append(records, rec("j1", i))
	}
	if err := s.StageRecords(ctx, records); err != nil {
		t.Fatalf("stage: %v", err)
	}

	first, err := s.FetchBatch(ctx, "transactions", "j1", 0, 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(first) != 2 || first[1].Row != 2 {
		t.Fatalf("unexpected first batch: %+v", first)
	}

	second, err := s.FetchBatch(ctx, "transactions", "j1", first[len(first)-1].Row, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(second) != 3 || second[0].Row != 3 {
		t.Fatalf("unexpected second batch: %+v", second)
	}

	drained, err := s.FetchBatch(ctx, "transactions", "j1", 5, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(drained) != 0 {
		t.Errorf("expected drained job, got %d records", len(drained))
	}
}

func TestCountAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.StageRecords(ctx, []core.RawRecord{rec("j1", 1), rec("j1", 2)}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	n, err := s.CountJob(ctx, "transactions", "j1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	if err := s.DeleteJob(ctx, "transactions", "j1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, _ = s.CountJob(ctx, "transactions", "j1")
	if n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

func TestStageRejectsMixedDatasets(t *testing.T) {
	s := New()
	bad := rec("j1", 2)
	bad.Dataset = "customers"
	err := s.StageRecords(context.Background(), []core.RawRecord{rec("j1", 1), bad})
	if err == nil {
		t.Fatal("expected error for mixed datasets")
	}
}

func TestStageRejectsInvalidRecord(t *testing.T) {
	s := New()
	invalid := rec("j1", 0) // row 0 is invalid
	if err := s.StageRecords(context.Background(), []core.RawRecord{invalid}); err == nil {
		t.Fatal("expected validation error")
	}
}

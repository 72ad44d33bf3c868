package worker

import (
	"context"
	"errors"
	"testing"

	"sheetpipe/internal/core"
	"sheetpipe/internal/mapping"
	"sheetpipe/internal/staging/memory"
)

type fakeWarehouse struct {
	statuses []core.JobStatus
	counts   core.JobCounts
	loaded   []core.Record
	deletes  int
	errMsg   string
}

func (f *fakeWarehouse) UpdateJobStatus(_ context.Context, _ string, status core.JobStatus, errMsg string) error {
	f.statuses = append(f.statuses, status)
	if errMsg != "" {
		f.errMsg = errMsg
	}
	return nil
}

func (f *fakeWarehouse) SetJobCounts(_ context.Context, _ string, counts core.JobCounts) error {
	f.counts = counts
	return nil
}

func (f *fakeWarehouse) LoadRecords(_ context.Context, _ core.Dataset, _ []string, records []core.Record) (int64, error) {
	f.loaded = append(f.loaded, records...)
	return int64(len(records)), nil
}

func (f *fakeWarehouse) DeleteJobRows(_ context.Context, _ core.Dataset, _ string) (int64, error) {
	f.deletes++
	return 0, nil
}

func (f *fakeWarehouse) lastStatus() core.JobStatus {
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

func stageRows(t *testing.T, store *memory.Store, jobID string, headers []string, rows [][]string) {
	t.Helper()
	records := make([]core.RawRecord, 0, len(rows))
	for i, values := range rows {
		records = append(records, core.RawRecord{
			JobID:      jobID,
			Dataset:    mapping.DatasetTransactions,
			Row:        i + 1,
			SourceFile: "payments.csv",
			Headers:    headers,
			Values:     values,
		})
	}
	if err := store.StageRecords(context.Background(), records); err != nil {
		t.Fatalf("stage records: %v", err)
	}
}

func TestLoadJobHappyPath(t *testing.T) {
	store := memory.New()
	wh := &fakeWarehouse{}
	loader := NewLoader(store, mapping.NewRegistry(), wh, 2)

	headers := []string{"txn_id", "date", "amount"}
	stageRows(t, store, "job-1", headers, [][]string{
		{"T-1", "2024-03-01", "10.00"},
		{"T-2", "2024-03-02", "20.50"},
		{"T-3", "2024-03-03", "31.99"},
	})

	counts, err := loader.LoadJob(context.Background(), "job-1", mapping.DatasetTransactions)
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}

	if counts.Staged != 3 || counts.Loaded != 3 || counts.Failed != 0 {
		t.Errorf("counts = %+v, want staged 3, loaded 3, failed 0", counts)
	}
	if len(wh.loaded) != 3 {
		t.Errorf("warehouse got %d records, want 3", len(wh.loaded))
	}
	if wh.lastStatus() != core.JobLoaded {
		t.Errorf("last status = %s, want loaded", wh.lastStatus())
	}
	if wh.deletes != 1 {
		t.Errorf("deletes = %d, want 1", wh.deletes)
	}
}

func TestLoadJobPartialFailures(t *testing.T) {
	store := memory.New()
	wh := &fakeWarehouse{}
	loader := NewLoader(store, mapping.NewRegistry(), wh, 10)

	headers := []string{"txn_id", "date", "amount"}
	stageRows(t, store, "job-2", headers, [][]string{
		{"T-1", "2024-03-01", "10.00"},
		{"T-2", "not a date", "20.50"},
		{"T-3", "2024-03-03", "banana"},
	})

	counts, err := loader.LoadJob(context.Background(), "job-2", mapping.DatasetTransactions)
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}

	if counts.Loaded != 1 || counts.Failed != 2 {
		t.Errorf("counts = %+v, want loaded 1, failed 2", counts)
	}
	if wh.lastStatus() != core.JobLoaded {
		t.Errorf("last status = %s, want loaded", wh.lastStatus())
	}
}

func TestLoadJobAllRowsFail(t *testing.T) {
	store := memory.New()
	wh := &fakeWarehouse{}
	loader := NewLoader(store, mapping.NewRegistry(), wh, 10)

	headers := []string{"txn_id", "date", "amount"}
	stageRows(t, store, "job-3", headers, [][]string{
		{"T-1", "nope", "10.00"},
		{"T-2", "also nope", "20.50"},
	})

	_, err := loader.LoadJob(context.Background(), "job-3", mapping.DatasetTransactions)
	if !errors.Is(err, ErrNoLoadableRows) {
		t.Fatalf("err = %v, want ErrNoLoadableRows", err)
	}
	if wh.lastStatus() != core.JobFailed {
		t.Errorf("last status = %s, want failed", wh.lastStatus())
	}
}

func TestLoadJobMissingRequiredColumn(t *testing.T) {
	store := memory.New()
	wh := &fakeWarehouse{}
	loader := NewLoader(store, mapping.NewRegistry(), wh, 10)

	// No amount column anywhere in the header row.
	headers := []string{"txn_id", "date", "notes"}
	stageRows(t, store, "job-4", headers, [][]string{
		{"T-1", "2024-03-01", "hello"},
	})

	_, err := loader.LoadJob(context.Background(), "job-4", mapping.DatasetTransactions)
	if !errors.Is(err, ErrNoLoadableRows) {
		t.Fatalf("err = %v, want ErrNoLoadableRows", err)
	}
	if wh.lastStatus() != core.JobFailed {
		t.Errorf("last status = %s, want failed", wh.lastStatus())
	}
	if wh.errMsg == "" {
		t.Error("job error message should name the failure")
	}
}

func TestLoadJobNoStagedRows(t *testing.T) {
	store := memory.New()
	wh := &fakeWarehouse{}
	loader := NewLoader(store, mapping.NewRegistry(), wh, 10)

	_, err := loader.LoadJob(context.Background(), "job-5", mapping.DatasetTransactions)
	if !errors.Is(err, ErrNoLoadableRows) {
		t.Fatalf("err = %v, want ErrNoLoadableRows", err)
	}
}

func TestLoadJobUnknownDataset(t *testing.T) {
	store := memory.New()
	wh := &fakeWarehouse{}
	loader := NewLoader(store, mapping.NewRegistry(), wh, 10)

	_, err := loader.LoadJob(context.Background(), "job-6", "unicorns")
	if !errors.Is(err, mapping.ErrUnknownDataset) {
		t.Fatalf("err = %v, want ErrUnknownDataset", err)
	}
}

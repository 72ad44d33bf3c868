// Package memory implements the staging RecordStore in process memory, for
// tests and single-node development without a MongoDB instance.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sheetpipe/internal/core"
	"sheetpipe/internal/staging"
)

// Store keeps staged records grouped by dataset and job.
type Store struct {
	mu      sync.Mutex
	records map[core.Dataset]map[string][]core.RawRecord
}

var _ staging.RecordStore = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[core.Dataset]map[string][]core.RawRecord)}
}

func (s *Store) StageRecords(_ context.Context, records []core.RawRecord) error {
	if len(records) == 0 {
		return nil
	}
	dataset := records[0].Dataset
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid record at row %d: %w", r.Row, err)
		}
		if r.Dataset != dataset {
			return fmt.Errorf("mixed datasets in one batch: %s and %s", dataset, r.Dataset)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byJob, ok := s.records[dataset]
	if !ok {
		byJob = make(map[string][]core.RawRecord)
		s.records[dataset] = byJob
	}
	jobID := records[0].JobID
	byJob[jobID] = append(byJob[jobID], records...)
	sort.Slice(byJob[jobID], func(i, j int) bool {
		return byJob[jobID][i].Row < byJob[jobID][j].Row
	})
	return nil
}

func (s *Store) FetchBatch(_ context.Context, dataset core.Dataset, jobID string, afterRow, limit int) ([]core.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.RawRecord
	for _, r := range s.records[dataset][jobID] {
		if r.Row <= afterRow {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountJob(_ context.Context, dataset core.Dataset, jobID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records[dataset][jobID])), nil
}

func (s *Store) DeleteJob(_ context.Context, dataset core.Dataset, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[dataset], jobID)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

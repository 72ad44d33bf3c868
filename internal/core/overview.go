package core

import "time"

type (
	// DatasetOverview aggregates ledger data for one dataset, used by the
	// dashboard partials.
	DatasetOverview struct {
		Dataset    Dataset
		JobCount   int
		RowsLoaded int64
		RowsFailed int64
		LastLoaded time.Time
		RecentJobs []ImportJob
	}

	// JobCounts is the row accounting for a single job after mapping.
	JobCounts struct {
		Staged int
		Loaded int
		Failed int
	}
)

// Empty reports whether the overview has no jobs at all.
func (o DatasetOverview) Empty() bool {
	return o.JobCount == 0
}

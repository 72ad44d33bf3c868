package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Job lifecycle. A job moves strictly forward; Failed is terminal.
	JobReceived JobStatus = "received"
	JobStaged   JobStatus = "staged"
	JobLoading  JobStatus = "loading"
	JobLoaded   JobStatus = "loaded"
	JobFailed   JobStatus = "failed"
)

type (
	JobStatus string

	// Dataset is a logical destination for imported rows. Each dataset has
	// one staging collection and one warehouse table.
	Dataset string

	// RawRecord is a single parsed source row before mapping: the header
	// cells as seen in the file plus the value cells, with provenance.
	RawRecord struct {
		JobID      string
		Dataset    Dataset
		Row        int // 1-based row number in the source file, header excluded
		SourceFile string
		Headers    []string
		Values     []string
	}

	// Record is a mapped row: canonical field name to typed value.
	Record struct {
		JobID  string
		Row    int
		Fields map[string]FieldValue
	}

	// FieldValue holds exactly one of the typed slots depending on Kind.
	FieldValue struct {
		Kind    FieldKind
		Text    string
		Number  decimal.Decimal
		Integer int64
		Date    time.Time
		Bool    bool
	}

	FieldKind string

	// ImportJob is the ledger entry for one upload (or sheet pull).
	ImportJob struct {
		ID         string
		Dataset    Dataset
		SourceFile string
		Status     JobStatus
		RowsStaged int
		RowsLoaded int
		RowsFailed int
		Error      string
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}
)

const (
	FieldText    FieldKind = "text"
	FieldDecimal FieldKind = "decimal"
	FieldInteger FieldKind = "integer"
	FieldDate    FieldKind = "date"
	FieldBool    FieldKind = "bool"
)

var (
	ErrEmptyDataset    = errors.New("empty dataset")
	ErrEmptyJobID      = errors.New("empty job id")
	ErrEmptySourceFile = errors.New("empty source file")
	ErrInvalidRow      = errors.New("invalid row number")
	ErrNoValues        = errors.New("record has no values")
	ErrInvalidStatus   = errors.New("invalid job status")
)

// IsValid reports whether s is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobReceived, JobStaged, JobLoading, JobLoaded, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobLoaded || s == JobFailed
}

func (d Dataset) Validate() error {
	if strings.TrimSpace(string(d)) == "" {
		return ErrEmptyDataset
	}
	return nil
}

// String returns the collection/table-safe name of the dataset.
func (d Dataset) String() string {
	return string(d)
}

func (r RawRecord) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return ErrEmptyJobID
	}
	if err := r.Dataset.Validate(); err != nil {
		return err
	}
	if r.Row < 1 {
		return ErrInvalidRow
	}
	if len(r.Values) == 0 {
		return ErrNoValues
	}
	return nil
}

// IsBlank reports whether every value cell is empty after trimming.
func (r RawRecord) IsBlank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (j ImportJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return ErrEmptyJobID
	}
	if err := j.Dataset.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(j.SourceFile) == "" {
		return ErrEmptySourceFile
	}
	if !j.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// TextValue builds a text field value.
func TextValue(s string) FieldValue {
	return FieldValue{Kind: FieldText, Text: s}
}

// DecimalValue builds a decimal field value.
func DecimalValue(d decimal.Decimal) FieldValue {
	return FieldValue{Kind: FieldDecimal, Number: d}
}

// IntegerValue builds an integer field value.
func IntegerValue(i int64) FieldValue {
	return FieldValue{Kind: FieldInteger, Integer: i}
}

// DateValue builds a date field value.
func DateValue(t time.Time) FieldValue {
	return FieldValue{Kind: FieldDate, Date: t}
}

// BoolValue builds a bool field value.
func BoolValue(b bool) FieldValue {
	return FieldValue{Kind: FieldBool, Bool: b}
}

// Interface returns the Go value carried by the field, typed by Kind.
// It is what gets handed to database drivers.
func (v FieldValue) Interface() any {
	switch v.Kind {
	case FieldDecimal:
		return v.Number
	case FieldInteger:
		return v.Integer
	case FieldDate:
		return v.Date
	case FieldBool:
		return v.Bool
	default:
		return v.Text
	}
}

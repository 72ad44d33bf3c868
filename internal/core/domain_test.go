package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestJobStatusIsValid(t *testing.T) {
	valid := []JobStatus{JobReceived, JobStaged, JobLoading, JobLoaded, JobFailed}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if JobStatus("done").IsValid() {
		t.Error("unknown status should not be valid")
	}
	if JobStatus("").IsValid() {
		t.Error("empty status should not be valid")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if !JobLoaded.Terminal() {
		t.Error("loaded should be terminal")
	}
	if !JobFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if JobLoading.Terminal() {
		t.Error("loading should not be terminal")
	}
	if JobReceived.Terminal() {
		t.Error("received should not be terminal")
	}
}

func TestRawRecordValidate(t *testing.T) {
	good := RawRecord{
		JobID:   "job-1",
		Dataset: "transactions",
		Row:     1,
		Headers: []string{"amount"},
		Values:  []string{"12.50"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	tests := []struct {
		name string
		mod  func(r *RawRecord)
		want error
	}{
		{"missing job id", func(r *RawRecord) { r.JobID = "  " }, ErrEmptyJobID},
		{"missing dataset", func(r *RawRecord) { r.Dataset = "" }, ErrEmptyDataset},
		{"zero row", func(r *RawRecord) { r.Row = 0 }, ErrInvalidRow},
		{"no values", func(r *RawRecord) { r.Values = nil }, ErrNoValues},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := good
			tt.mod(&r)
			if err := r.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRawRecordIsBlank(t *testing.T) {
	r := RawRecord{Values: []string{"", "  ", "\t"}}
	if !r.IsBlank() {
		t.Error("all-whitespace record should be blank")
	}
	r.Values = []string{"", "x"}
	if r.IsBlank() {
		t.Error("record with a value should not be blank")
	}
}

func TestImportJobValidate(t *testing.T) {
	job := ImportJob{
		ID:         "4b8c",
		Dataset:    "customers",
		SourceFile: "customers-2024.csv",
		Status:     JobReceived,
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}

	job.Status = "bogus"
	if err := job.Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}

	job.Status = JobReceived
	job.SourceFile = ""
	if err := job.Validate(); !errors.Is(err, ErrEmptySourceFile) {
		t.Errorf("expected ErrEmptySourceFile, got %v", err)
	}
}

func TestFieldValueInterface(t *testing.T) {
	d := decimal.RequireFromString("19.99")
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value FieldValue
		want  any
	}{
		{"text", TextValue("hello"), "hello"},
		{"decimal", DecimalValue(d), d},
		{"integer", IntegerValue(42), int64(42)},
		{"date", DateValue(when), when},
		{"bool", BoolValue(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.value.Interface()
			if dd, ok := tt.want.(decimal.Decimal); ok {
				if !got.(decimal.Decimal).Equal(dd) {
					t.Errorf("expected %v, got %v", dd, got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

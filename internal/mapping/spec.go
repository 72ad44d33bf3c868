// Package mapping resolves messy spreadsheet columns to canonical dataset
// fields. A Schema declares, per field, the ordered alias chain that used to
// live in ad-hoc per-script lookups; resolution happens once per file and the
// resulting Plan is applied to every row.
package mapping

import (
	"errors"
	"fmt"

	"sheetpipe/internal/core"
)

type (
	// FieldSpec declares one canonical field of a dataset.
	FieldSpec struct {
		// Name is the canonical field (and warehouse column) name.
		Name string
		// Aliases are alternative source headers, tried in order after Name.
		// Matching is done on normalized header text.
		Aliases []string
		Kind    core.FieldKind
		// Required columns must be present in the file; required cells must
		// be non-empty unless a Default is declared.
		Required bool
		// Default is a raw value coerced like a cell when the source cell is
		// empty or the column is absent. Empty string means no default.
		Default string
		// AllowEmpty lets an empty cell produce no field instead of an error.
		AllowEmpty bool
	}

	// Schema is the full field list for one dataset.
	Schema struct {
		Dataset core.Dataset
		Fields  []FieldSpec
	}

	// RowError records why a single row could not be mapped.
	RowError struct {
		Row    int
		Field  string
		Reason string
	}
)

var (
	ErrUnknownDataset = errors.New("no schema registered for dataset")
	ErrNoHeaders      = errors.New("file has no header row")
)

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: field %q: %s", e.Row, e.Field, e.Reason)
}

// MissingColumnError reports a required column absent from the header row.
// It fails the whole file at plan time.
type MissingColumnError struct {
	Field   string
	Aliases []string
	Headers []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q not found (aliases %v) in headers %v",
		e.Field, e.Aliases, e.Headers)
}

// Columns returns the canonical column names of the schema, in declaration
// order. This is the warehouse column order used by the loader.
func (s Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

func (s Schema) Validate() error {
	if err := s.Dataset.Validate(); err != nil {
		return err
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s has no fields", s.Dataset)
	}
	seen := map[string]struct{}{}
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s has a field with no name", s.Dataset)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s declares field %q twice", s.Dataset, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

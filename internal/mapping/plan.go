package mapping

import (
	"sheetpipe/internal/core"
)

type (
	// Plan binds a schema to the concrete header layout of one file.
	// Building it is the only place header text is inspected; applying it is
	// pure index arithmetic.
	Plan struct {
		schema   Schema
		bindings []binding
	}

	binding struct {
		spec FieldSpec
		col  int // -1 when the column is absent from the file
	}
)

// NewPlan resolves every field of the schema against the header row.
// A required field with no matching column fails the whole file here, before
// any row is touched.
func NewPlan(schema Schema, headers []string) (*Plan, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, ErrNoHeaders
	}
	idx := headerIndex(headers)

	bindings := make([]binding, 0, len(schema.Fields))
	for _, spec := range schema.Fields {
		col := resolveColumn(idx, spec)
		if col == -1 && spec.Required && spec.Default == "" {
			return nil, &MissingColumnError{Field: spec.Name, Aliases: spec.Aliases, Headers: headers}
		}
		bindings = append(bindings, binding{spec: spec, col: col})
	}
	return &Plan{schema: schema, bindings: bindings}, nil
}

// resolveColumn finds the source column for a spec: canonical name first,
// then each alias in declaration order.
func resolveColumn(idx map[string]int, spec FieldSpec) int {
	if col, ok := idx[NormalizeHeader(spec.Name)]; ok {
		return col
	}
	for _, alias := range spec.Aliases {
		if col, ok := idx[NormalizeHeader(alias)]; ok {
			return col
		}
	}
	return -1
}

// Schema returns the schema this plan was built from.
func (p *Plan) Schema() Schema {
	return p.schema
}

// Apply maps one raw row. A nil *RowError means the record is complete.
func (p *Plan) Apply(raw core.RawRecord) (core.Record, *RowError) {
	rec := core.Record{
		JobID:  raw.JobID,
		Row:    raw.Row,
		Fields: make(map[string]core.FieldValue, len(p.bindings)),
	}
	for _, b := range p.bindings {
		cell := ""
		if b.col >= 0 && b.col < len(raw.Values) {
			cell = raw.Values[b.col]
		}
		if isEmptyCell(cell) {
			if b.spec.Default != "" {
				cell = b.spec.Default
			} else if b.spec.Required {
				return core.Record{}, &RowError{Row: raw.Row, Field: b.spec.Name, Reason: "required value is empty"}
			} else if b.spec.AllowEmpty || b.col == -1 {
				continue
			} else {
				return core.Record{}, &RowError{Row: raw.Row, Field: b.spec.Name, Reason: "empty value not allowed"}
			}
		}
		value, err := Coerce(cell, b.spec.Kind)
		if err != nil {
			return core.Record{}, &RowError{Row: raw.Row, Field: b.spec.Name, Reason: err.Error()}
		}
		rec.Fields[b.spec.Name] = value
	}
	return rec, nil
}

// ApplyAll maps a batch, splitting it into mapped records and row failures.
// Blank rows are dropped silently; they are filler, not data.
func (p *Plan) ApplyAll(raws []core.RawRecord) ([]core.Record, []RowError) {
	records := make([]core.Record, 0, len(raws))
	var failures []RowError
	for _, raw := range raws {
		if raw.IsBlank() {
			continue
		}
		rec, rowErr := p.Apply(raw)
		if rowErr != nil {
			failures = append(failures, *rowErr)
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

func isEmptyCell(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

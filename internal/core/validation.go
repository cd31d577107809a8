package core

// validation.go re-walks the corrected data block and reports problems.
//
// Validation never stops at the first problem: every row is checked so the
// operator sees everything wrong with a file in one pass. Unknown shift types
// and bad counts are row errors. Missing dates and odd worker names are
// warnings, escalated to errors when the profile runs in strict mode.

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError describes one problem found in a cell.
type ValidationError struct {
	Row     int        `json:"row"`
	Column  int        `json:"column"`
	Field   string     `json:"field"`
	Value   string     `json:"value,omitempty"`
	Message string     `json:"message"`
	Class   EntryClass `json:"class"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult is the outcome of validating a corrected grid.
//
// Warnings holds the validator's own findings. WarningLimitExceeded is set by
// Validate from those; Pipeline.Run recomputes it from every warning of the
// run, the count its maxWarnings check rejects on.
type ValidationResult struct {
	IsValid              bool                         `json:"isValid"`
	Errors               []ValidationError            `json:"errors"`
	Warnings             []ValidationError            `json:"warnings"`
	FieldErrors          map[string][]ValidationError `json:"fieldErrors"`
	WarningLimitExceeded bool                         `json:"warningLimitExceeded"`
}

// Validate checks every data row of a corrected grid against the profile.
// Each problem is also appended to log.
func Validate(grid RawGrid, s *Structure, p *Profile, log *Log) *ValidationResult {
	v := &validator{
		profile: p,
		log:     log,
		mapping: s.Mapping,
		result:  &ValidationResult{FieldErrors: make(map[string][]ValidationError)},
	}
	for r := s.DataStartRow; r < s.DataEndRow && r < len(grid); r++ {
		if isBlankRow(grid[r]) {
			continue
		}
		v.row(grid[r], r)
	}

	res := v.result
	res.IsValid = len(res.Errors) == 0
	res.WarningLimitExceeded = len(res.Warnings) > p.Validation.MaxWarnings
	return res
}

type validator struct {
	profile *Profile
	log     *Log
	mapping ColumnMapping
	result  *ValidationResult

	haveDate bool
}

func (v *validator) row(row []Cell, r int) {
	shiftCol := v.mapping.Fields[FieldShiftType]
	qtyCol := v.mapping.Fields[FieldExpectedCount]
	shift := cellAt(row, shiftCol)
	qty := cellAt(row, qtyCol)

	v.date(row, r)

	// A row with neither shift type nor count only carries a date forward.
	if shift.IsBlank() && qty.IsBlank() {
		return
	}

	if v.profile.IsCancelled(shift.String()) {
		return
	}
	if _, ok := v.profile.ResolveShiftType(shift.String()); !ok {
		msg := fmt.Sprintf("row %d: shift type %q is not one of %s", r+1, shift.String(),
			strings.Join(v.profile.ShiftLabels(), ", "))
		if shift.IsBlank() {
			msg = fmt.Sprintf("row %d: shift type is missing", r+1)
		}
		v.fail(r, shiftCol, FieldShiftType, shift.String(), msg)
	}

	v.quantity(qty, r, qtyCol)
	v.workers(row, r)
}

func (v *validator) date(row []Cell, r int) {
	col := v.mapping.Fields[FieldDate]
	cell := cellAt(row, col)

	if cell.IsBlank() {
		if !v.haveDate || !v.profile.Dates.FillMissing {
			v.warnOrEscalate(r, col, FieldDate, "", fmt.Sprintf("row %d: missing date", r+1))
		}
		return
	}

	t, ok := cellDate(cell, v.profile.Dates.DayFirst)
	if !ok {
		v.haveDate = false
		// Auto-correction already reported the unparseable value.
		if !v.profile.Validation.AutoCorrection {
			v.warnOrEscalate(r, col, FieldDate, cell.String(),
				fmt.Sprintf("row %d: invalid date %q", r+1, cell.String()))
		}
		return
	}
	v.haveDate = true

	d := v.profile.Dates
	if (d.MinYear > 0 && t.Year() < d.MinYear) || (d.MaxYear > 0 && t.Year() > d.MaxYear) {
		v.warnOrEscalate(r, col, FieldDate, cell.String(),
			fmt.Sprintf("row %d: date %s is outside %d-%d", r+1, FormatDate(t), d.MinYear, d.MaxYear))
	}
}

func (v *validator) quantity(cell Cell, r, col int) {
	if cell.IsBlank() {
		return
	}
	n, ok := CellInt(cell)
	if !ok {
		v.fail(r, col, FieldExpectedCount, cell.String(),
			fmt.Sprintf("row %d: expected count %q is not a whole number", r+1, cell.String()))
		return
	}
	q := v.profile.Quantity
	if n < q.Min || n > q.Max {
		v.fail(r, col, FieldExpectedCount, cell.String(),
			fmt.Sprintf("row %d: expected count %d is outside %d-%d", r+1, n, q.Min, q.Max))
	}
}

func (v *validator) workers(row []Cell, r int) {
	wn := v.profile.WorkerNames
	idx := v.profile.index()
	seen := make(map[string]bool)

	for _, col := range v.mapping.WorkerColumns() {
		cell := cellAt(row, col)
		if cell.IsBlank() {
			continue
		}
		if cell.Kind == CellNumber {
			v.warnOrEscalate(r, col, FieldWorkerSlot, cell.String(),
				fmt.Sprintf("row %d: worker cell holds the number %s", r+1, cell.String()))
			continue
		}
		if v.profile.isInvalidName(cell.Str) {
			continue
		}

		name := strings.TrimSpace(cell.Str)
		n := utf8.RuneCountInString(name)
		switch {
		case wn.MinLength > 0 && n < wn.MinLength:
			v.warnOrEscalate(r, col, FieldWorkerSlot, name,
				fmt.Sprintf("row %d: worker name %q is shorter than %d characters", r+1, name, wn.MinLength))
		case wn.MaxLength > 0 && n > wn.MaxLength:
			v.warnOrEscalate(r, col, FieldWorkerSlot, name,
				fmt.Sprintf("row %d: worker name %q is longer than %d characters", r+1, name, wn.MaxLength))
		}
		if idx.namePattern != nil && !idx.namePattern.MatchString(name) {
			v.warnOrEscalate(r, col, FieldWorkerSlot, name,
				fmt.Sprintf("row %d: worker name %q contains characters that are not allowed", r+1, name))
		}

		key := CanonicalWorkerKey(name)
		if seen[key] {
			v.warnOrEscalate(r, col, FieldWorkerSlot, name,
				fmt.Sprintf("row %d: worker %q appears twice in the same shift", r+1, name))
		}
		seen[key] = true
	}
}

func (v *validator) fail(r, col int, field, value, msg string) {
	e := ValidationError{Row: r, Column: col, Field: field, Value: value, Message: msg, Class: ClassRowError}
	v.result.Errors = append(v.result.Errors, e)
	v.result.FieldErrors[field] = append(v.result.FieldErrors[field], e)
	v.log.Error(ClassRowError, r, col, msg, map[string]any{"field": field, "value": value})
}

// warnOrEscalate records a warning, or an error under strict mode.
func (v *validator) warnOrEscalate(r, col int, field, value, msg string) {
	if v.profile.Validation.StrictMode {
		v.fail(r, col, field, value, msg)
		return
	}
	v.result.Warnings = append(v.result.Warnings,
		ValidationError{Row: r, Column: col, Field: field, Value: value, Message: msg, Class: ClassRowWarning})
	v.log.Warning(r, col, msg, map[string]any{"field": field, "value": value})
}

func cellAt(row []Cell, col int) Cell {
	if col < 0 || col >= len(row) {
		return Cell{}
	}
	return row[col]
}

// cellDate reads a date cell: serial numbers and date text are both accepted.
func cellDate(c Cell, dayFirst bool) (time.Time, bool) {
	switch c.Kind {
	case CellNumber:
		return SerialToDate(c.Num)
	case CellText:
		return ParseDateText(c.Str, dayFirst)
	default:
		return time.Time{}, false
	}
}

package core

// canonical.go turns the corrected data block into shift records and
// per-worker statistics, then reconciles them against the totals the
// spreadsheet author declared below the roster.

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Summary describes what a run produced.
type Summary struct {
	DataRows         int    `json:"dataRows"`
	Records          int    `json:"records"`
	Cancelled        int    `json:"cancelled"`
	Skipped          int    `json:"skipped"`
	ExcludedByErrors int    `json:"excludedByErrors"`
	CoverageGaps     int    `json:"coverageGaps"`
	Assignments      int    `json:"assignments"`
	Workers          int    `json:"workers"`
	FirstDate        string `json:"firstDate,omitempty"`
	LastDate         string `json:"lastDate,omitempty"`
	DeclaredTotal    *int   `json:"declaredTotal,omitempty"`
	DeclaredGaps     *int   `json:"declaredNoCoverage,omitempty"`
}

// Canonical is the output of Canonicalize.
type Canonical struct {
	Records     []ShiftRecord          `json:"records"`
	WorkerStats map[string]*WorkerStat `json:"workerStats"`
	Summary     Summary                `json:"summary"`
}

// Canonicalize emits one ShiftRecord per qualifying data row. Cancelled rows,
// rows without a positive expected count and rows already carrying a
// RowError are left out. Coverage mismatches are warnings; disagreement with
// declared totals is a RowError.
func Canonicalize(grid RawGrid, s *Structure, p *Profile, log *Log) *Canonical {
	out := &Canonical{WorkerStats: make(map[string]*WorkerStat)}
	sum := &out.Summary
	errorRows := log.ErrorRows()

	m := s.Mapping
	dateCol := m.Fields[FieldDate]
	shiftCol := m.Fields[FieldShiftType]
	qtyCol := m.Fields[FieldExpectedCount]
	flagCol, hasFlag := m.Optional[FieldNoCoverageFlag]

	var current time.Time
	haveDate := false
	excludedShifts := 0

	for r := s.DataStartRow; r < s.DataEndRow && r < len(grid); r++ {
		row := grid[r]
		if isBlankRow(row) {
			continue
		}
		sum.DataRows++

		// A date cell that cannot be read leaves the row, and the rows
		// carried forward from it, without a date.
		if dateCell := cellAt(row, dateCol); !dateCell.IsBlank() {
			current, haveDate = cellDate(dateCell, p.Dates.DayFirst)
		}

		shift := cellAt(row, shiftCol)
		if p.IsCancelled(shift.String()) {
			sum.Cancelled++
			continue
		}
		expected, ok := CellInt(cellAt(row, qtyCol))
		if !ok || expected <= 0 || !haveDate {
			sum.Skipped++
			continue
		}
		label, ok := p.ResolveShiftType(shift.String())
		if errorRows[r] {
			sum.ExcludedByErrors++
			if ok {
				excludedShifts++
			}
			continue
		}
		if !ok {
			sum.Skipped++
			continue
		}

		workers := rowWorkers(row, m, p)
		rec := ShiftRecord{
			Date:            current,
			ShiftType:       label,
			ExpectedCount:   expected,
			AssignedWorkers: workers,
			HasCoverageGap:  expected > len(workers),
			SourceRow:       r,
		}
		if hasFlag && flagSet(cellAt(row, flagCol)) {
			rec.HasCoverageGap = true
		}

		if len(workers) != expected {
			log.Warning(r, NoPosition,
				fmt.Sprintf("coverage mismatch on %s %s: expected %d, found %d",
					rec.DateKey(), label, expected, len(workers)),
				map[string]any{
					"date":      rec.DateKey(),
					"shiftType": label,
					"expected":  expected,
					"found":     len(workers),
				})
		}
		if rec.HasCoverageGap {
			sum.CoverageGaps++
		}

		for _, w := range workers {
			addWorkerShift(out.WorkerStats, w, rec)
		}
		sum.Assignments += len(workers)
		out.Records = append(out.Records, rec)
	}

	for _, st := range out.WorkerStats {
		sort.Strings(st.Dates)
	}
	sum.Records = len(out.Records)
	sum.Workers = len(out.WorkerStats)
	if n := len(out.Records); n > 0 {
		first, last := out.Records[0].Date, out.Records[0].Date
		for _, rec := range out.Records[1:] {
			if rec.Date.Before(first) {
				first = rec.Date
			}
			if rec.Date.After(last) {
				last = rec.Date
			}
		}
		sum.FirstDate, sum.LastDate = FormatDate(first), FormatDate(last)
	}

	reconcile(s, p, sum, excludedShifts, log)
	return out
}

// rowWorkers collects the worker names of a row in column order, dropping
// placeholders and case-insensitive duplicates.
func rowWorkers(row []Cell, m ColumnMapping, p *Profile) []string {
	var names []string
	seen := make(map[string]bool)
	for _, col := range m.WorkerColumns() {
		c := cellAt(row, col)
		if c.Kind != CellText || p.isInvalidName(c.Str) {
			continue
		}
		name := strings.Join(strings.Fields(c.Str), " ")
		key := CanonicalWorkerKey(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

func addWorkerShift(stats map[string]*WorkerStat, name string, rec ShiftRecord) {
	key := CanonicalWorkerKey(name)
	st, ok := stats[key]
	if !ok {
		st = &WorkerStat{Name: name, ByShiftType: make(map[string]int)}
		stats[key] = st
	}
	st.TotalShifts++
	st.ByShiftType[rec.ShiftType]++

	day := rec.DateKey()
	for _, d := range st.Dates {
		if d == day {
			return
		}
	}
	st.Dates = append(st.Dates, day)
}

// flagSet interprets a NO_COVERAGE_FLAG cell.
func flagSet(c Cell) bool {
	if c.IsBlank() {
		return false
	}
	if c.Kind == CellNumber {
		return c.Num != 0
	}
	switch NormalizeToken(c.Str) {
	case "0", "NO", "N", "FALSE", "FALSO":
		return false
	}
	return true
}

// reconcile compares the run against the trailing TOTAL and no-coverage rows.
// The declared total counts the shift rows of the sheet, so rows excluded for
// their own errors still count towards it.
func reconcile(s *Structure, p *Profile, sum *Summary, excluded int, log *Log) {
	total, hasTotal := s.Marker(MarkerTotal)
	switch {
	case hasTotal && total.Value != nil:
		sum.DeclaredTotal = total.Value
		if shifts := sum.Records + excluded; *total.Value != shifts {
			msg := fmt.Sprintf("declared total %d does not match %d shift records", *total.Value, shifts)
			if excluded > 0 {
				msg = fmt.Sprintf("declared total %d does not match %d shift rows (%d excluded for errors)",
					*total.Value, shifts, excluded)
			}
			log.Error(ClassRowError, total.Row, NoPosition, msg,
				map[string]any{"declared": *total.Value, "actual": shifts, "excluded": excluded})
		}
	case hasTotal:
		log.Warning(total.Row, NoPosition,
			fmt.Sprintf("row %d: %q has no numeric value", total.Row+1, total.Label), nil)
	}
	if p.Validation.RequireTotals && (!hasTotal || total.Value == nil) {
		log.Error(ClassRowError, NoPosition, NoPosition, "no TOTAL row with a declared value was found",
			map[string]any{"actual": sum.Records})
	}

	if gaps, ok := s.Marker(MarkerNoCoverage); ok && gaps.Value != nil {
		sum.DeclaredGaps = gaps.Value
		if *gaps.Value != sum.CoverageGaps {
			log.Error(ClassRowError, gaps.Row, NoPosition,
				fmt.Sprintf("declared %d services without coverage, found %d", *gaps.Value, sum.CoverageGaps),
				map[string]any{"declared": *gaps.Value, "actual": sum.CoverageGaps})
		}
	}
}

package core

import (
	"strconv"
	"strings"
	"time"
)

// CellKind identifies which variant of the cell union is populated.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
)

func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	default:
		return "empty"
	}
}

// Cell is a single spreadsheet value: a number, a string, or nothing.
// The zero value is an empty cell.
type Cell struct {
	Kind CellKind
	Num  float64
	Str  string
}

// Number returns a numeric cell.
func Number(v float64) Cell { return Cell{Kind: CellNumber, Num: v} }

// Text returns a text cell. Whitespace-only strings stay text; callers that
// want them treated as blank should use IsBlank.
func Text(s string) Cell { return Cell{Kind: CellText, Str: s} }

// Empty returns an empty cell.
func Empty() Cell { return Cell{} }

// IsBlank reports whether the cell is empty or text made only of whitespace.
func (c Cell) IsBlank() bool {
	switch c.Kind {
	case CellEmpty:
		return true
	case CellText:
		return strings.TrimSpace(c.Str) == ""
	default:
		return false
	}
}

// String renders the cell the way a spreadsheet would display it.
// Integral numbers render without a decimal point.
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellText:
		return c.Str
	default:
		return ""
	}
}

// RawGrid is a row-major, 0-indexed grid of cells as produced by a
// spreadsheet reader. Rows may have different lengths.
type RawGrid [][]Cell

// At returns the cell at (row, col), or an empty cell when out of range.
func (g RawGrid) At(row, col int) Cell {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return Cell{}
	}
	return g[row][col]
}

// Clone returns a deep copy of the grid.
func (g RawGrid) Clone() RawGrid {
	out := make(RawGrid, len(g))
	for i, row := range g {
		out[i] = append([]Cell(nil), row...)
	}
	return out
}

// GridFromStrings builds a grid from string rows. Blank strings become empty
// cells and strings that parse as numbers become numeric cells, which is how
// CSV and formatted spreadsheet exports lose their typing.
func GridFromStrings(rows [][]string) RawGrid {
	g := make(RawGrid, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, s := range row {
			cells[j] = CellFromString(s)
		}
		g[i] = cells
	}
	return g
}

// CellFromString infers the cell kind of a raw string value.
func CellFromString(s string) Cell {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Cell{}
	}
	if numericRegex.MatchString(trimmed) {
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Number(v)
		}
	}
	return Text(s)
}

// Semantic field names used in a ColumnMapping.
const (
	FieldDate           = "DATE"
	FieldShiftType      = "SHIFT_TYPE"
	FieldExpectedCount  = "EXPECTED_COUNT"
	FieldWorkerSlot     = "WORKER_SLOT"
	FieldExtraSlot      = "EXTRA_SLOT"
	FieldNoCoverageFlag = "NO_COVERAGE_FLAG"
	FieldNotes          = "NOTES"
)

// ColumnMapping maps semantic fields to column indexes. It is built once per
// file by the structure detector and never mutated afterwards.
type ColumnMapping struct {
	Fields      map[string]int `json:"fields"`
	WorkerSlots []int          `json:"workerSlots"`
	ExtraSlots  []int          `json:"extraSlots,omitempty"`
	Optional    map[string]int `json:"optional,omitempty"`
}

// Column returns the index of a required or optional field.
func (m ColumnMapping) Column(field string) (int, bool) {
	if idx, ok := m.Fields[field]; ok {
		return idx, true
	}
	idx, ok := m.Optional[field]
	return idx, ok
}

// WorkerColumns returns every worker-slot column, regular slots first.
func (m ColumnMapping) WorkerColumns() []int {
	out := make([]int, 0, len(m.WorkerSlots)+len(m.ExtraSlots))
	out = append(out, m.WorkerSlots...)
	return append(out, m.ExtraSlots...)
}

// MarkerKind distinguishes the trailer rows found after the data block.
type MarkerKind string

const (
	MarkerTotal      MarkerKind = "total"
	MarkerNoCoverage MarkerKind = "no_coverage"
)

// Marker is a declared figure in the trailing summary block.
type Marker struct {
	Kind  MarkerKind `json:"kind"`
	Row   int        `json:"row"`
	Label string     `json:"label"`
	Value *int       `json:"value,omitempty"`
}

// Structure describes where the tabular data lives inside a grid.
type Structure struct {
	HeaderRowIndex int           `json:"headerRowIndex"`
	Mapping        ColumnMapping `json:"mapping"`
	DataStartRow   int           `json:"dataStartRow"`
	DataEndRow     int           `json:"dataEndRow"` // exclusive
	Markers        []Marker      `json:"markers,omitempty"`
}

// Marker returns the first trailer marker of the given kind.
func (s *Structure) Marker(kind MarkerKind) (Marker, bool) {
	for _, m := range s.Markers {
		if m.Kind == kind {
			return m, true
		}
	}
	return Marker{}, false
}

// ShiftRecord is the canonical unit produced by an import.
type ShiftRecord struct {
	Date            time.Time `json:"date"`
	ShiftType       string    `json:"shiftType"`
	ExpectedCount   int       `json:"expectedCount"`
	AssignedWorkers []string  `json:"assignedWorkers"`
	HasCoverageGap  bool      `json:"hasCoverageGap"`
	SourceRow       int       `json:"sourceRow"`
}

// DateKey returns the record date as YYYY-MM-DD.
func (r ShiftRecord) DateKey() string {
	return r.Date.Format(isoDate)
}

// WorkerStat aggregates the shifts worked by one canonical worker.
type WorkerStat struct {
	Name        string         `json:"name"`
	TotalShifts int            `json:"totalShifts"`
	ByShiftType map[string]int `json:"byShiftType"`
	Dates       []string       `json:"dates"`
}

// DistinctDates returns the number of different days worked.
func (w *WorkerStat) DistinctDates() int {
	return len(w.Dates)
}

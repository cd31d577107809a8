package core

// correction.go repairs common authoring mistakes in the data block.
//
// Corrections work on a copy of the grid. Dates are rewritten as ISO text,
// shift types as their canonical label, worker names through the profile's
// name policy and textual counts as integers. Only semantic changes reach
// the correction log; format conversions are summarised in one info entry.

import (
	"fmt"
	"strconv"
	"time"
)

// Correct returns a corrected copy of grid. The input grid is not modified.
// When the profile disables auto-correction the copy is returned untouched.
func Correct(grid RawGrid, s *Structure, p *Profile, log *Log) RawGrid {
	out := grid.Clone()
	if !p.Validation.AutoCorrection {
		return out
	}

	c := corrector{profile: p, log: log, mapping: s.Mapping}
	for r := s.DataStartRow; r < s.DataEndRow && r < len(out); r++ {
		if isBlankRow(out[r]) {
			continue
		}
		c.row(out, r)
	}

	if c.serialDates+c.textDates+c.filledDates > 0 {
		log.Info(fmt.Sprintf("converted %d dates to ISO format", c.serialDates+c.textDates), map[string]any{
			"rule":   RuleDateSerial,
			"serial": c.serialDates,
			"text":   c.textDates,
			"filled": c.filledDates,
		})
	}
	return out
}

type corrector struct {
	profile *Profile
	log     *Log
	mapping ColumnMapping

	lastDate    time.Time
	haveDate    bool
	serialDates int
	textDates   int
	filledDates int
}

func (c *corrector) row(g RawGrid, r int) {
	row := g[r]
	if col, ok := c.mapping.Fields[FieldDate]; ok {
		c.date(row, r, col)
	}
	if col, ok := c.mapping.Fields[FieldShiftType]; ok && col < len(row) {
		c.shiftType(row, r, col)
	}
	if col, ok := c.mapping.Fields[FieldExpectedCount]; ok && col < len(row) {
		c.quantity(row, r, col)
	}
	for _, col := range c.mapping.WorkerColumns() {
		if col < len(row) {
			c.workerName(row, r, col)
		}
	}
	g[r] = row
}

func (c *corrector) date(row []Cell, r, col int) {
	var cell Cell
	if col < len(row) {
		cell = row[col]
	}

	switch {
	case cell.Kind == CellNumber:
		t, ok := SerialToDate(cell.Num)
		if !ok {
			c.log.Warning(r, col, fmt.Sprintf("row %d: date serial %s is out of range", r+1, cell.String()),
				map[string]any{"value": cell.String()})
			c.haveDate = false
			return
		}
		row[col] = Text(FormatDate(t))
		c.serialDates++
		c.remember(t)

	case !cell.IsBlank():
		if t, err := time.Parse(isoDate, cell.Str); err == nil {
			c.remember(t)
			return
		}
		t, ok := ParseDateText(cell.Str, c.profile.Dates.DayFirst)
		if !ok {
			c.log.Warning(r, col, fmt.Sprintf("row %d: unparseable date %q left unchanged", r+1, cell.Str),
				map[string]any{"value": cell.Str})
			c.haveDate = false
			return
		}
		row[col] = Text(FormatDate(t))
		c.textDates++
		c.remember(t)

	case c.profile.Dates.FillMissing && c.haveDate && col < len(row):
		row[col] = Text(FormatDate(c.lastDate))
		c.filledDates++
	}
}

func (c *corrector) remember(t time.Time) {
	c.lastDate, c.haveDate = t, true
}

func (c *corrector) shiftType(row []Cell, r, col int) {
	cell := row[col]
	if cell.IsBlank() {
		return
	}
	value := cell.String()
	if c.profile.IsCancelled(value) {
		return
	}
	label, ok := c.profile.ResolveShiftType(value)
	if !ok {
		return
	}
	if IsSemanticChange(value, label, nil) {
		c.log.LogCorrection(RuleShiftTypeSynonym, value, label, r, col)
	}
	row[col] = Text(label)
}

func (c *corrector) workerName(row []Cell, r, col int) {
	cell := row[col]
	if cell.Kind != CellText || c.profile.isInvalidName(cell.Str) {
		return
	}
	name := c.profile.NormalizeWorkerName(cell.Str)
	if name == cell.Str {
		return
	}
	if IsSemanticChange(cell.Str, name, nil) {
		c.log.LogCorrection(RuleWorkerDictionary, cell.Str, name, r, col)
	}
	row[col] = Text(name)
}

func (c *corrector) quantity(row []Cell, r, col int) {
	cell := row[col]
	if cell.Kind != CellText || cell.IsBlank() {
		return
	}
	n, ok := ParseLeadingInt(cell.Str)
	if !ok {
		return
	}
	if naive, ok := ParseNaiveFloat(cell.Str); !ok || naive != float64(n) {
		c.log.LogCorrection(RuleQuantityInteger, cell.Str, strconv.Itoa(n), r, col)
	}
	row[col] = Number(float64(n))
}

// isBlankRow reports whether every cell of the row is blank.
func isBlankRow(row []Cell) bool {
	for _, c := range row {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}

package core

// structure.go locates the tabular block inside a raw grid.
//
// Detection happens in three passes:
//  1. Header search: the first row within maxHeaderRow whose score reaches the
//     profile threshold (+10 per required field, +5 per worker-slot header).
//  2. Mapping: every header cell is claimed by at most one field. A cell
//     claimed twice is a collision and fails the file.
//  3. Trailer search: the data block ends at the first TOTAL marker,
//     no-coverage marker or standalone summary line.

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const defaultSummaryLineMinLength = 15

// Detect finds the header row, builds the column mapping and bounds the data
// block. Structural failures are logged as StructureError entries and
// returned as *StructureError.
func Detect(grid RawGrid, p *Profile, log *Log) (*Structure, error) {
	header, err := findHeader(grid, p)
	if err != nil {
		logStructureError(log, err)
		return nil, err
	}

	mapping, err := buildMapping(grid[header], header, p, log)
	if err != nil {
		logStructureError(log, err)
		return nil, err
	}

	s := &Structure{
		HeaderRowIndex: header,
		Mapping:        mapping,
		DataStartRow:   header + 1,
		DataEndRow:     len(grid),
	}
	for r := s.DataStartRow; r < len(grid); r++ {
		if kind := trailerKind(grid[r], mapping, p); kind != "" {
			s.DataEndRow = r
			break
		}
	}
	s.Markers = collectMarkers(grid, s.DataEndRow, p)

	log.Info("structure detected", map[string]any{
		"headerRow":   header,
		"dataRows":    s.DataEndRow - s.DataStartRow,
		"workerSlots": len(mapping.WorkerSlots) + len(mapping.ExtraSlots),
		"markers":     len(s.Markers),
	})
	return s, nil
}

func logStructureError(log *Log, err error) {
	se, ok := err.(*StructureError)
	if !ok {
		return
	}
	data := map[string]any{"code": string(se.Code)}
	if len(se.Missing) > 0 {
		data["missing"] = se.Missing
	}
	if len(se.InspectedRows) > 0 {
		rows := make([]int, len(se.InspectedRows))
		for i, ir := range se.InspectedRows {
			rows[i] = ir.Row
		}
		data["inspectedRows"] = rows
	}
	log.Error(ClassStructureError, NoPosition, NoPosition, se.Error(), data)
}

func findHeader(grid RawGrid, p *Profile) (int, error) {
	threshold := p.HeaderThreshold()
	limit := min(p.MaxHeaderRow(), len(grid))

	inspected := make([]InspectedRow, 0, limit)
	for r := 0; r < limit; r++ {
		score := scoreRow(grid[r], p, false)
		if score >= threshold {
			return r, nil
		}
		inspected = append(inspected, InspectedRow{Row: r, Score: score, Cells: rowStrings(grid[r])})
	}
	return 0, &StructureError{Code: NoHeaderFound, InspectedRows: inspected, Threshold: threshold}
}

// buildMapping assigns each header cell to the field that claims it.
func buildMapping(row []Cell, headerRow int, p *Profile, log *Log) (ColumnMapping, error) {
	idx := p.index()
	m := ColumnMapping{Fields: make(map[string]int), Optional: make(map[string]int)}

	optionalFields := make([]string, 0, len(idx.optionalSyn))
	for f := range idx.optionalSyn {
		optionalFields = append(optionalFields, f)
	}
	sort.Strings(optionalFields)

	var collisions []ColumnCollision
	for col, c := range row {
		if c.Kind != CellText {
			continue
		}
		tok := NormalizeToken(c.Str)
		if tok == "" {
			continue
		}

		var claims []string
		for _, f := range p.Headers.Required {
			if idx.fieldSyn[f][tok] {
				claims = append(claims, f)
			}
		}
		for _, f := range optionalFields {
			if idx.optionalSyn[f][tok] {
				claims = append(claims, f)
			}
		}
		if isSlotHeader(tok, idx.slotSyn) {
			claims = append(claims, FieldWorkerSlot)
		} else if isSlotHeader(tok, idx.extraSyn) {
			claims = append(claims, FieldExtraSlot)
		}

		switch len(claims) {
		case 0:
			continue
		case 1:
		default:
			collisions = append(collisions, ColumnCollision{Column: col, Header: c.Str, Fields: claims})
			continue
		}

		switch field := claims[0]; field {
		case FieldWorkerSlot:
			m.WorkerSlots = append(m.WorkerSlots, col)
		case FieldExtraSlot:
			m.ExtraSlots = append(m.ExtraSlots, col)
		default:
			target := m.Fields
			if _, required := idx.fieldSyn[field]; !required {
				target = m.Optional
			}
			if first, taken := target[field]; taken {
				log.Warning(headerRow, col,
					fmt.Sprintf("header %q also matches %s; keeping column %d", c.Str, field, first),
					map[string]any{"field": field, "kept": first, "ignored": col})
				continue
			}
			target[field] = col
		}
	}

	if len(collisions) > 0 {
		return ColumnMapping{}, &StructureError{Code: AmbiguousColumns, Collisions: collisions}
	}

	var missing []string
	for _, f := range p.Headers.Required {
		if _, ok := m.Fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return ColumnMapping{}, &StructureError{Code: MissingColumns, Missing: missing}
	}
	return m, nil
}

// isSlotHeader matches a header token against slot synonyms, allowing a
// trailing slot number: "CONDUCTOR", "CONDUCTOR 2", "CONDUCTOR #3".
func isSlotHeader(tok string, synonyms map[string]bool) bool {
	if tok == "" {
		return false
	}
	if synonyms[tok] {
		return true
	}
	base := strings.TrimRight(tok, "0123456789")
	if base == tok || base == "" {
		return false
	}
	base = strings.TrimRight(base, " #.-_")
	return synonyms[base]
}

// trailerKind reports whether a row ends the data block.
func trailerKind(row []Cell, m ColumnMapping, p *Profile) string {
	if kind := markerKind(row, p); kind != "" {
		return string(kind)
	}
	if isSummaryLine(row, m, p) {
		return "summary"
	}
	return ""
}

// markerKind classifies a row by its first non-blank text cell.
func markerKind(row []Cell, p *Profile) MarkerKind {
	label := firstText(row)
	if label == "" {
		return ""
	}
	tok := NormalizeToken(label)
	idx := p.index()
	for _, t := range idx.totals {
		if strings.HasPrefix(tok, t) {
			return MarkerTotal
		}
	}
	for _, nc := range idx.noCoverage {
		if strings.Contains(tok, nc) {
			return MarkerNoCoverage
		}
	}
	return ""
}

// isSummaryLine matches a row holding nothing but one long run of letters,
// such as a signature or a section title below the roster.
func isSummaryLine(row []Cell, m ColumnMapping, p *Profile) bool {
	for _, f := range []string{FieldDate, FieldShiftType} {
		if col, ok := m.Fields[f]; ok && col < len(row) && !row[col].IsBlank() {
			return false
		}
	}

	var lone Cell
	count := 0
	for _, c := range row {
		if c.IsBlank() {
			continue
		}
		count++
		lone = c
	}
	if count != 1 || lone.Kind != CellText {
		return false
	}

	minLen := p.Structure.SummaryLineMinLength
	if minLen <= 0 {
		minLen = defaultSummaryLineMinLength
	}
	text := strings.TrimSpace(lone.Str)
	return isAllLetters(text) && utf8.RuneCountInString(text) >= minLen
}

// collectMarkers records every TOTAL and no-coverage row from the end of the
// data block onwards, with the last numeric value found on the row.
func collectMarkers(grid RawGrid, from int, p *Profile) []Marker {
	var markers []Marker
	for r := from; r < len(grid); r++ {
		kind := markerKind(grid[r], p)
		if kind == "" {
			continue
		}
		mk := Marker{Kind: kind, Row: r, Label: strings.TrimSpace(firstText(grid[r]))}
		for c := len(grid[r]) - 1; c >= 0; c-- {
			if v, ok := CellInt(grid[r][c]); ok {
				mk.Value = &v
				break
			}
		}
		markers = append(markers, mk)
	}
	return markers
}

func firstText(row []Cell) string {
	for _, c := range row {
		if c.Kind == CellText && strings.TrimSpace(c.Str) != "" {
			return c.Str
		}
	}
	return ""
}

func rowStrings(row []Cell) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = c.String()
	}
	return out
}

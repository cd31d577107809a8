package core

import (
	"fmt"
	"strings"
)

// StructureErrorCode identifies why a grid could not be read as a roster.
type StructureErrorCode string

const (
	NoHeaderFound    StructureErrorCode = "NoHeaderFound"
	MissingColumns   StructureErrorCode = "MissingColumns"
	AmbiguousColumns StructureErrorCode = "AmbiguousColumns"
)

// ColumnCollision records two fields that resolved to the same column.
type ColumnCollision struct {
	Column int      `json:"column"`
	Header string   `json:"header"`
	Fields []string `json:"fields"`
}

// StructureError is a terminal failure: no row of the file is processed.
type StructureError struct {
	Code StructureErrorCode `json:"code"`

	// InspectedRows are the grid rows scanned for a header, with their scores.
	InspectedRows []InspectedRow `json:"inspectedRows,omitempty"`

	Missing    []string          `json:"missing,omitempty"`
	Collisions []ColumnCollision `json:"collisions,omitempty"`
	Threshold  int               `json:"threshold,omitempty"`
}

// InspectedRow is one candidate header row and the score it reached.
type InspectedRow struct {
	Row   int      `json:"row"`
	Score int      `json:"score"`
	Cells []string `json:"cells"`
}

func (e *StructureError) Error() string {
	switch e.Code {
	case NoHeaderFound:
		return fmt.Sprintf("no header row found: %d rows inspected, none reached score %d",
			len(e.InspectedRows), e.Threshold)
	case MissingColumns:
		return "missing required column: " + strings.Join(e.Missing, ", ")
	case AmbiguousColumns:
		parts := make([]string, 0, len(e.Collisions))
		for _, c := range e.Collisions {
			parts = append(parts, fmt.Sprintf("column %d (%q) claimed by %s", c.Column, c.Header, strings.Join(c.Fields, " and ")))
		}
		return "ambiguous columns: " + strings.Join(parts, "; ")
	default:
		return "structure error: " + string(e.Code)
	}
}

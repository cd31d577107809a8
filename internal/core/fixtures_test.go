package core

import (
	"testing"
)

// testProfile mirrors the built-in default profile closely enough for the
// stage tests without importing the profiles package.
func testProfile() *Profile {
	return &Profile{
		Name:    DefaultProfileName,
		Version: "1.0.0",
		Headers: HeaderConfig{
			Required: []string{FieldDate, FieldShiftType, FieldExpectedCount},
			Synonyms: map[string][]string{
				FieldDate:          {"FECHA", "DIA"},
				FieldShiftType:     {"TURNO", "TIPO TURNO"},
				FieldExpectedCount: {"CANT", "CANTIDAD"},
			},
			WorkerSlots: []string{"CONDUCTOR"},
			ExtraSlots:  []string{"EXTRA"},
			Optional: map[string][]string{
				FieldNoCoverageFlag: {"SIN COBERTURA"},
				FieldNotes:          {"OBSERVACIONES"},
			},
		},
		Structure: StructureConfig{
			MaxHeaderRow:      10,
			HeaderThreshold:   DefaultHeaderThreshold,
			TotalMarkers:      []string{"TOTAL"},
			NoCoverageMarkers: []string{"SERVICIOS SIN COBERTURA"},
		},
		ShiftTypes: ShiftTypeConfig{
			Match: MatchNormalized,
			Types: []ShiftType{
				{Label: "PRIMER TURNO", Synonyms: []string{"1ER TURNO", "MATUTINO"}},
				{Label: "SEGUNDO TURNO", Synonyms: []string{"2DO TURNO", "VESPERTINO"}},
				{Label: "TERCER TURNO", Synonyms: []string{"3ER TURNO", "NOCTURNO"}},
			},
		},
		CancelledMarkers: []string{"ANULADO"},
		WorkerNames: WorkerNameConfig{
			MinLength:      3,
			MaxLength:      60,
			AllowedPattern: `^[\p{L} .'-]+$`,
			Substitutions:  map[string]string{"VALDES": "VALDEZ"},
			InvalidMarkers: []string{"-", "S/C"},
			TrimSpaces:     true,
			CollapseSpaces: true,
			Case:           CaseUpper,
		},
		Quantity: QuantityConfig{Min: 0, Max: 20},
		Dates:    DateConfig{FillMissing: true, DayFirst: true, MinYear: 2000, MaxYear: 2100},
		Validation: ValidationConfig{
			AllowPartialData: true,
			MaxWarnings:      50,
			AutoCorrection:   true,
		},
	}
}

// registered returns testProfile after registration, with its lookup index built.
func registered(t *testing.T) *Profile {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(DefaultProfileName, testProfile()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p, _ := reg.Lookup(DefaultProfileName)
	return p
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(DefaultProfileName, testProfile()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

var rosterHeader = []string{"FECHA", "TURNO", "CANT", "CONDUCTOR 1", "CONDUCTOR 2"}

// roster builds a grid with a title row, the standard header and rows.
func roster(rows ...[]string) RawGrid {
	all := [][]string{{"ROL DE TURNOS MARZO"}, rosterHeader}
	all = append(all, rows...)
	return GridFromStrings(all)
}

// detect runs structure detection and fails the test on error.
func detect(t *testing.T, grid RawGrid, p *Profile, log *Log) *Structure {
	t.Helper()
	s, err := Detect(grid, p, log)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	return s
}

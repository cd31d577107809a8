package core

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCorrect_Dates(t *testing.T) {
	p := registered(t)
	grid := roster(
		[]string{"45000", "PRIMER TURNO", "1", "Ana Perez"},
		[]string{"", "SEGUNDO TURNO", "1", "Luis Soto"},
		[]string{"16/03/2023", "PRIMER TURNO", "1", "Ana Perez"},
		[]string{"2023-03-17", "PRIMER TURNO", "1", "Ana Perez"},
	)
	log := NewLog(nil)
	s := detect(t, grid, p, log)

	out := Correct(grid, s, p, log)

	want := []string{"2023-03-15", "2023-03-15", "2023-03-16", "2023-03-17"}
	for i, w := range want {
		if got := out.At(s.DataStartRow+i, 0); got.Kind != CellText || got.Str != w {
			t.Errorf("row %d date = %v, want %s", i, got, w)
		}
	}
	if len(log.Corrections()) != 0 {
		t.Errorf("date conversions must not be logged as corrections: %+v", log.Corrections())
	}

	var summary *Entry
	for _, e := range log.Logs() {
		if e.Kind == KindInfo && strings.HasPrefix(e.Message, "converted") {
			summary = &e
		}
	}
	if summary == nil {
		t.Fatal("missing date conversion summary")
	}
	if summary.Data["serial"] != 1 || summary.Data["text"] != 1 || summary.Data["filled"] != 1 {
		t.Errorf("summary data = %v", summary.Data)
	}
}

func TestCorrect_UnparseableDateWarns(t *testing.T) {
	p := registered(t)
	grid := roster([]string{"lunes", "PRIMER TURNO", "1", "Ana Perez"})
	log := NewLog(nil)
	s := detect(t, grid, p, log)

	out := Correct(grid, s, p, log)
	if got := out.At(2, 0).Str; got != "lunes" {
		t.Errorf("date = %q, want it left unchanged", got)
	}
	if w := log.Warnings(); len(w) != 1 || w[0].Row != 2 || w[0].Column != 0 {
		t.Errorf("warnings = %+v", w)
	}
}

func TestCorrect_ShiftTypesAndNames(t *testing.T) {
	p := registered(t)
	grid := roster(
		[]string{"15/03/2023", "1er turno", "2", "Juan Valdes", "  ana   perez "},
		[]string{"15/03/2023", "primer turno", "1", "S/C"},
		[]string{"15/03/2023", "ANULADO", "1", "Juan Valdes"},
	)
	log := NewLog(nil)
	s := detect(t, grid, p, log)

	out := Correct(grid, s, p, log)

	if got := out.At(2, 1).Str; got != "PRIMER TURNO" {
		t.Errorf("synonym = %q", got)
	}
	if got := out.At(3, 1).Str; got != "PRIMER TURNO" {
		t.Errorf("cosmetic label = %q", got)
	}
	if got := out.At(4, 1).Str; got != "ANULADO" {
		t.Errorf("cancelled marker = %q, want untouched", got)
	}
	if got := out.At(2, 3).Str; got != "JUAN VALDEZ" {
		t.Errorf("dictionary name = %q", got)
	}
	if got := out.At(2, 4).Str; got != "ANA PEREZ" {
		t.Errorf("cosmetic name = %q", got)
	}
	if got := out.At(3, 3).Str; got != "S/C" {
		t.Errorf("placeholder = %q, want untouched", got)
	}

	want := []CorrectionGroup{
		{
			Rule:        RuleShiftTypeSynonym,
			Original:    "1er turno",
			Corrected:   "PRIMER TURNO",
			Count:       1,
			Description: `shift_type.synonym: "1er turno" -> "PRIMER TURNO"`,
			Rows:        []int{2},
		},
		{
			Rule:        RuleWorkerDictionary,
			Original:    "Juan Valdes",
			Corrected:   "JUAN VALDEZ",
			Count:       2,
			Description: `worker_name.dictionary: "Juan Valdes" -> "JUAN VALDEZ" (2 times)`,
			Rows:        []int{2, 4},
		},
	}
	if diff := cmp.Diff(want, log.Corrections()); diff != "" {
		t.Errorf("Corrections() mismatch (-want +got):\n%s", diff)
	}
}

func TestCorrect_RepeatedCorrectionIsGrouped(t *testing.T) {
	p := registered(t)
	rows := make([][]string, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, []string{"15/03/2023", "PRIMER TURNO", "1", "Pedro Valdes"})
	}
	log := NewLog(nil)
	grid := roster(rows...)
	s := detect(t, grid, p, log)
	Correct(grid, s, p, log)

	groups := log.Corrections()
	if len(groups) != 1 {
		t.Fatalf("groups = %+v, want one", groups)
	}
	if groups[0].Count != 5 || !strings.HasSuffix(groups[0].Description, "(5 times)") {
		t.Errorf("group = %+v", groups[0])
	}
}

func TestCorrect_Quantity(t *testing.T) {
	p := registered(t)
	grid := roster(
		[]string{"15/03/2023", "PRIMER TURNO", "2 conductores", "Ana Perez", "Luis Soto"},
		[]string{"15/03/2023", "SEGUNDO TURNO", `="1"`, "Ana Perez"},
	)
	log := NewLog(nil)
	s := detect(t, grid, p, log)

	out := Correct(grid, s, p, log)
	if got := out.At(2, 2); got.Kind != CellNumber || got.Num != 2 {
		t.Errorf("count = %v", got)
	}
	if got := out.At(3, 2); got.Kind != CellNumber || got.Num != 1 {
		t.Errorf("formula count = %v", got)
	}
	groups := log.Corrections()
	if len(groups) != 1 || groups[0].Rule != RuleQuantityInteger || groups[0].Corrected != "2" {
		t.Errorf("corrections = %+v, want only the lossy count", groups)
	}
}

func TestCorrect_InputUntouchedAndIdempotent(t *testing.T) {
	p := registered(t)
	grid := roster(
		[]string{"45000", "1er turno", "2 pers", "Juan Valdes", "ana perez"},
		[]string{"", "vespertino", "1", "Luis  Soto"},
	)
	original := grid.Clone()

	log := NewLog(nil)
	s := detect(t, grid, p, log)
	once := Correct(grid, s, p, log)

	if diff := cmp.Diff(original, grid); diff != "" {
		t.Errorf("input grid modified (-before +after):\n%s", diff)
	}

	second := NewLog(nil)
	twice := Correct(once, s, p, second)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second pass changed the grid (-once +twice):\n%s", diff)
	}
	if n := len(second.Corrections()); n != 0 {
		t.Errorf("second pass logged %d corrections", n)
	}
}

func TestCorrect_Disabled(t *testing.T) {
	reg := testRegistry(t)
	p, err := reg.DeriveProfile(DefaultProfileName, map[string]any{
		"validation": map[string]any{"autoCorrection": false},
	}, "raw")
	if err != nil {
		t.Fatal(err)
	}
	grid := roster([]string{"45000", "1er turno", "1", "Juan Valdes"})
	log := NewLog(nil)
	s := detect(t, grid, p, log)
	before := log.Len()

	out := Correct(grid, s, p, log)
	if diff := cmp.Diff(grid, out); diff != "" {
		t.Errorf("disabled correction changed the grid:\n%s", diff)
	}
	if log.Len() != before {
		t.Error("disabled correction logged entries")
	}
}

func TestIsSemanticChange(t *testing.T) {
	tests := []struct {
		original, corrected string
		want                bool
	}{
		{"ana perez", "ANA PEREZ", false},
		{"  Ana   Perez ", "ANA PEREZ", false},
		{"Juan Valdes", "JUAN VALDEZ", true},
		{"1er turno", "PRIMER TURNO", true},
	}
	for _, tt := range tests {
		if got := IsSemanticChange(tt.original, tt.corrected, nil); got != tt.want {
			t.Errorf("IsSemanticChange(%q, %q) = %v, want %v", tt.original, tt.corrected, got, tt.want)
		}
	}
}

func TestNormalizeWorkerName(t *testing.T) {
	p := registered(t)
	tests := map[string]string{
		"juan valdes":       "JUAN VALDEZ",
		"  maría   josé  ":  "MARÍA JOSÉ",
		"Valdesillo Rojas":  "VALDESILLO ROJAS",
		"ana VALDES soto":   "ANA VALDEZ SOTO",
	}
	for in, want := range tests {
		if got := p.NormalizeWorkerName(in); got != want {
			t.Errorf("NormalizeWorkerName(%q) = %q, want %q", in, got, want)
		}
	}
}

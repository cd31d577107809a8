// Package profiles defines the built-in roster profiles and loads extra
// profiles from disk into a core.Registry.
package profiles

import (
	"github.com/cockroachdb/errors"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

// Names of the built-in profiles, in registration order.
const (
	Default    = core.DefaultProfileName
	Strict     = "strict"
	Permissive = "permissive"
	Legacy     = "legacy"
)

// RegisterBuiltins registers default, strict, permissive and legacy.
// The last three are derived from default.
func RegisterBuiltins(reg *core.Registry) error {
	if err := reg.Register(Default, DefaultProfile()); err != nil {
		return errors.Wrap(err, "register built-in profiles")
	}
	derived := []struct {
		name      string
		overrides map[string]any
	}{
		{Strict, strictOverrides()},
		{Permissive, permissiveOverrides()},
		{Legacy, legacyOverrides()},
	}
	for _, d := range derived {
		if _, err := reg.DeriveProfile(Default, d.overrides, d.name); err != nil {
			return errors.Wrap(err, "register built-in profiles")
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in profiles.
func NewRegistry() (*core.Registry, error) {
	reg := core.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// DefaultProfile is the balanced profile used when nothing else is asked for.
func DefaultProfile() *core.Profile {
	return &core.Profile{
		Name:        Default,
		Version:     "1.0.0",
		Description: "Balanced profile for monthly driver rosters",
		Headers: core.HeaderConfig{
			Required: []string{core.FieldDate, core.FieldShiftType, core.FieldExpectedCount},
			Synonyms: map[string][]string{
				core.FieldDate:          {"FECHA", "DIA", "DÍA", "DATE"},
				core.FieldShiftType:     {"TURNO", "TIPO TURNO", "TIPO DE TURNO", "SHIFT"},
				core.FieldExpectedCount: {"CANT", "CANT.", "CANTIDAD", "REQUERIDOS", "CONDUCTORES REQUERIDOS"},
			},
			WorkerSlots: []string{"CONDUCTOR", "CHOFER", "TRABAJADOR"},
			ExtraSlots:  []string{"EXTRA", "APOYO", "REFUERZO"},
			Optional: map[string][]string{
				core.FieldNoCoverageFlag: {"SIN COBERTURA", "SIN CUBRIR"},
				core.FieldNotes:          {"OBSERVACIONES", "OBS", "NOTAS", "COMENTARIOS"},
			},
		},
		Structure: core.StructureConfig{
			MaxHeaderRow:         10,
			HeaderThreshold:      core.DefaultHeaderThreshold,
			TotalMarkers:         []string{"TOTAL"},
			NoCoverageMarkers:    []string{"SERVICIOS SIN COBERTURA", "TURNOS SIN COBERTURA"},
			SummaryLineMinLength: 15,
		},
		ShiftTypes: core.ShiftTypeConfig{
			Match: core.MatchNormalized,
			Types: []core.ShiftType{
				{Label: "PRIMER TURNO", Synonyms: []string{"1ER TURNO", "1° TURNO", "TURNO 1", "MATUTINO"}},
				{Label: "SEGUNDO TURNO", Synonyms: []string{"2DO TURNO", "2° TURNO", "TURNO 2", "VESPERTINO"}},
				{Label: "TERCER TURNO", Synonyms: []string{"3ER TURNO", "3° TURNO", "TURNO 3", "NOCTURNO"}},
			},
		},
		CancelledMarkers: []string{"ANULADO", "CANCELADO", "SUSPENDIDO"},
		WorkerNames: core.WorkerNameConfig{
			MinLength:      3,
			MaxLength:      60,
			AllowedPattern: `^[\p{L} .'-]+$`,
			Substitutions: map[string]string{
				"VALDES":   "VALDEZ",
				"GONZALES": "GONZALEZ",
				"RODRIGES": "RODRIGUEZ",
			},
			InvalidMarkers: []string{"-", "--", "S/C", "N/A", "SIN CONDUCTOR"},
			TrimSpaces:     true,
			CollapseSpaces: true,
			Case:           core.CaseUpper,
		},
		Quantity: core.QuantityConfig{Min: 0, Max: 20},
		Dates: core.DateConfig{
			FillMissing: true,
			DayFirst:    true,
			MinYear:     2000,
			MaxYear:     2100,
		},
		Validation: core.ValidationConfig{
			StrictMode:       false,
			AllowPartialData: true,
			MaxWarnings:      50,
			RequireTotals:    false,
			AutoCorrection:   true,
		},
	}
}

// strictOverrides turns every inconsistency into a hard error.
func strictOverrides() map[string]any {
	return map[string]any{
		"description": "Every inconsistency is an error; nothing is corrected",
		"shiftTypes": map[string]any{
			"match": core.MatchExact,
			"types": []any{
				map[string]any{"label": "PRIMER TURNO", "synonyms": []string{"1ER TURNO"}},
				map[string]any{"label": "SEGUNDO TURNO", "synonyms": []string{"2DO TURNO"}},
				map[string]any{"label": "TERCER TURNO", "synonyms": []string{"3ER TURNO"}},
			},
		},
		"workerNames": map[string]any{"case": core.CaseNone},
		"validation": map[string]any{
			"strictMode":       true,
			"allowPartialData": false,
			"maxWarnings":      0,
			"requireTotals":    true,
			"autoCorrection":   false,
		},
	}
}

// permissiveOverrides accepts loosely written rosters.
func permissiveOverrides() map[string]any {
	return map[string]any{
		"description": "Wide synonyms and liberal bounds for hand-made rosters",
		"headers": map[string]any{
			"synonyms": map[string]any{
				core.FieldDate:          []string{"FECHA", "DIA", "DÍA", "DATE", "F", "FECHA SERVICIO"},
				core.FieldShiftType:     []string{"TURNO", "TIPO TURNO", "TIPO DE TURNO", "SHIFT", "T", "JORNADA"},
				core.FieldExpectedCount: []string{"CANT", "CANT.", "CANTIDAD", "REQUERIDOS", "CONDUCTORES REQUERIDOS", "N", "Nº", "PERSONAS"},
			},
			"workerSlots": []string{"CONDUCTOR", "CHOFER", "TRABAJADOR", "NOMBRE", "PERSONAL"},
		},
		"shiftTypes": map[string]any{
			"types": []any{
				map[string]any{"label": "PRIMER TURNO", "synonyms": []string{"1ER TURNO", "1° TURNO", "TURNO 1", "MATUTINO", "1", "1ER", "PRIMERO", "AM"}},
				map[string]any{"label": "SEGUNDO TURNO", "synonyms": []string{"2DO TURNO", "2° TURNO", "TURNO 2", "VESPERTINO", "2", "2DO", "SEGUNDO", "PM"}},
				map[string]any{"label": "TERCER TURNO", "synonyms": []string{"3ER TURNO", "3° TURNO", "TURNO 3", "NOCTURNO", "3", "3ER", "TERCERO"}},
			},
		},
		"cancelledMarkers": []string{"ANULADO", "CANCELADO", "SUSPENDIDO", "X", "NO VA"},
		"workerNames": map[string]any{
			"minLength":      2,
			"maxLength":      100,
			"allowedPattern": `^[\p{L}\p{N} .'()/-]+$`,
			"substitutions": map[string]string{
				"VALDES":    "VALDEZ",
				"GONZALES":  "GONZALEZ",
				"RODRIGES":  "RODRIGUEZ",
				"FERNANDES": "FERNANDEZ",
				"HERNANDES": "HERNANDEZ",
				"MUNOZ":     "MUÑOZ",
			},
			"invalidMarkers": []string{"-", "--", "S/C", "N/A", "SIN CONDUCTOR", "?", "PENDIENTE", "FALTA"},
		},
		"quantity": map[string]any{"min": 0, "max": 100},
		"validation": map[string]any{
			"maxWarnings": 500,
		},
	}
}

// legacyOverrides reads rosters exported by the previous spreadsheet template.
func legacyOverrides() map[string]any {
	return map[string]any{
		"description": "Older roster templates with colloquial shift names",
		"headers": map[string]any{
			"synonyms": map[string]any{
				core.FieldDate:          []string{"FECHA", "DIA", "DÍA", "DATE", "FECHA SERVICIO", "DIA SERVICIO"},
				core.FieldShiftType:     []string{"TURNO", "TIPO TURNO", "SHIFT", "HORARIO", "JORNADA"},
				core.FieldExpectedCount: []string{"CANT", "CANTIDAD", "CUPOS", "PERSONAS", "DOTACION", "DOTACIÓN"},
			},
			"workerSlots": []string{"CONDUCTOR", "CHOFER", "OPERADOR"},
		},
		"structure": map[string]any{
			"maxHeaderRow":    20,
			"headerThreshold": 15,
			"totalMarkers":    []string{"TOTAL", "TOTALES"},
		},
		"shiftTypes": map[string]any{
			"types": []any{
				map[string]any{"label": "PRIMER TURNO", "synonyms": []string{"1ER TURNO", "MAÑANA", "MANANA", "MORNING", "AM"}},
				map[string]any{"label": "SEGUNDO TURNO", "synonyms": []string{"2DO TURNO", "TARDE", "AFTERNOON", "PM"}},
				map[string]any{"label": "TERCER TURNO", "synonyms": []string{"3ER TURNO", "NOCHE", "NIGHT"}},
			},
		},
		"dates": map[string]any{
			"minYear": 1990,
			"maxYear": 2100,
		},
	}
}

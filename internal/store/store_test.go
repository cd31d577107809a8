package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/config"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

func sampleResult() *core.Result {
	day := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	return &core.Result{
		FileName:     "marzo.xlsx",
		Profile:      "default",
		AutoSelected: true,
		Accepted:     true,
		Records: []core.ShiftRecord{
			{Date: day, ShiftType: "PRIMER TURNO", ExpectedCount: 2, AssignedWorkers: []string{"ANA PEREZ", "JUAN VALDEZ"}, SourceRow: 2},
			{Date: day, ShiftType: "SEGUNDO TURNO", ExpectedCount: 1, HasCoverageGap: true, SourceRow: 3},
		},
		WorkerStats: map[string]*core.WorkerStat{
			"JUAN VALDEZ": {Name: "JUAN VALDEZ", TotalShifts: 1, ByShiftType: map[string]int{"PRIMER TURNO": 1}, Dates: []string{"2023-03-15"}},
			"ANA PEREZ":   {Name: "ANA PEREZ", TotalShifts: 1, ByShiftType: map[string]int{"PRIMER TURNO": 1}, Dates: []string{"2023-03-15"}},
		},
		Summary: core.Summary{Records: 2, CoverageGaps: 1},
		Diagnostics: core.Diagnostics{
			Warnings:          []core.Entry{{Kind: core.KindWarning, Message: "w"}},
			CorrectionSummary: []core.CorrectionGroup{{Rule: core.RuleWorkerDictionary, Original: "VALDES", Corrected: "VALDEZ", Count: 1}},
		},
	}
}

func TestRecordFromResult(t *testing.T) {
	id := uuid.New()
	rec := recordFromResult(id, sampleResult())

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "marzo.xlsx", rec.FileName)
	assert.Equal(t, "default", rec.Profile)
	assert.True(t, rec.AutoSelected)
	assert.Equal(t, 2, rec.RecordCount)
	assert.Equal(t, 1, rec.WarningCount)
	assert.Equal(t, 0, rec.ErrorCount)
	assert.Equal(t, 1, rec.CorrectionCount)
	assert.Equal(t, 1, rec.Summary.CoverageGaps)
}

func TestShiftRows(t *testing.T) {
	id := uuid.New()
	rows := shiftRows(id, sampleResult().Records)

	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Len(t, row, len(shiftColumns))
		assert.Equal(t, id, row[0])
	}
	assert.Equal(t, []string{"ANA PEREZ", "JUAN VALDEZ"}, rows[0][5])
	assert.Equal(t, []string{}, rows[1][5], "nil workers must be stored as an empty array")
	assert.Equal(t, true, rows[1][6])
}

func TestWorkerRows_SortedByKey(t *testing.T) {
	id := uuid.New()
	rows, err := workerRows(id, sampleResult().WorkerStats)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "ANA PEREZ", rows[0][1])
	assert.Equal(t, "JUAN VALDEZ", rows[1][1])
	for _, row := range rows {
		assert.Len(t, row, len(workerColumns))
	}

	var byType map[string]int
	require.NoError(t, json.Unmarshal(rows[0][4].([]byte), &byType))
	assert.Equal(t, map[string]int{"PRIMER TURNO": 1}, byType)
}

func TestSaveImport_RejectsFailedRun(t *testing.T) {
	s := &Store{}
	res := sampleResult()
	res.Accepted = false

	err := s.SaveImport(context.Background(), uuid.New(), res)
	assert.True(t, errors.Is(err, ErrRejectedImport))

	err = s.SaveImport(context.Background(), uuid.New(), nil)
	assert.True(t, errors.Is(err, ErrRejectedImport))
}

func TestOpen_Disabled(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisabled))
	assert.Equal(t, "DB003", core.MapError(err).Code)
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "rosters", DatabaseName("postgres://user:pw@localhost:5432/rosters?sslmode=disable"))
	assert.Equal(t, "", DatabaseName("://bad"))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"roster_imports", "roster_shifts", "roster_worker_stats"} {
		assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
}

package sheet

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"marzo.xlsx", FormatXLSX},
		{"MARZO.XLSM", FormatXLSX},
		{"viejo.xls", FormatXLS},
		{"export.csv", FormatCSV},
		{"export.txt", FormatCSV},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, err := DetectFormat("roster.ods")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "FILE002", core.MapError(err).Code)
}

func TestRead_CSV(t *testing.T) {
	data := "\xEF\xBB\xBFFECHA,TURNO,CANT,CONDUCTOR 1\n15/03/2023,PRIMER TURNO,2,Ana Perez\n"

	grid, info, err := Read(strings.NewReader(data), "marzo.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, Info{Format: FormatCSV, Encoding: EncodingUTF8, Rows: 2}, info)
	assert.Equal(t, core.Text("FECHA"), grid[0][0], "BOM must be stripped")
	assert.Equal(t, core.Number(2), grid[1][2])
	assert.Equal(t, core.Text("15/03/2023"), grid[1][0])
}

func TestRead_CSVSemicolonAndWindows1252(t *testing.T) {
	// "Muñoz" and "DÍA" in Windows-1252.
	data := []byte("D\xcdA;TURNO;CANT;CONDUCTOR\n15/03/2023;PRIMER TURNO;1;Mu\xf1oz\n")

	grid, info, err := Read(bytes.NewReader(data), "marzo.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, EncodingWindows1252, info.Encoding)
	require.Len(t, grid[0], 4)
	assert.Equal(t, "DÍA", grid[0][0].Str)
	assert.Equal(t, "Muñoz", grid[1][3].Str)
}

func TestRead_CSVRaggedRows(t *testing.T) {
	grid, _, err := Read(strings.NewReader("a,b,c\nx\n\"quoted, cell\",2\n"), "r.csv", Options{})
	require.NoError(t, err)
	require.Len(t, grid, 3)
	assert.Len(t, grid[1], 1)
	assert.Equal(t, "quoted, cell", grid[2][0].Str)
}

func TestRead_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Marzo"))
	rows := [][]any{
		{"ROL DE TURNOS"},
		{"FECHA", "TURNO", "CANT", "CONDUCTOR 1"},
		{45000, "PRIMER TURNO", 2, "Ana Perez"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Marzo", cell, &row))
	}
	_, err := f.NewSheet("Abril")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Abril", "A1", "otra hoja"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	data := buf.Bytes()

	grid, info, err := Read(bytes.NewReader(data), "marzo.xlsx", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Marzo", info.Sheet)
	assert.Equal(t, 3, info.Rows)
	assert.Equal(t, core.Number(45000), grid[2][0], "serial dates stay numeric")
	assert.Equal(t, core.Text("Ana Perez"), grid[2][3])

	grid, info, err = Read(bytes.NewReader(data), "marzo.xlsx", Options{Sheet: "Abril"})
	require.NoError(t, err)
	assert.Equal(t, "Abril", info.Sheet)
	assert.Equal(t, "otra hoja", grid[0][0].Str)

	_, _, err = Read(bytes.NewReader(data), "marzo.xlsx", Options{Sheet: "Mayo"})
	assert.Error(t, err)
	assert.Equal(t, "FILE006", core.MapError(err).Code)
}

func TestRead_Errors(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		_, _, err := Read(strings.NewReader("x"), "roster.pdf", Options{})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
	t.Run("empty", func(t *testing.T) {
		_, _, err := Read(strings.NewReader("  \n"), "roster.csv", Options{})
		assert.ErrorIs(t, err, ErrEmptyFile)
		assert.Equal(t, "FILE005", core.MapError(err).Code)
	})
	t.Run("too large", func(t *testing.T) {
		_, _, err := Read(strings.NewReader(strings.Repeat("a,b\n", 100)), "roster.csv", Options{MaxSize: 10})
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.Equal(t, "FILE001", core.MapError(err).Code)
	})
	t.Run("exactly at the limit", func(t *testing.T) {
		_, _, err := Read(strings.NewReader("a,b\n"), "roster.csv", Options{MaxSize: 4})
		assert.NoError(t, err)
	})
	t.Run("corrupt xlsx", func(t *testing.T) {
		_, _, err := Read(strings.NewReader("not a zip"), "roster.xlsx", Options{})
		assert.Error(t, err)
		assert.Equal(t, "FILE006", core.MapError(err).Code)
	})
}

func TestLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marzo.csv")
	require.NoError(t, os.WriteFile(path, []byte("FECHA,TURNO\n"), 0o600))

	grid, err := Loader(path, Options{})(context.Background())
	require.NoError(t, err)
	assert.Len(t, grid, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Loader(path, Options{})(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = Loader(filepath.Join(t.TempDir(), "missing.csv"), Options{})(context.Background())
	assert.Error(t, err)
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ';', detectDelimiter([]byte("a;b;c\n1,5;2;3")))
	assert.Equal(t, '\t', detectDelimiter([]byte("a\tb\tc")))
	assert.Equal(t, ',', detectDelimiter([]byte("a,b;c")))
}

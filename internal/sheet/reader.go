// Package sheet reads roster spreadsheets into raw grids.
//
// Supported formats are .xlsx/.xlsm (excelize), .xls (extrame/xls) and
// .csv. Cell values are read raw so that date serial numbers reach the
// import pipeline untouched; numeric-looking text becomes a number cell.
package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

// Format is a supported spreadsheet file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// DefaultMaxRows caps the rows read from legacy .xls workbooks.
const DefaultMaxRows = 100000

var (
	// ErrUnsupportedFormat is returned for extensions other than the supported ones.
	ErrUnsupportedFormat = errors.WithHint(errors.New("unsupported file type"),
		"upload an .xlsx, .xls or .csv file")

	// ErrEmptyFile is returned when the file or its first sheet has no rows.
	ErrEmptyFile = errors.New("empty file")

	// ErrFileTooLarge is returned when the input exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Options control how a workbook is read.
type Options struct {
	// Sheet selects a worksheet by name. Empty means the first sheet.
	Sheet string
	// MaxSize limits the input size in bytes. Zero means no limit.
	MaxSize int64
}

// Info describes what was read.
type Info struct {
	Format   Format `json:"format"`
	Sheet    string `json:"sheet,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Rows     int    `json:"rows"`
}

// DetectFormat maps a file name to its format.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%s", filepath.Base(name))
	}
}

// Read reads a whole spreadsheet from r. The file name selects the format.
func Read(r io.Reader, name string, opts Options) (core.RawGrid, Info, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, Info{}, err
	}

	if opts.MaxSize > 0 {
		r = io.LimitReader(r, opts.MaxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Info{}, errors.Wrapf(err, "read spreadsheet %s", name)
	}
	if opts.MaxSize > 0 && int64(len(data)) > opts.MaxSize {
		return nil, Info{}, errors.WithHintf(
			errors.Wrapf(ErrFileTooLarge, "%s is larger than %d bytes", name, opts.MaxSize),
			"split the roster into files smaller than %d bytes", opts.MaxSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, Info{}, errors.Wrapf(ErrEmptyFile, "%s", name)
	}

	var (
		rows [][]string
		info = Info{Format: format}
	)
	switch format {
	case FormatXLSX:
		rows, info.Sheet, err = readXLSX(data, opts.Sheet)
	case FormatXLS:
		rows, info.Sheet, err = readXLS(data, opts.Sheet)
	default:
		rows, info.Encoding, err = readCSV(data)
	}
	if err != nil {
		return nil, Info{}, errors.Wrapf(err, "read spreadsheet %s", name)
	}
	if len(rows) == 0 {
		return nil, Info{}, errors.Wrapf(ErrEmptyFile, "%s", name)
	}

	grid := core.GridFromStrings(rows)
	info.Rows = len(grid)
	return grid, info, nil
}

// ReadFile reads a spreadsheet from disk.
func ReadFile(path string, opts Options) (core.RawGrid, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return Read(f, path, opts)
}

// Loader adapts ReadFile to a batch grid loader.
func Loader(path string, opts Options) core.GridLoader {
	return func(ctx context.Context) (core.RawGrid, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		grid, _, err := ReadFile(path, opts)
		return grid, err
	}
}

func readXLSX(data []byte, sheet string) ([][]string, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, "", errors.New("no worksheet found")
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, "", err
	}
	return rows, sheet, nil
}

func readXLS(data []byte, sheet string) ([][]string, string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, "", err
	}
	if wb.NumSheets() == 0 {
		return nil, "", errors.New("no worksheet found")
	}

	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil || (sheet != "" && ws.Name != sheet) {
			continue
		}
		return xlsRows(ws), ws.Name, nil
	}
	return nil, "", errors.Newf("worksheet %q not found", sheet)
}

// xlsRows flattens one worksheet, keeping blank cells so that columns line up.
func xlsRows(ws *xls.WorkSheet) [][]string {
	var rows [][]string
	for r := 0; r <= int(ws.MaxRow) && r < DefaultMaxRows; r++ {
		row := ws.Row(r)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			for len(cells) < c {
				cells = append(cells, "")
			}
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows
}

func readCSV(data []byte) ([][]string, string, error) {
	text, enc, err := ToUTF8(data)
	if err != nil {
		return nil, "", err
	}
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = detectDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, "", errors.Wrap(err, "invalid csv")
	}
	return rows, enc, nil
}

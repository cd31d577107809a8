package core

// convert.go provides cell conversion helpers for roster spreadsheets.
//
// These functions handle the messy reality of hand-maintained rosters:
//   - Spreadsheet serial dates, including the 1900 leap-year defect
//   - Several textual date layouts (day-first and month-first)
//   - Counts typed as text ("3", "3.5", "2 conductores")
//   - Formula prefixes and stray quotes around values (="value")

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// numericRegex validates that a string is a plain number after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// leadingIntRegex captures the integer prefix of a value like "3.5" or "2 pers".
var leadingIntRegex = regexp.MustCompile(`^[+-]?\d+`)

const isoDate = "2006-01-02"

// serialEpoch is day 0 of the spreadsheet serial calendar, so serial 1 is
// 1 January 1900.
var serialEpoch = time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)

// leapBugSerial is the last serial before the fictitious 29 February 1900.
const leapBugSerial = 59

// Date layouts split by field order. Four-digit years first so that
// two-digit layouts never swallow a full year.
var (
	dayFirstLayouts = []string{
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
		"2/1/06", "02/01/06", "2-1-06", "02-01-06",
	}
	monthFirstLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"1/2/06", "01/02/06", "1-2-06", "01-02-06",
	}
	isoLayouts = []string{
		isoDate, "2006/01/02", "2006.01.02", "2006-01-02T15:04:05", "2006-01-02 15:04:05",
		time.RFC3339, "20060102", "Jan 2, 2006", "2 Jan 2006",
	}
)

// SerialToDate converts a spreadsheet serial day number to a calendar date.
// Serials after 59 are shifted back one day because the legacy format counts
// a 29 February 1900 that never existed. Fractional parts (times) are dropped.
func SerialToDate(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 1 {
		return time.Time{}, false
	}
	days := int(math.Floor(serial))
	if days > leapBugSerial {
		days--
	}
	return serialEpoch.AddDate(0, 0, days), true
}

// ParseDateText parses a textual date. Day-first layouts are tried before
// month-first ones when dayFirst is set. Purely numeric text is treated as a
// serial number.
func ParseDateText(s string, dayFirst bool) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	if numericRegex.MatchString(s) && !strings.ContainsAny(s, "eE") && len(s) != 8 {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return SerialToDate(v)
		}
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil(t), true
		}
	}

	first, second := dayFirstLayouts, monthFirstLayouts
	if !dayFirst {
		first, second = monthFirstLayouts, dayFirstLayouts
	}
	for _, layouts := range [][]string{first, second} {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return civil(pivotTwoDigitYear(t, layout)), true
			}
		}
	}

	return time.Time{}, false
}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

func pivotTwoDigitYear(t time.Time, layout string) time.Time {
	if strings.Contains(layout, "2006") {
		return t
	}
	if t.Year() > time.Now().Year()+TwoDigitYearPivot {
		return t.AddDate(-100, 0, 0)
	}
	return t
}

// civil strips the clock and location from t.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(isoDate)
}

// ParseLeadingInt parses the integer prefix of s the way a lenient spreadsheet
// formula would: "3" -> 3, "3.5" -> 3, "2 pers" -> 2.
func ParseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(CleanCell(s))
	m := leadingIntRegex.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseNaiveFloat parses s as a whole number, without tolerating trailing text.
func ParseNaiveFloat(s string) (float64, bool) {
	s = strings.TrimSpace(CleanCell(s))
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CellInt returns the integer value of a cell if it holds one, either as an
// integral number or as integer text.
func CellInt(c Cell) (int, bool) {
	switch c.Kind {
	case CellNumber:
		if c.Num != math.Trunc(c.Num) {
			return 0, false
		}
		return int(c.Num), true
	case CellText:
		v, ok := ParseNaiveFloat(c.Str)
		if !ok || v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// NormalizeToken is the comparison form used for header cells, markers and
// shift-type labels: trimmed, inner whitespace collapsed, upper-cased.
func NormalizeToken(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(CleanCell(s)), " "))
}

// isAllLetters reports whether s holds only letters and spaces.
func isAllLetters(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

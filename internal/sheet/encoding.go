package sheet

// encoding.go normalises the text encoding of CSV exports.
//
// Spreadsheet programs on Windows write CSV either as UTF-8 with a byte order
// mark or as Windows-1252. Both are turned into plain UTF-8 before parsing:
//   - A leading UTF-8 BOM (0xEF 0xBB 0xBF) is dropped
//   - Input that is not valid UTF-8 is decoded as Windows-1252

import (
	"bytes"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoding names reported by ToUTF8.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

// ToUTF8 returns data as UTF-8 without a byte order mark, together with the
// encoding it was detected as.
func ToUTF8(data []byte) ([]byte, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, EncodingUTF8, nil
	}

	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, "", errors.Wrap(err, "encoding error")
	}
	return out, EncodingWindows1252, nil
}

// detectDelimiter picks ';' when the first line has more semicolons than
// commas, as Excel does in locales that use a decimal comma.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}

package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// floatPattern accepts plain decimal and exponent notation only, so tokens
// such as "NaN", "Inf" or "0x1p3" stay strings.
var floatPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

// Parse decodes RFC-4180 CSV text into records. It returns either every row
// or an error, never a partial result.
//
// Blank lines are always ignored. With SkipEmptyLines, rows whose fields are
// all empty (",,") are dropped as well.
func Parse(text []byte, opts LoadOptions) ([]Record, error) {
	text = bytes.TrimPrefix(text, utf8BOM)

	r := csv.NewReader(bytes.NewReader(text))
	// column counts are checked below so the error can name the column
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	var (
		header  []string
		records []Record
	)
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := r.FieldPos(0)

		if col := invalidUTF8(fields); col > 0 {
			return nil, errors.NewParseError(line, col, "invalid UTF-8", nil)
		}

		if opts.Header && header == nil {
			header = uniqueHeader(fields)
			continue
		}
		if opts.SkipEmptyLines && allEmpty(fields) {
			continue
		}

		columns := header
		if opts.Header {
			if len(fields) != len(header) {
				col := len(header) + 1
				if len(fields) < len(header) {
					col = len(fields) + 1
				}
				return nil, errors.NewParseError(line, col,
					"wrong number of fields: expected "+strconv.Itoa(len(header))+", got "+strconv.Itoa(len(fields)), nil)
			}
		} else {
			columns = positionalColumns(len(fields))
		}

		values := make([]Value, len(fields))
		for i, f := range fields {
			values[i] = parseValue(f, opts.DynamicTyping)
		}
		records = append(records, NewRecord(columns, values))
	}

	return records, nil
}

// csvError translates encoding/csv failures into ParseError.
func csvError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return errors.NewParseError(perr.Line, perr.Column, perr.Err.Error(), err)
	}
	return errors.NewParseError(0, 0, "read failed", err)
}

func parseValue(field string, dynamic bool) Value {
	if field == "" {
		return EmptyValue()
	}
	if !dynamic {
		return StringValue(field)
	}
	switch field {
	case "true", "TRUE", "True":
		return BoolValue(true)
	case "false", "FALSE", "False":
		return BoolValue(false)
	}
	if floatPattern.MatchString(field) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
			return NumberValue(f)
		}
	}
	return StringValue(field)
}

// uniqueHeader suffixes repeated names ("a", "a_1", "a_2") so every column
// stays addressable by name.
func uniqueHeader(fields []string) []string {
	taken := make(map[string]bool, len(fields))
	out := make([]string, len(fields))
	for i, f := range fields {
		name := f
		for n := 1; taken[name]; n++ {
			name = f + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

func positionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = strconv.Itoa(i)
	}
	return cols
}

func allEmpty(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}

// invalidUTF8 returns the 1-based column of the first field that is not
// valid UTF-8, or 0.
func invalidUTF8(fields []string) int {
	for i, f := range fields {
		if !utf8.ValidString(f) {
			return i + 1
		}
	}
	return 0
}

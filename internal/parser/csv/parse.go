// Package csv turns delimited text into a document of the form
//
//	{"data": [{"<header>": <value>, ...}, ...]}
//
// Header order is preserved as object key order.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"docnorm/internal/config"
	"docnorm/internal/document"
)

// Options controls delimited parsing. A zero Comma means "detect".
type Options struct {
	Comma rune

	// CoerceNumbers turns numeric-looking fields into numbers. On by default
	// through OptionsFrom.
	CoerceNumbers bool
}

// OptionsFrom reads parser options from a job's option bag:
//
//	{"comma": ";", "coerce_numbers": true}
func OptionsFrom(o config.Options) Options {
	return Options{
		Comma:         o.Rune("comma", 0),
		CoerceNumbers: o.Bool("coerce_numbers", true),
	}
}

// DetectDelimiter picks the field separator from the header line: tab when
// present, otherwise semicolon when it splits the line into more fields than a
// comma does, otherwise comma.
func DetectDelimiter(header string) rune {
	if strings.Contains(header, "\t") {
		return '\t'
	}
	if strings.Contains(header, ";") && strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

// Parse reads delimited text into a document.
//
// Edge cases:
//   - Blank lines are skipped; rows whose only field is empty are skipped.
//   - Fields are trimmed. A leading UTF-8 BOM on the first header is removed.
//   - Rows shorter than the header get "" for missing fields; extra fields are
//     dropped.
//   - Duplicate header names keep the last value (object key semantics).
//
// Errors:
//   - Returns an error if there is no header line.
//   - Returns the csv reader's error (with line number) for malformed quoting.
func Parse(ctx context.Context, text string, opt Options) (*document.Node, error) {
	firstLine := firstNonBlankLine(text)
	if firstLine == "" {
		return nil, errors.New("csv: data is empty")
	}

	comma := opt.Comma
	if comma == 0 {
		comma = DetectDelimiter(firstLine)
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	hdr, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: data is empty")
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	headers := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers[i] = strings.TrimSpace(h)
	}

	var rows []*document.Node
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row: %w", err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		fields := make([]document.Field, len(headers))
		for i, h := range headers {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			fields[i] = document.F(h, fieldValue(v, opt.CoerceNumbers))
		}
		rows = append(rows, document.Object(fields...))
	}

	return document.Object(document.F("data", document.Collection(rows...))), nil
}

func fieldValue(v string, coerce bool) *document.Node {
	if coerce && LooksNumeric(v) {
		return document.Scalar(document.NumberFromString(v))
	}
	return document.Scalar(v)
}

// LooksNumeric reports whether s is a plain decimal number: optional sign,
// digits with at most one decimal point, optional exponent. Hex, "Infinity"
// and digit separators are not numbers here.
func LooksNumeric(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}
	digits, dot := 0, false
mantissa:
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break mantissa
		}
	}
	if digits == 0 {
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != 'e' && s[i] != 'E' {
		return false
	}
	i++
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	expDigits := 0
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
		expDigits++
	}
	return expDigits > 0
}

func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

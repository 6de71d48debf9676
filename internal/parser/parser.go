// Package parser detects the textual format of an input and parses it into a
// document.Node.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docnorm/internal/document"
	"docnorm/internal/parser/csv"
	"docnorm/internal/parser/html"
	jsonparser "docnorm/internal/parser/json"
	xmlparser "docnorm/internal/parser/xml"
)

// Format names an input format.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ParseFormat maps a user-supplied name to a Format. "auto" and "" both mean
// detection; "tsv" and "delimited" are accepted aliases for csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "xml":
		return FormatXML, nil
	case "csv", "tsv", "delimited":
		return FormatCSV, nil
	case "html":
		return FormatHTML, nil
	default:
		return FormatAuto, fmt.Errorf("parser: unknown format %q", s)
	}
}

// ErrMalformed is matched by every parse failure returned from Parse.
var ErrMalformed = errors.New("malformed input")

// Error reports a parse failure together with the format that was attempted.
type Error struct {
	Format Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %v", strings.ToUpper(string(e.Format)), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformed) true for every *Error.
func (e *Error) Is(target error) bool { return target == ErrMalformed }

// Options controls Parse.
type Options struct {
	// Format forces a parser. FormatAuto runs detection.
	Format Format

	CSV  csv.Options
	HTML html.Options
}

// Detect guesses the format of text:
//   - a leading "<" (which covers "<?xml") means XML;
//   - otherwise, text not starting with "{" or "[" that contains a comma or a
//     tab is delimited text;
//   - everything else is JSON.
//
// Leading and trailing whitespace is ignored. HTML is never detected.
func Detect(text string) Format {
	t := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(t, "<"):
		return FormatXML
	case !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") &&
		(strings.Contains(t, ",") || strings.Contains(t, "\t")):
		return FormatCSV
	default:
		return FormatJSON
	}
}

// Parse detects (or uses the forced) format and parses text.
//
// Errors:
//   - Every parse failure, including empty input, is an *Error matching
//     ErrMalformed. No partial document is returned alongside an error.
//   - ctx cancellation is returned unwrapped.
func Parse(ctx context.Context, text string, opt Options) (*document.Node, Format, error) {
	format := opt.Format
	if format == FormatAuto {
		format = Detect(text)
	}

	if strings.TrimSpace(text) == "" {
		return nil, format, &Error{Format: format, Err: errors.New("input is empty")}
	}

	var (
		n   *document.Node
		err error
	)
	switch format {
	case FormatJSON:
		n, err = jsonparser.Parse(ctx, strings.NewReader(text))
	case FormatXML:
		n, err = xmlparser.Parse(ctx, strings.NewReader(strings.TrimSpace(text)))
	case FormatCSV:
		csvOpt := opt.CSV
		if csvOpt == (csv.Options{}) {
			csvOpt.CoerceNumbers = true
		}
		n, err = csv.Parse(ctx, text, csvOpt)
	case FormatHTML:
		n, err = html.Parse(ctx, strings.NewReader(text), opt.HTML)
	default:
		return nil, format, fmt.Errorf("parser: unsupported format %q", format)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, format, err
		}
		return nil, format, &Error{Format: format, Err: err}
	}
	return n, format, nil
}

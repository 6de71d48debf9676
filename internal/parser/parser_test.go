package parser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Format
	}{
		{name: "xml_decl", input: `<?xml version="1.0"?><a/>`, want: FormatXML},
		{name: "xml_leading_space", input: "  \n<root/>", want: FormatXML},
		{name: "json_object", input: `{"a":1,"b":2}`, want: FormatJSON},
		{name: "json_array", input: ` [1,2,3]`, want: FormatJSON},
		{name: "csv_comma", input: "a,b\n1,2", want: FormatCSV},
		{name: "csv_tab", input: "a\tb\n1\t2", want: FormatCSV},
		{name: "bare_scalar", input: `42`, want: FormatJSON},
		{name: "string_without_delims", input: `"hello"`, want: FormatJSON},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Detect(tc.input); got != tc.want {
				t.Fatalf("Detect(%q)=%q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestParse_MalformedInputIsTypedError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		format Format
	}{
		{name: "empty", input: "   ", format: FormatJSON},
		{name: "bad_json", input: `{"a":`, format: FormatJSON},
		{name: "bad_xml", input: `<a><b></a>`, format: FormatXML},
		{name: "csv_header_only_blank", input: "\n\n", format: FormatCSV},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, _, err := Parse(context.Background(), tc.input, Options{Format: tc.format})
			if err == nil {
				t.Fatalf("Parse err=nil, want error")
			}
			if n != nil {
				t.Fatalf("Parse returned a partial document alongside error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("errors.Is(err, ErrMalformed)=false; err=%v", err)
			}
			var pe *Error
			if !errors.As(err, &pe) || pe.Format != tc.format {
				t.Fatalf("errors.As(*Error) format=%v, want %v", pe, tc.format)
			}
		})
	}
}

func TestParse_DetectsAndParsesEachFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantFormat Format
		wantJSON   string
	}{
		{
			name:       "json",
			input:      `{"b":1,"a":[true]}`,
			wantFormat: FormatJSON,
			wantJSON:   `{"b":1,"a":[true]}`,
		},
		{
			name:       "xml_repeated_children",
			input:      `<?xml version="1.0"?><root id="7"><item>a</item><item>b</item></root>`,
			wantFormat: FormatXML,
			wantJSON:   `{"root":{"id":"7","item":["a","b"]}}`,
		},
		{
			name:       "csv_semicolon",
			input:      "name;age\nAlice;30\n\nBob;x\n",
			wantFormat: FormatCSV,
			wantJSON:   `{"data":[{"name":"Alice","age":30},{"name":"Bob","age":"x"}]}`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, f, err := Parse(context.Background(), tc.input, Options{})
			if err != nil {
				t.Fatalf("Parse err=%v", err)
			}
			if f != tc.wantFormat {
				t.Fatalf("format=%q, want %q", f, tc.wantFormat)
			}
			b, err := json.Marshal(n)
			if err != nil {
				t.Fatalf("Marshal err=%v", err)
			}
			if string(b) != tc.wantJSON {
				t.Fatalf("doc=%s, want %s", b, tc.wantJSON)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatAuto, "AUTO": FormatAuto, "tsv": FormatCSV, "html": FormatHTML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q)=%q,%v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Fatalf("ParseFormat(yaml) err=nil, want error")
	}
}

package xml

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestParse_Mapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "text_only_element_is_scalar",
			input: `<a>  hello </a>`,
			want:  `{"a":"hello"}`,
		},
		{
			name:  "empty_element_is_empty_object",
			input: `<a/>`,
			want:  `{"a":{}}`,
		},
		{
			name:  "attributes_and_text_use_value_key",
			input: `<price currency="EUR">9.50</price>`,
			want:  `{"price":{"currency":"EUR","value":"9.50"}}`,
		},
		{
			name: "repeated_siblings_collapse_in_order",
			input: `<?xml version="1.0"?>
<!-- comment -->
<Profiles>
  <Profile id="1"><Name>A</Name></Profile>
  <Meta>x</Meta>
  <Profile id="2"><Name>B</Name></Profile>
</Profiles>`,
			want: `{"Profiles":{"Profile":[{"id":"1","Name":"A"},{"id":"2","Name":"B"}],"Meta":"x"}}`,
		},
		{
			name:  "cdata_is_text",
			input: `<a><![CDATA[<b>raw</b>]]></a>`,
			want:  `{"a":"<b>raw</b>"}`,
		},
		{
			name:  "namespace_declaration_attribute",
			input: `<r xmlns:x="urn:x" x:k="v"/>`,
			want:  `{"r":{"xmlns:x":"urn:x","k":"v"}}`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, err := Parse(context.Background(), strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse err=%v", err)
			}
			b, _ := json.Marshal(n)
			if string(b) != tc.want {
				t.Fatalf("doc=%s, want %s", b, tc.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{``, `<?xml version="1.0"?>`, `<a><b></a>`, `<a>`, `<a/><b/>`, `<a/>text`} {
		if n, err := Parse(context.Background(), strings.NewReader(in)); err == nil {
			t.Fatalf("Parse(%q)=%v, want error", in, n)
		}
	}
}

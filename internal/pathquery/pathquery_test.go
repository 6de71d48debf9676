package pathquery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnorm/internal/document"
	jsonparser "docnorm/internal/parser/json"
	"docnorm/internal/table"
)

const users = `{"users":[
	{"id":1,"name":"Alice","age":31,"address":{"city":"Oslo","geo":{"lat":59.9}},"tags":["x","y"]},
	{"id":2,"name":"Bob","age":25,"address":{}}
]}`

func mustParse(t *testing.T, src string) *document.Node {
	t.Helper()
	n, err := jsonparser.Parse(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return n
}

func TestEvaluate_Shapes(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, users)
	tests := []struct {
		name string
		expr string
		want []table.Row
	}{
		{
			name: "objects become rows with flattened nesting",
			expr: "$.users[*]",
			want: []table.Row{
				{"id": int64(1), "name": "Alice", "age": int64(31), "address.city": "Oslo", "address.geo.lat": 59.9, "tags": `["x","y"]`},
				{"id": int64(2), "name": "Bob", "age": int64(25), "address": "{}"},
			},
		},
		{
			name: "single object",
			expr: "$.users[0].address",
			want: []table.Row{{"city": "Oslo", "geo.lat": 59.9}},
		},
		{
			name: "scalars get index and value",
			expr: "$.users[*].name",
			want: []table.Row{{"index": int64(0), "value": "Alice"}, {"index": int64(1), "value": "Bob"}},
		},
		{
			name: "single scalar",
			expr: "$.users[1].age",
			want: []table.Row{{"index": int64(0), "value": int64(25)}},
		},
		{
			name: "collection match is JSON text",
			expr: "$.users[0].tags",
			want: []table.Row{{"index": int64(0), "value": `["x","y"]`}},
		},
		{
			name: "filter",
			expr: "$.users[?(@.age > 30)].name",
			want: []table.Row{{"index": int64(0), "value": "Alice"}},
		},
		{
			name: "no match",
			expr: "$.nothing",
			want: []table.Row{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(doc, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_InvalidExpression(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, users)
	for _, expr := range []string{"", "   ", "$.users[", "$[?(@.a =="} {
		_, err := Evaluate(doc, expr)
		if err == nil {
			t.Fatalf("Evaluate(%q) err=nil, want error", expr)
		}
		if !errors.Is(err, ErrPath) {
			t.Fatalf("Evaluate(%q) err=%v, want ErrPath", expr, err)
		}
		var pe *Error
		if !errors.As(err, &pe) || !strings.HasPrefix(pe.Error(), "JSONPath query error:") {
			t.Fatalf("Evaluate(%q) err=%v, want *Error", expr, err)
		}
	}
}

func TestEvaluate_DocumentUntouched(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, users)
	before, err := doc.MarshalJSON()
	require.NoError(t, err)
	_, err = Evaluate(doc, "$..*")
	require.NoError(t, err)
	after, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

package flatten

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docnorm/internal/document"
	jsonparser "docnorm/internal/parser/json"
)

func mustParse(t *testing.T, src string) *document.Node {
	t.Helper()
	n, err := jsonparser.Parse(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return n
}

func TestFlatten_PathsInDocumentOrder(t *testing.T) {
	t.Parallel()

	n := mustParse(t, `{"b":1,"a":{"x":[10,{"y":null}],"e":{},"f":[]},"c":"z"}`)
	got := Flatten(n)
	want := []Leaf{
		{Path: "b", Value: int64(1)},
		{Path: "a.x[0]", Value: int64(10)},
		{Path: "a.x[1].y", Value: nil},
		{Path: "c", Value: "z"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten mismatch\n got=%#v\nwant=%#v", got, want)
	}
}

func TestFlatten_RootShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []Leaf
	}{
		{name: "scalar", src: `42`, want: []Leaf{{Path: "", Value: int64(42)}}},
		{name: "null", src: `null`, want: []Leaf{{Path: "", Value: nil}}},
		{name: "array", src: `[true,"x"]`, want: []Leaf{{Path: "[0]", Value: true}, {Path: "[1]", Value: "x"}}},
		{name: "empty object", src: `{}`, want: nil},
		{name: "empty array", src: `[]`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(mustParse(t, tt.src))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got=%#v want=%#v", got, tt.want)
			}
		})
	}
}

func TestFlatten_LeafCountMatchesScalarCount(t *testing.T) {
	t.Parallel()

	docs := []string{
		`{"a":[1,2,{"b":[null,{"c":"d"}]}],"e":{"f":{}}}`,
		`[[1],[2,[3,4]],[]]`,
		`{"Profiles":{"Profile":[{"ID":"P1","Meters":{"Meter":[{"ID":"M1"}]}}]}}`,
	}
	for _, src := range docs {
		n := mustParse(t, src)
		if got, want := len(Flatten(n)), document.CountLeaves(n); got != want {
			t.Fatalf("%s: leaves=%d scalars=%d", src, got, want)
		}
	}
}

func TestFlatten_Deterministic(t *testing.T) {
	t.Parallel()

	src := `{"z":[{"k":1},{"k":2}],"a":{"m":"n"}}`
	first := Flatten(mustParse(t, src))
	for i := 0; i < 5; i++ {
		if got := Flatten(mustParse(t, src)); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %#v vs %#v", i, got, first)
		}
	}
}

func TestFlattenMap_LaterLeafWins(t *testing.T) {
	t.Parallel()

	// "a.b" as a literal key collides with the nested path a -> b.
	n := document.Object(
		document.F("a", document.Object(document.F("b", document.Scalar(1)))),
		document.F("a.b", document.Scalar(2)),
	)
	got := FlattenMap(n)
	require.Equal(t, map[string]any{"a.b": int64(2)}, got)
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"Profile[0].Meters.Meter[1].ID": {"Profile", "[0]", "Meters", "Meter", "[1]", "ID"},
		"[0].a":                         {"[0]", "a"},
		"[2][3]":                        {"[2]", "[3]"},
		"a":                             {"a"},
		"":                              {},
	}
	for in, want := range tests {
		got := SplitPath(in)
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("SplitPath(%q)=%q want %q", in, got, want)
		}
	}
}

func TestIsIndexSegment(t *testing.T) {
	t.Parallel()

	for seg, want := range map[string]bool{
		"[0]": true, "[12]": true, "[]": false, "[-1]": false, "[a]": false, "0": false, "Meter": false,
	} {
		if got := IsIndexSegment(seg); got != want {
			t.Fatalf("IsIndexSegment(%q)=%v want %v", seg, got, want)
		}
	}
}

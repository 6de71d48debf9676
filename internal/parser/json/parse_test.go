package json

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"docnorm/internal/document"
)

func TestParse_PreservesKeyOrderAndNumberKinds(t *testing.T) {
	t.Parallel()

	n, err := Parse(context.Background(), strings.NewReader(`{"z":1,"a":2.5,"m":[true,null,"s"],"e":{}}`))
	if err != nil {
		t.Fatalf("Parse err=%v", err)
	}
	if got := strings.Join(n.Keys(), ","); got != "z,a,m,e" {
		t.Fatalf("keys=%s, want z,a,m,e", got)
	}
	z, _ := n.Get("z")
	if z.Value() != int64(1) {
		t.Fatalf("z=%#v, want int64(1)", z.Value())
	}
	a, _ := n.Get("a")
	if a.Value() != 2.5 {
		t.Fatalf("a=%#v, want 2.5", a.Value())
	}
	m, _ := n.Get("m")
	if m.Kind() != document.KindCollection || m.Len() != 3 || !m.Items()[1].IsNull() {
		t.Fatalf("m=%v len=%d, want collection [true null s]", m.Kind(), m.Len())
	}
	e, _ := n.Get("e")
	if !e.IsObject() || e.Len() != 0 {
		t.Fatalf("e kind=%v len=%d, want empty object", e.Kind(), e.Len())
	}
}

func TestParse_ScalarRoot(t *testing.T) {
	t.Parallel()

	n, err := Parse(context.Background(), strings.NewReader(`  "hello"  `))
	if err != nil {
		t.Fatalf("Parse err=%v", err)
	}
	if n.Value() != "hello" {
		t.Fatalf("root=%#v, want hello", n.Value())
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		isEOF bool
	}{
		{name: "empty", input: "   ", isEOF: true},
		{name: "truncated_array", input: `[1,2`, isEOF: true},
		{name: "truncated_object", input: `{"a":`, isEOF: true},
		{name: "missing_value", input: `{"a":}`},
		{name: "trailing_data", input: `{"a":1} {"b":2}`},
		{name: "bare_word", input: `nope`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n, err := Parse(context.Background(), strings.NewReader(tc.input))
			if err == nil {
				t.Fatalf("Parse(%q) err=nil, want error", tc.input)
			}
			if n != nil {
				t.Fatalf("Parse(%q) returned partial document", tc.input)
			}
			if tc.isEOF && !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("Parse(%q) err=%v, want io.ErrUnexpectedEOF", tc.input, err)
			}
		})
	}
}

func TestParse_ContextCanceled(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < ctxCheckEvery*2; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("1")
	}
	b.WriteString("]")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, strings.NewReader(b.String()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Parse err=%v, want context.Canceled", err)
	}
}

package config

import (
	"encoding/json"
	"testing"
)

func TestOptionsAccessors(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":     "x",
		"n":     json.Number("42"),
		"f":     float64(7.9),
		"b":     "true",
		"bad":   "nope",
		"tab":   `\t`,
		"comma": ";",
		"m":     map[string]any{"a": "1", "b": 2},
	}

	if got := o.String("s", "d"); got != "x" {
		t.Fatalf("String(s)=%q", got)
	}
	if got := o.String("f", "d"); got != "7.9" {
		t.Fatalf("String(f)=%q", got)
	}
	if got := o.String("missing", "d"); got != "d" {
		t.Fatalf("String(missing)=%q", got)
	}
	if got := o.Int("n", 0); got != 42 {
		t.Fatalf("Int(n)=%d", got)
	}
	if got := o.Int("f", 0); got != 7 {
		t.Fatalf("Int(f)=%d", got)
	}
	if got := o.Int("bad", 5); got != 5 {
		t.Fatalf("Int(bad)=%d", got)
	}
	if !o.Bool("b", false) || o.Bool("bad", false) {
		t.Fatalf("Bool mismatch")
	}
	if got := o.Rune("tab", 0); got != '\t' {
		t.Fatalf("Rune(tab)=%q", got)
	}
	if got := o.Rune("comma", 0); got != ';' {
		t.Fatalf("Rune(comma)=%q", got)
	}
	if m := o.StringMap("m"); len(m) != 1 || m["a"] != "1" {
		t.Fatalf("StringMap=%v", m)
	}

	var nilOpts Options
	if nilOpts.Any("x") != nil || nilOpts.String("x", "d") != "d" {
		t.Fatalf("nil Options must return defaults")
	}
}

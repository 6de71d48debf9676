package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumns_UnionAcrossAllRowsInDefaultOrder(t *testing.T) {
	t.Parallel()

	rows := []Row{
		{"name": "a", "Key2": "x", "orders_Index": 0},
		{"Key10": "y", "Key1": "z", "_Index": 1, "age": 3},
		{"Zed": true},
	}

	got := Columns(rows)
	want := []string{"_Index", "orders_Index", "Key1", "Key2", "Key10", "Zed", "age", "name"}
	require.Equal(t, want, got)
}

func TestColumns_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Columns(nil))
	assert.Empty(t, Table{}.Columns())
}

func TestSnakeCase(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"tags":          "tags",
		"MeterReadings": "meter_readings",
		"Meter":         "meter",
		"userID":        "user_i_d",
		"line items":    "line_items",
		"a  b\tc":       "a_b_c",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), "SnakeCase(%q)", in)
	}
}

func TestTableClone_IsIndependent(t *testing.T) {
	t.Parallel()

	orig := Table{Name: "t", Kind: KindFlat, Rows: []Row{{"a": int64(1)}}}
	cp := orig.Clone()
	cp.Rows[0]["a"] = int64(2)
	cp.Rows = append(cp.Rows, Row{"b": "x"})

	require.Len(t, orig.Rows, 1)
	assert.Equal(t, int64(1), orig.Rows[0]["a"])
}

func TestRowHash(t *testing.T) {
	t.Parallel()

	cols := []string{"id", "name", "note"}
	a := RowHash(Row{"id": int64(1), "name": "Alice"}, cols, HashOptions{})
	b := RowHash(Row{"id": int64(1), "name": "Alice", "note": nil}, cols, HashOptions{})
	c := RowHash(Row{"id": int64(1), "name": "Alice", "note": ""}, cols, HashOptions{})
	d := RowHash(Row{"id": int64(1), "name": " Alice "}, cols, HashOptions{TrimSpace: true})

	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "missing and nil hash the same")
	assert.NotEqual(t, a, c, "missing differs from empty string")
	assert.Equal(t, a, d, "trimmed values hash like clean ones")
}

func TestHasEdgeSpace(t *testing.T) {
	t.Parallel()
	assert.False(t, HasEdgeSpace(""))
	assert.False(t, HasEdgeSpace("a b"))
	assert.True(t, HasEdgeSpace(" a"))
	assert.True(t, HasEdgeSpace("a\n"))
}

package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnorm/internal/table"
)

var sampleRows = []table.Row{
	{"id": int64(1), "name": `Al "the" Pal`, "score": 9.5},
	{"id": int64(2), "name": nil},
}

func TestWriteCSV_QuotesEverything(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"id", "name", "score"}, sampleRows))

	want := `"id","name","score"` + "\n" +
		`"1","Al ""the"" Pal","9.5"` + "\n" +
		`"2","null","undefined"` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_DefaultsToRowColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, []table.Row{{"b": true, "_Index": int64(0)}}))
	assert.Equal(t, "\"_Index\",\"b\"\n\"0\",\"true\"\n", buf.String())
}

func TestWriteJSON_OrderedIndented(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []string{"name", "id", "score"}, sampleRows))

	want := `[
  {
    "name": "Al \"the\" Pal",
    "id": 1,
    "score": 9.5
  },
  {
    "name": null,
    "id": 2
  }
]
`
	assert.Equal(t, want, buf.String())

	var back []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	require.Len(t, back, 2)
	assert.NotContains(t, back[1], "score")
}

func TestWriteJSON_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []string{"a"}, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, []string{"a"}, []table.Row{{}}))
	assert.Equal(t, "[\n  {}\n]\n", buf.String())
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	rows := []table.Row{
		{"a": "x|y", "b": "line1\nline2"},
		{"a": nil},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, []string{"a", "b"}, rows))

	want := "| a | b |\n" +
		"| --- | --- |\n" +
		"| x\\|y | line1 line2 |\n" +
		"|  |  |\n"
	assert.Equal(t, want, buf.String())
}

func TestParseFormatAndWrite(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{
		"":         FormatCSV,
		"CSV":      FormatCSV,
		" json ":   FormatJSON,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xlsx")
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMarkdown, []string{"a"}, []table.Row{{"a": int64(3)}}))
	assert.Contains(t, buf.String(), "| 3 |")
	require.Error(t, Write(&buf, Format("xlsx"), nil, nil))
}

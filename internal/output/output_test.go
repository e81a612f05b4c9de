package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Index created")
	w.Warning("engine unreachable")
	w.Error("search failed")
	w.Warningf("%s missing", "models.yaml")
	w.Statusf("", "%d documents", 3)

	out := buf.String()
	assert.Contains(t, out, "✅ Index created")
	assert.Contains(t, out, "⚠️  engine unreachable")
	assert.Contains(t, out, "❌ search failed")
	assert.Contains(t, out, "⚠️  models.yaml missing")
	assert.Contains(t, out, "   3 documents")
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("line1\nline2")

	assert.Contains(t, buf.String(), "  line1\n  line2\n")
}

func TestWriter_JSON_CompactWhenPiped(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]any{"query": "a&b", "size": 2}))
	assert.Equal(t, `{"query":"a&b","size":2}`+"\n", buf.String())
}

func TestWriter_Table_AlignsColumns(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.Table([]string{"KEY", "VALUE"}, [][]string{
		{"boost_parts__query_types__phrase", "12"},
		{"a", "b"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	col := strings.Index(lines[1], "12")
	assert.Equal(t, col, strings.Index(lines[0], "VALUE"))
	assert.Equal(t, col, strings.Index(lines[2], "b"))
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

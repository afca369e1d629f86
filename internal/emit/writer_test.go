package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_NewIdentifier_PerPrefixCounters(t *testing.T) {
	w := NewWriter()

	assert.Equal(t, "v0", w.NewIdentifier("v"))
	assert.Equal(t, "v1", w.NewIdentifier("v"))
	assert.Equal(t, "tmp0", w.NewIdentifier("tmp"))
	assert.Equal(t, "v2", w.NewIdentifier("v"))
}

func TestWriter_NewIdentifier_Unique(t *testing.T) {
	w := NewWriter()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := w.NewIdentifier("x")
		require.False(t, seen[id], "identifier %s reused", id)
		seen[id] = true
	}
	assert.Len(t, seen, 500)
}

func TestWriter_EmitPreservesOrderAndDuplicates(t *testing.T) {
	w := NewWriter()
	w.Emit("a();")
	w.Emitf("b(%d);", 2)
	w.Emit("a();")

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []string{"a();", "b(2);", "a();"}, w.Lines())
}

func TestWriter_BuildIsIdempotent(t *testing.T) {
	w := NewWriter()
	w.Emit("var v0 = 1;")
	w.Emit("Use(v0);")

	first := w.Build()
	second := w.Build()

	assert.Equal(t, "var v0 = 1;\nUse(v0);", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, w.Len())
}

func TestWriter_WithSeparator(t *testing.T) {
	w := NewWriter(WithSeparator("\r\n"))
	w.Emit("a;")
	w.Emit("b;")
	assert.Equal(t, "a;\r\nb;", w.Build())
}

func TestWriter_LinesReturnsCopy(t *testing.T) {
	w := NewWriter()
	w.Emit("a;")
	lines := w.Lines()
	lines[0] = "mutated"
	assert.Equal(t, "a;", w.Build())
}

func TestWriter_EmptyBuild(t *testing.T) {
	assert.Equal(t, "", NewWriter().Build())
}

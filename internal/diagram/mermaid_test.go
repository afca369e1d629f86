package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMermaid(t *testing.T) {
	output := RenderMermaid(buildModel(t, branchGraph(), nil))

	assert.Contains(t, output, "graph TD\n")
	assert.Contains(t, output, "%% Door Logic")
	assert.Contains(t, output, `a(["a: MakeValue"])`)
	assert.Contains(t, output, `cmp{"cmp: Compare"}`)
	assert.Contains(t, output, `log[["log: Log"]]`)
	assert.Contains(t, output, `a -->|"Out -> A"| cmp`)
	assert.Contains(t, output, "classDef compiled")
	assert.NotContains(t, output, "class a ")
}

func TestRenderMermaid_StatusClasses(t *testing.T) {
	def := branchGraph()
	output := RenderMermaid(buildModel(t, def, compileArtifact(t, def)))
	assert.Contains(t, output, "class a compiled")
	assert.Contains(t, output, "class log compiled")
}

func TestRenderMermaid_SafeIDs(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{{ID: "door.open-1", Label: "door.open-1: Not", Shape: ShapeUnknown}},
	}
	output := RenderMermaid(model)
	assert.Contains(t, output, `door_open_1>"door.open-1: Not"]`)
}

// Package diagram renders blueprint graphs as Mermaid text, ASCII boxes or
// PNG images, optionally overlaid with the outcome of a compile pass.
package diagram

// Shape is the rendering shape of a node, chosen from its kind's category.
type Shape string

const (
	ShapeBox     Shape = "box"     // math, object, uncategorized
	ShapeStadium Shape = "stadium" // value producers
	ShapeDiamond Shape = "diamond" // logic
	ShapeHexagon Shape = "hexagon" // control
	ShapeDouble  Shape = "double"  // effects
	ShapeUnknown Shape = "unknown" // unregistered kinds
)

// Node status overlay values.
const (
	StatusCompiled   = "compiled"
	StatusFailed     = "failed"
	StatusNotReached = "not_reached"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one node instance of the graph.
type Node struct {
	ID     string
	Kind   string
	Label  string
	Shape  Shape
	Status *StatusOverlay
}

// StatusOverlay carries the compile outcome for a node.
type StatusOverlay struct {
	Status  string
	Outputs map[string]string // port -> identifier, compiled nodes only
	Error   string
}

// Edge is a wire between two ports.
type Edge struct {
	From  string
	To    string
	Label string
}

// node looks up a node by id.
func (m *DiagramModel) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

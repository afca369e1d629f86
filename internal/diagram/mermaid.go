package diagram

import (
	"fmt"
	"strings"
)

// mermaidBrackets maps a shape to its opening and closing delimiters.
var mermaidBrackets = map[Shape][2]string{
	ShapeBox:     {"[", "]"},
	ShapeStadium: {"([", "])"},
	ShapeDiamond: {"{", "}"},
	ShapeHexagon: {"{{", "}}"},
	ShapeDouble:  {"[[", "]]"},
	ShapeUnknown: {">", "]"},
}

var mermaidClassDefs = []string{
	"classDef compiled fill:#2d6a2d,stroke:#1a4a1a,color:#fff",
	"classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff",
	"classDef not_reached fill:#6b6b6b,stroke:#4a4a4a,color:#fff,stroke-dasharray:5 5",
}

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")

// RenderMermaid renders the model as a top-down Mermaid flowchart. Status
// overlays become class assignments.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		b.WriteString("    ")
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	b.WriteString("graph TD\n")
	if model.Title != "" {
		line("%%%% %s", model.Title)
	}
	for _, n := range model.Nodes {
		br, ok := mermaidBrackets[n.Shape]
		if !ok {
			br = mermaidBrackets[ShapeBox]
		}
		line("%s%s%q%s", mermaidID(n.ID), br[0], n.Label, br[1])
	}
	for _, e := range model.Edges {
		if e.Label == "" {
			line("%s --> %s", mermaidID(e.From), mermaidID(e.To))
			continue
		}
		line("%s -->|%q| %s", mermaidID(e.From), e.Label, mermaidID(e.To))
	}

	b.WriteByte('\n')
	for _, def := range mermaidClassDefs {
		line("%s", def)
	}
	for _, n := range model.Nodes {
		if n.Status != nil {
			line("class %s %s", mermaidID(n.ID), n.Status.Status)
		}
	}
	return b.String()
}

func mermaidID(id string) string {
	return mermaidIDReplacer.Replace(id)
}

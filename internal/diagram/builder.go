package diagram

import (
	"fmt"

	"github.com/rendis/blueprint/internal/engine"
	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

// Build constructs a DiagramModel from a graph and an optional artifact.
// Levels come from the scheduler; a graph that cannot be scheduled is laid
// out on a single level in registration order so broken graphs still render.
func Build(g *graph.Graph, artifact *schema.CompiledArtifact) (*DiagramModel, error) {
	if g == nil {
		return nil, fmt.Errorf("diagram: graph is nil")
	}

	model := &DiagramModel{Title: g.Name}
	for _, n := range g.Nodes() {
		model.Nodes = append(model.Nodes, &Node{
			ID:    n.ID,
			Kind:  n.Kind,
			Label: n.ID + ": " + n.Kind,
			Shape: shapeOf(n.Spec),
		})
	}

	for _, e := range g.Edges() {
		if _, ok := g.Node(e.From); !ok {
			continue
		}
		if _, ok := g.Node(e.To); !ok {
			continue
		}
		model.Edges = append(model.Edges, Edge{
			From:  e.From,
			To:    e.To,
			Label: e.FromPort + " -> " + e.ToPort,
		})
	}

	if sched, err := engine.BuildSchedule(g); err == nil {
		model.Levels = sched.Levels
	} else {
		level := make([]string, 0, g.Len())
		for _, n := range g.Nodes() {
			level = append(level, n.ID)
		}
		if len(level) > 0 {
			model.Levels = [][]string{level}
		}
	}

	if artifact != nil {
		overlayStatus(model, artifact)
	}
	return model, nil
}

func shapeOf(k *nodes.Kind) Shape {
	if k == nil {
		return ShapeUnknown
	}
	switch k.Category {
	case nodes.CategoryValue:
		return ShapeStadium
	case nodes.CategoryLogic:
		return ShapeDiamond
	case nodes.CategoryControl:
		return ShapeHexagon
	case nodes.CategoryEffect:
		return ShapeDouble
	default:
		return ShapeBox
	}
}

// overlayStatus marks every node compiled, failed or not reached.
// Nodes before the failing node in the artifact's order count as compiled.
func overlayStatus(model *DiagramModel, a *schema.CompiledArtifact) {
	failures := make(map[string]string)
	for _, d := range a.Diagnostics.Errors {
		if d.NodeID != "" {
			if _, seen := failures[d.NodeID]; !seen {
				failures[d.NodeID] = d.Message
			}
		}
	}

	reached := make(map[string]bool)
	switch a.Status {
	case schema.CompileStatusCompiled:
		for _, n := range model.Nodes {
			reached[n.ID] = true
		}
	case schema.CompileStatusFailed:
		for _, id := range a.Order {
			if _, failed := failures[id]; failed {
				break
			}
			reached[id] = true
		}
	}

	for _, n := range model.Nodes {
		overlay := &StatusOverlay{Status: StatusNotReached}
		msg, failed := failures[n.ID]
		switch {
		case failed:
			overlay.Status = StatusFailed
			overlay.Error = msg
		case reached[n.ID]:
			overlay.Status = StatusCompiled
			overlay.Outputs = a.OutputsByNode[n.ID]
		}
		n.Status = overlay
	}
}

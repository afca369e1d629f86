package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

var gvShapes = map[Shape]cgraph.Shape{
	ShapeBox:     cgraph.BoxShape,
	ShapeStadium: cgraph.EllipseShape,
	ShapeDiamond: cgraph.DiamondShape,
	ShapeHexagon: cgraph.HexagonShape,
	ShapeDouble:  cgraph.DoubleCircleShape,
	ShapeUnknown: cgraph.EllipseShape,
}

type gvPaint struct {
	style cgraph.NodeStyle
	fill  string
	font  string
}

var gvPaints = map[string]gvPaint{
	StatusCompiled:   {cgraph.FilledNodeStyle, "#2d6a2d", "white"},
	StatusFailed:     {cgraph.FilledNodeStyle, "#8b1a1a", "white"},
	StatusNotReached: {cgraph.DashedNodeStyle, "#e8e8e8", "#888888"},
}

// RenderImage lays the model out top to bottom with the dot engine and
// returns the PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer g.Close()
	g.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	byID, err := addGVNodes(g, model.Nodes)
	if err != nil {
		return nil, err
	}
	for _, e := range model.Edges {
		from, to := byID[e.From], byID[e.To]
		if from == nil || to == nil {
			continue
		}
		ge, err := g.CreateEdgeByName("", from, to)
		if err != nil {
			return nil, fmt.Errorf("diagram: wire %s -> %s: %w", e.From, e.To, err)
		}
		if e.Label != "" {
			ge.SetLabel(e.Label)
		}
	}

	var out bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.PNG, &out); err != nil {
		return nil, fmt.Errorf("diagram: render png: %w", err)
	}
	return out.Bytes(), nil
}

func addGVNodes(g *cgraph.Graph, nodes []*Node) (map[string]*cgraph.Node, error) {
	byID := make(map[string]*cgraph.Node, len(nodes))
	for _, n := range nodes {
		gn, err := g.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("diagram: node %s: %w", n.ID, err)
		}
		gn.SetLabel(n.Label)
		shape, ok := gvShapes[n.Shape]
		if !ok {
			shape = cgraph.BoxShape
		}
		gn.SetShape(shape)
		if n.Status != nil {
			paint, ok := gvPaints[n.Status.Status]
			if !ok {
				paint = gvPaints[StatusNotReached]
			}
			gn.SetStyle(paint.style)
			gn.SetFillColor(paint.fill)
			gn.SetFontColor(paint.font)
		}
		byID[n.ID] = gn
	}
	return byID, nil
}

// Package graph holds the immutable in-memory form of a blueprint graph
// that the validator, scheduler and compiler work on.
package graph

import (
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

// Node is a node instance inside a Graph.
type Node struct {
	ID     string
	Index  int // registration order
	Kind   string
	Config map[string]any
	Spec   *nodes.Kind // nil when the kind is not registered
}

// Edge connects FromPort of node From to ToPort of node To.
type Edge struct {
	Index    int // declaration order
	From     string
	FromPort string
	To       string
	ToPort   string
}

// Graph is a read-only snapshot of a GraphDefinition. Building it copies
// every node config, so nothing done through a Graph touches the definition.
type Graph struct {
	Name string

	nodes    []*Node
	byID     map[string]*Node
	edges    []Edge
	incoming map[string][]Edge
	outgoing map[string][]Edge
}

// New builds a Graph from a definition. Duplicate node ids keep their first
// occurrence. Edges are kept even when an endpoint is unknown; callers that
// need only resolvable edges use Successors.
func New(def *schema.GraphDefinition, resolver nodes.Resolver) *Graph {
	g := &Graph{
		Name:     def.Name,
		nodes:    make([]*Node, 0, len(def.Nodes)),
		byID:     make(map[string]*Node, len(def.Nodes)),
		edges:    make([]Edge, 0, len(def.Edges)),
		incoming: make(map[string][]Edge),
		outgoing: make(map[string][]Edge),
	}

	for _, nd := range def.Nodes {
		if _, dup := g.byID[nd.ID]; dup {
			continue
		}
		n := &Node{
			ID:     nd.ID,
			Index:  len(g.nodes),
			Kind:   nd.Kind,
			Config: CopyConfig(nd.Config),
		}
		if resolver != nil {
			if k, err := resolver.Resolve(nd.Kind); err == nil {
				n.Spec = k
			}
		}
		g.nodes = append(g.nodes, n)
		g.byID[n.ID] = n
	}

	for i, ed := range def.Edges {
		e := Edge{Index: i, From: ed.From, FromPort: ed.FromPort, To: ed.To, ToPort: ed.ToPort}
		g.edges = append(g.edges, e)
		g.incoming[e.To] = append(g.incoming[e.To], e)
		g.outgoing[e.From] = append(g.outgoing[e.From], e)
	}
	return g
}

// Len returns the number of distinct nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the nodes in registration order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []Edge { return g.edges }

// Incoming returns the edges ending at id, in declaration order.
func (g *Graph) Incoming(id string) []Edge { return g.incoming[id] }

// Outgoing returns the edges starting at id, in declaration order.
func (g *Graph) Outgoing(id string) []Edge { return g.outgoing[id] }

// InputEdge returns the first edge feeding port of node id.
func (g *Graph) InputEdge(id, port string) (Edge, bool) {
	for _, e := range g.incoming[id] {
		if e.ToPort == port {
			return e, true
		}
	}
	return Edge{}, false
}

// Successors returns the targets of id's outgoing edges whose endpoints both
// exist, in edge declaration order. A target reached twice appears twice.
func (g *Graph) Successors(id string) []string {
	var out []string
	for _, e := range g.outgoing[id] {
		if _, ok := g.byID[e.To]; ok {
			out = append(out, e.To)
		}
	}
	return out
}

// Connected reports whether id has at least one incoming or outgoing edge.
func (g *Graph) Connected(id string) bool {
	return len(g.incoming[id]) > 0 || len(g.outgoing[id]) > 0
}

// CopyConfig deep-copies a node configuration.
func CopyConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyConfig(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

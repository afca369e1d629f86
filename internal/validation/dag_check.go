package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/pkg/schema"
)

const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// validateCycles runs a three-color DFS over every edge whose endpoints
// exist. Roots are tried in node registration order and successors in edge
// declaration order, so the first back edge found is deterministic. Only
// that first cycle is reported.
func validateCycles(g *graph.Graph) *schema.Diagnostics {
	result := &schema.Diagnostics{}
	cycle := FindCycle(g)
	if cycle == nil {
		return result
	}

	closed := append(append([]string(nil), cycle...), cycle[0])
	result.AddError(schema.Diagnostic{
		Code:    schema.ErrCodeCycleDetected,
		Nodes:   cycle,
		Message: fmt.Sprintf("cycle detected: %s", strings.Join(closed, " -> ")),
	})
	return result
}

// FindCycle returns the node ids of the first cycle found, in path order,
// or nil when the graph is acyclic.
func FindCycle(g *graph.Graph) []string {
	color := make(map[string]int, g.Len())
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)

		for _, next := range g.Successors(id) {
			switch color[next] {
			case gray:
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == next {
						cycle = append([]string(nil), path[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, n := range g.Nodes() {
		if color[n.ID] == white && visit(n.ID) {
			return cycle
		}
	}
	return nil
}

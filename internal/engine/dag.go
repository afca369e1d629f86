package engine

import (
	"container/heap"

	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/pkg/schema"
)

// Schedule is the execution plan of a validated graph.
type Schedule struct {
	Order  []string   // topological order, ties broken by ascending id
	Roots  []string   // nodes with no incoming edges, ascending
	Levels [][]string // topological depth groups
}

// Position returns the index of id in Order, or -1.
func (s *Schedule) Position(id string) int {
	for i, n := range s.Order {
		if n == id {
			return i
		}
	}
	return -1
}

// idHeap is a min-heap of node ids.
type idHeap []string

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// BuildSchedule orders the nodes of g with Kahn's algorithm, always taking
// the lowest id among the nodes whose producers have all been placed. Edges
// with a missing endpoint are ignored. A graph that still has unplaced nodes
// when the ready set runs dry contains a cycle.
func BuildSchedule(g *graph.Graph) (*Schedule, error) {
	inDegree := make(map[string]int, g.Len())
	for _, n := range g.Nodes() {
		for _, succ := range g.Successors(n.ID) {
			inDegree[succ]++
		}
	}

	ready := &idHeap{}
	for _, n := range g.Nodes() {
		if inDegree[n.ID] == 0 {
			*ready = append(*ready, n.ID)
		}
	}
	heap.Init(ready)

	sched := &Schedule{
		Order: make([]string, 0, g.Len()),
		Roots: make([]string, 0, ready.Len()),
	}
	for _, id := range *ready {
		sched.Roots = append(sched.Roots, id)
	}
	sortStrings(sched.Roots)

	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		sched.Order = append(sched.Order, id)
		for _, succ := range g.Successors(id) {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				heap.Push(ready, succ)
			}
		}
	}

	if len(sched.Order) != g.Len() {
		return nil, schema.NewErrorf(schema.ErrCodeCycleDetected,
			"graph contains a cycle: %d of %d nodes could not be scheduled", g.Len()-len(sched.Order), g.Len())
	}

	sched.Levels = computeLevels(g, sched.Order)
	return sched, nil
}

// computeLevels groups nodes by topological depth: a node sits one level
// below its deepest producer.
func computeLevels(g *graph.Graph, order []string) [][]string {
	depth := make(map[string]int, len(order))
	maxLevel := 0
	for _, id := range order {
		d := depth[id]
		if d > maxLevel {
			maxLevel = d
		}
		for _, succ := range g.Successors(id) {
			if depth[succ] < d+1 {
				depth[succ] = d + 1
			}
		}
	}

	if len(order) == 0 {
		return nil
	}
	levels := make([][]string, maxLevel+1)
	for _, id := range order {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}

// sortStrings sorts a slice of strings in-place using insertion sort.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j] > key {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
}

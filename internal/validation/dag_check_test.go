package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/pkg/schema"
)

func TestValidate_TwoNodeCycle(t *testing.T) {
	res := validate(t, &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{node("N4", "Pass"), node("N5", "Pass")},
		Edges: []schema.EdgeDefinition{
			edge("N4", "Out", "N5", "In"),
			edge("N5", "Out", "N4", "In"),
		},
	})

	require.Len(t, res.Errors, 1)
	d := res.Errors[0]
	assert.Equal(t, schema.ErrCodeCycleDetected, d.Code)
	assert.Equal(t, []string{"N4", "N5"}, d.Nodes)
	assert.Equal(t, "cycle detected: N4 -> N5 -> N4", d.Message)
}

func TestValidate_CycleReportedAlongsideSemanticErrors(t *testing.T) {
	res := validate(t, &schema.GraphDefinition{
		Nodes: []schema.NodeDefinition{node("a", "Pass"), node("b", "Pass"), node("c", "Consume")},
		Edges: []schema.EdgeDefinition{
			edge("a", "Out", "b", "In"),
			edge("b", "Out", "a", "In"),
		},
	})
	assert.True(t, res.Has(schema.ErrCodeCycleDetected))
	assert.True(t, res.Has(schema.ErrCodeMissingInput))
}

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{"acyclic chain", []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}}, nil},
		{"diamond", []string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}}, nil},
		{"self loop", []string{"a"}, [][2]string{{"a", "a"}}, []string{"a"}},
		{"three cycle", []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}}, []string{"a", "b", "c"}},
		{
			"tail into cycle",
			[]string{"x", "a", "b"},
			[][2]string{{"x", "a"}, {"a", "b"}, {"b", "a"}},
			[]string{"a", "b"},
		},
		{
			"first in registration order",
			[]string{"p", "q", "a", "b"},
			[][2]string{{"a", "b"}, {"b", "a"}, {"p", "q"}, {"q", "p"}},
			[]string{"p", "q"},
		},
		{"dangling edge ignored", []string{"a"}, [][2]string{{"a", "ghost"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &schema.GraphDefinition{}
			for _, id := range tt.nodes {
				def.Nodes = append(def.Nodes, node(id, "Pass"))
			}
			for _, e := range tt.edges {
				def.Edges = append(def.Edges, edge(e[0], "Out", e[1], "In"))
			}
			assert.Equal(t, tt.want, FindCycle(graph.New(def, nil)))
		})
	}
}

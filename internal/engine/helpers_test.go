package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/internal/logging"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

// requireCode asserts that err is a *schema.BlueprintError with the given code.
func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var be *schema.BlueprintError
	require.True(t, errors.As(err, &be), "expected *schema.BlueprintError, got %T: %v", err, err)
	require.Equal(t, code, be.Code, be.Error())
}

// testRegistry returns the builtins plus a few kinds that exercise the
// compiler's failure paths.
func testRegistry(t *testing.T) *nodes.Registry {
	t.Helper()
	reg := nodes.NewRegistry()
	require.NoError(t, nodes.RegisterBuiltins(reg))
	reg.MustRegister(
		nodes.Kind{
			Name:     "Pass",
			Ports:    []nodes.PortDescriptor{nodes.Input("In"), nodes.Output("Out")},
			Template: nodes.Lines("var ${{ outputs.Out }} = ${{ inputs.In }};"),
		},
		nodes.Kind{
			Name:     "OptionalConsume",
			Ports:    []nodes.PortDescriptor{nodes.OptionalInput("In", "fallback")},
			Template: nodes.Lines("Consume(${{ inputs.In }});"),
		},
		nodes.Kind{
			Name:  "Boom",
			Ports: []nodes.PortDescriptor{nodes.OptionalInput("In", "")},
			Factory: func(map[string]any) (nodes.Behavior, error) {
				return nodes.BehaviorFunc(func(ec *nodes.ExecContext) (map[string]string, error) {
					return nil, errors.New("generator exploded")
				}), nil
			},
		},
		nodes.Kind{
			Name:  "Panic",
			Ports: []nodes.PortDescriptor{nodes.OptionalInput("In", "")},
			Factory: func(map[string]any) (nodes.Behavior, error) {
				return nodes.BehaviorFunc(func(ec *nodes.ExecContext) (map[string]string, error) {
					panic("unexpected state")
				}), nil
			},
		},
		nodes.Kind{
			Name:  "Lazy",
			Ports: []nodes.PortDescriptor{nodes.Output("Out")},
			Factory: func(map[string]any) (nodes.Behavior, error) {
				return nodes.BehaviorFunc(func(ec *nodes.ExecContext) (map[string]string, error) {
					ec.Emitter.Emit("// nothing bound")
					return map[string]string{}, nil
				}), nil
			},
		},
	)
	return reg
}

func newCompiler(t *testing.T, opts ...Option) *Compiler {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	c, err := NewCompiler(testRegistry(t), opts...)
	require.NoError(t, err)
	return c
}

func compile(t *testing.T, c *Compiler, def *schema.GraphDefinition) (*schema.CompiledArtifact, error) {
	t.Helper()
	a, err := c.Compile(context.Background(), def)
	require.NotNil(t, a)
	return a, err
}

func node(id, kind string) schema.NodeDefinition {
	return schema.NodeDefinition{ID: id, Kind: kind}
}

func value(id string, v any) schema.NodeDefinition {
	return schema.NodeDefinition{ID: id, Kind: "MakeValue", Config: map[string]any{"value": v}}
}

func edge(from, fromPort, to, toPort string) schema.EdgeDefinition {
	return schema.EdgeDefinition{From: from, FromPort: fromPort, To: to, ToPort: toPort}
}

// chain builds MakeValue -> Pass x n -> Consume.
func chain(name string, n int) *schema.GraphDefinition {
	def := &schema.GraphDefinition{Name: name, Nodes: []schema.NodeDefinition{value("src", 1)}}
	prev := "src"
	for i := 0; i < n; i++ {
		id := "p" + string(rune('a'+i))
		def.Nodes = append(def.Nodes, node(id, "Pass"))
		def.Edges = append(def.Edges, edge(prev, "Out", id, "In"))
		prev = id
	}
	def.Nodes = append(def.Nodes, node("sink", "Consume"))
	def.Edges = append(def.Edges, edge(prev, "Out", "sink", "In"))
	return def
}

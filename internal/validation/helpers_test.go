package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

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
			Name:             "ImplicitConsume",
			Ports:            []nodes.PortDescriptor{{Name: "In", Direction: nodes.DirectionInput, DefaultLiteral: "null"}},
			Template:         nodes.Lines("Consume(${{ inputs.In }});"),
			ImplicitDefaults: true,
		},
	)
	return reg
}

func newValidator(t *testing.T) *GraphValidator {
	t.Helper()
	v, err := NewGraphValidator(testRegistry(t))
	require.NoError(t, err)
	return v
}

func validate(t *testing.T, def *schema.GraphDefinition) *schema.Diagnostics {
	t.Helper()
	return newValidator(t).Validate(context.Background(), def)
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

package expressions

import (
	"context"
	"errors"
	"testing"

	"github.com/rendis/blueprint/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_SelectBlueprintFromBundle(t *testing.T) {
	e := NewGoJQEngine()
	bundle := map[string]any{
		"blueprints": []any{
			map[string]any{"name": "Enemy", "nodes": []any{}},
			map[string]any{"name": "Door", "nodes": []any{}},
		},
	}

	out, err := e.Evaluate(context.Background(), `.blueprints[] | select(.name == "Door")`, bundle)
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Door", m["name"])
}

func TestGoJQ_MultipleAndNoResults(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"items": []any{1, 2, 3}}

	out, err := e.Evaluate(context.Background(), ".items[]", data)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out)

	out, err = e.Evaluate(context.Background(), "empty", data)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_QueryArrayRoot(t *testing.T) {
	e := NewGoJQEngine()
	results, err := e.Query(context.Background(), ".[0].name", []any{map[string]any{"name": "first"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"first"}, results)
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()
	_, err := e.Query(context.Background(), ".blueprints[", map[string]any{})
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.True(t, errors.As(err, &bpErr))
	assert.Equal(t, schema.ErrCodeValidation, bpErr.Code)
}

func TestGoJQ_RuntimeError(t *testing.T) {
	e := NewGoJQEngine()
	_, err := e.Query(context.Background(), ".name | keys", map[string]any{"name": "x"})
	assert.Error(t, err)
}

func TestGoJQ_EnvironmentBlocked(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `$ENV`, map[string]any{})
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Empty(t, m)
}

func TestGoJQ_EmptyExpression(t *testing.T) {
	_, err := NewGoJQEngine().Query(context.Background(), "", nil)
	assert.Error(t, err)
}

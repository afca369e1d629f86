package expressions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rendis/blueprint/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Evaluate(t *testing.T) {
	e := NewExprEngine()
	data := map[string]any{"a": 10, "b": 3}

	out, err := e.Evaluate(context.Background(), "a + b", data)
	require.NoError(t, err)
	assert.Equal(t, 13, out)
}

func TestExpr_Guards(t *testing.T) {
	e := NewExprEngine()

	tests := []struct {
		name  string
		guard string
		data  map[string]any
		want  bool
	}{
		{
			name:  "config flag set",
			guard: "config.negate == true",
			data:  map[string]any{"config": map[string]any{"negate": true}},
			want:  true,
		},
		{
			name:  "config flag missing",
			guard: "config.negate == true",
			data:  map[string]any{"config": map[string]any{}},
			want:  false,
		},
		{
			name:  "input bound to non-empty literal",
			guard: `inputs.Message != ""`,
			data:  map[string]any{"inputs": map[string]any{"Message": "msg0"}},
			want:  true,
		},
		{
			name:  "undefined variable is false",
			guard: "missing",
			data:  map[string]any{},
			want:  false,
		},
		{
			name:  "node kind",
			guard: `node.kind == "Log" && config.level == "warn"`,
			data: map[string]any{
				"node":   map[string]any{"kind": "Log"},
				"config": map[string]any{"level": "warn"},
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvalBool(context.Background(), tt.guard, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_GuardMustBeBool(t *testing.T) {
	e := NewExprEngine()

	_, err := e.EvalBool(context.Background(), `"yes"`, nil)
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.True(t, errors.As(err, &bpErr))
	assert.Equal(t, schema.ErrCodeTemplate, bpErr.Code)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	err := e.Check("config.negate ==")
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.True(t, errors.As(err, &bpErr))
	assert.Equal(t, schema.ErrCodeValidation, bpErr.Code)
}

func TestExpr_EmptyExpression(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestExpr_CacheReuse(t *testing.T) {
	e := NewExprEngine()
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), "1 + 1", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.progs.len())
}

func TestExpr_ConcurrentGuards(t *testing.T) {
	e := NewExprEngine()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := e.EvalBool(context.Background(), "config.n % 2 == 0", map[string]any{
				"config": map[string]any{"n": i},
			})
			assert.NoError(t, err)
			assert.Equal(t, i%2 == 0, got)
		}(i)
	}
	wg.Wait()
}

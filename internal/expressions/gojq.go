package expressions

import (
	"context"

	"github.com/itchyny/gojq"

	"github.com/rendis/blueprint/pkg/schema"
)

// GoJQEngine runs jq queries. The loader uses it to pick one blueprint out of
// an asset document that bundles several graphs. Safe for concurrent use.
type GoJQEngine struct {
	codes *programCache[*gojq.Code]
}

// NewGoJQEngine creates a new GoJQ expression engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{codes: newProgramCache(compileJQ)}
}

func compileJQ(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, exprError(schema.ErrCodeValidation, "parse", "jq", expression, err)
	}
	// An empty environ hides $ENV from queries.
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, exprError(schema.ErrCodeValidation, "compile", "jq", expression, err)
	}
	return code, nil
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate runs a jq expression against data. One output is returned as is,
// several are collected into []any and none yields nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	results, err := e.Query(ctx, expression, data)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// Query runs a jq expression against an arbitrary JSON value and returns every output.
func (e *GoJQEngine) Query(ctx context.Context, expression string, input any) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}
	code, err := e.codes.get(expression)
	if err != nil {
		return nil, err
	}

	var results []any
	iter := code.RunWithContext(ctx, toJQValue(input))
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, exprError(schema.ErrCodeValidation, "evaluation", "jq", expression, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// toJQValue widens Go integer and float32 values to float64, the only
// number type gojq accepts besides *big.Int.
func toJQValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJQValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJQValue(item)
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	}
	return v
}

var _ Engine = (*GoJQEngine)(nil)

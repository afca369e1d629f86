package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/blueprint/pkg/schema"
)

// celVariables are the top-level variables visible to configuration rules.
var celVariables = []string{"config", "node"}

// CELEngine evaluates the configuration rules a node kind declares, such as
// `config.operator in ['+', '-']`. Safe for concurrent use.
type CELEngine struct {
	env   *cel.Env
	progs *programCache[cel.Program]
}

// NewCELEngine creates a CEL engine whose environment declares
// config and node, both map(string, dyn).
func NewCELEngine() (*CELEngine, error) {
	vars := make([]cel.EnvOption, 0, len(celVariables))
	for _, name := range celVariables {
		vars = append(vars, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	e := &CELEngine{env: env}
	e.progs = newProgramCache(e.compile)
	return e, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs a rule against data. Absent variables are bound to empty maps.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	prg, err := e.progs.get(expression)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(celVariables))
	for _, name := range celVariables {
		activation[name] = map[string]any{}
		if v := data[name]; v != nil {
			activation[name] = v
		}
	}

	out, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return nil, exprError(schema.ErrCodeInvalidConfig, "evaluation", "CEL", expression, err)
	}
	return out.Value(), nil
}

// EvalBool evaluates a rule that must produce a boolean.
func (e *CELEngine) EvalBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	v, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeInvalidConfig,
			"CEL rule %q returned %T, expected bool", expression, v)
	}
	return b, nil
}

// Check compiles a rule without running it; kinds are checked at registration.
func (e *CELEngine) Check(expression string) error {
	_, err := e.progs.get(expression)
	return err
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if err := issues.Err(); err != nil {
		return nil, exprError(schema.ErrCodeValidation, "compile", "CEL", expression, err)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, exprError(schema.ErrCodeValidation, "program", "CEL", expression, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)

package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/blueprint/pkg/schema"
)

// ExprEngine evaluates template line guards ("when" clauses) such as
// `config.negate == true`. Programs are compiled untyped because config keys
// differ per node. Safe for concurrent use.
type ExprEngine struct {
	progs *programCache[*vm.Program]
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{progs: newProgramCache(func(expression string) (*vm.Program, error) {
		prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, exprError(schema.ErrCodeValidation, "compile", "expr", expression, err)
		}
		return prg, nil
	})}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with the keys of data as top-level variables.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	prg, err := e.progs.get(expression)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, exprError(schema.ErrCodeTemplate, "evaluation", "expr", expression, err)
	}
	return out, nil
}

// EvalBool evaluates a guard. A nil result (e.g. an undefined variable) counts as false.
func (e *ExprEngine) EvalBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeTemplate,
			"guard %q returned %T, expected bool", expression, out)
	}
}

// Check compiles an expression without evaluating it.
func (e *ExprEngine) Check(expression string) error {
	_, err := e.progs.get(expression)
	return err
}

var _ Engine = (*ExprEngine)(nil)

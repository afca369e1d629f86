package nodes

import (
	"context"
	"sync"

	"github.com/rendis/blueprint/internal/expressions"
	"github.com/rendis/blueprint/pkg/schema"
)

var (
	interpolator = expressions.NewInterpolator()
	guards       = expressions.NewExprEngine()
	configRules  = sync.OnceValues(expressions.NewCELEngine)
)

// templateBehavior emits a kind's Template. It allocates one identifier per
// output port first, then renders every line whose guard holds.
type templateBehavior struct {
	template Template
}

func (b *templateBehavior) Execute(ec *ExecContext) (map[string]string, error) {
	outputs := AllocateOutputs(ec)
	scope := NewScope(ec, outputs)

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
	}

	for i, line := range b.template {
		if line.When != "" {
			ok, err := guards.EvalBool(ctx, line.When, scope.GuardData())
			if err != nil {
				return nil, templateError(ec, i, err)
			}
			if !ok {
				continue
			}
		}
		text, err := interpolator.Render(line.Text, scope)
		if err != nil {
			return nil, templateError(ec, i, err)
		}
		ec.Emitter.Emit(text)
	}
	return outputs, nil
}

// AllocateOutputs requests one fresh identifier per declared output port.
func AllocateOutputs(ec *ExecContext) map[string]string {
	outputs := make(map[string]string)
	if ec.Kind == nil {
		return outputs
	}
	for _, p := range ec.Kind.Outputs() {
		outputs[p.Name] = ec.Emitter.NewIdentifier(ec.Prefix())
	}
	return outputs
}

// NewScope builds the template scope of a node from its bindings.
func NewScope(ec *ExecContext, outputs map[string]string) *expressions.TemplateScope {
	inputs := make(map[string]string, len(ec.Inputs))
	for name, b := range ec.Inputs {
		inputs[name] = b.Value
	}
	cfg := ec.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	kind := ""
	if ec.Kind != nil {
		kind = ec.Kind.Name
	}
	return &expressions.TemplateScope{
		Inputs:  inputs,
		Outputs: outputs,
		Config:  cfg,
		Node:    map[string]any{"id": ec.NodeID, "kind": kind},
	}
}

func templateError(ec *ExecContext, line int, err error) error {
	return schema.NewErrorf(schema.ErrCodeTemplate, "template line %d: %v", line, err).
		WithNode(ec.NodeID).
		WithCause(err)
}

package validation

import (
	"context"

	"github.com/rendis/blueprint/internal/expressions"
	"github.com/rendis/blueprint/internal/graph"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/pkg/schema"
)

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (ids, kinds, configs, ports, arity)
// 3. Cycles (three-color DFS)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
	semantic   *semanticChecker
	kinds      nodes.Resolver
}

// NewGraphValidator creates a GraphValidator resolving kinds through kinds.
func NewGraphValidator(kinds nodes.Resolver) (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	rules, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{
		jsonSchema: jsv,
		semantic:   &semanticChecker{kinds: kinds, schema: jsv, rules: rules},
		kinds:      kinds,
	}, nil
}

// Validate runs the full pipeline and returns every diagnostic found.
// Structural errors short-circuit; the semantic and cycle stages always
// both run on a structurally valid graph.
func (gv *GraphValidator) Validate(ctx context.Context, def *schema.GraphDefinition) *schema.Diagnostics {
	// Stage 1: Structural (JSON Schema).
	result := validateStructural(gv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(gv.semantic.validateSemantic(ctx, def))

	// Stage 3: Cycles, independent of semantic errors.
	result.Merge(validateCycles(graph.New(def, gv.kinds)))

	return result
}

// ValidateDefinition returns the pipeline's diagnostics as an error, or nil.
func (gv *GraphValidator) ValidateDefinition(ctx context.Context, def *schema.GraphDefinition) error {
	return gv.Validate(ctx, def).ToError()
}

// validateStructural converts JSONSchemaValidator.ValidateDefinition output into Diagnostics.
func validateStructural(v *JSONSchemaValidator, def *schema.GraphDefinition) *schema.Diagnostics {
	result := &schema.Diagnostics{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}
	for _, msg := range violationsOf(err) {
		result.AddError(schema.Diagnostic{Code: schema.ErrCodeValidation, Message: msg})
	}
	return result
}

var _ Validator = (*GraphValidator)(nil)

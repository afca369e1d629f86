package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/blueprint/pkg/schema"
)

const graphSchemaURL = "https://blueprint.dev/schemas/graph.json"

// graphSchemaJSON describes the accepted shape of a GraphDefinition.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://blueprint.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "name": { "type": "string" },
    "nodes": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/edge" }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "kind": { "type": "string", "minLength": 1 },
        "config": { "type": "object" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "from_port", "to", "to_port"],
      "properties": {
        "from": { "type": "string", "minLength": 1 },
        "from_port": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "to_port": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks graph structure and node configs against
// Draft 2020-12 schemas. Safe for concurrent use.
type JSONSchemaValidator struct {
	graph *jsonschema.Schema

	configs sync.Map // schema text -> *jsonschema.Schema
	seq     atomic.Int64
}

// NewJSONSchemaValidator compiles the graph schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	g, err := compileSchema(graphSchemaURL, graphSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("graph schema: %w", err)
	}
	return &JSONSchemaValidator{graph: g}, nil
}

// compileSchema compiles one schema document registered under url.
func compileSchema(url, text string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile(url)
}

// ValidateDefinition checks a GraphDefinition against the graph schema.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.GraphDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "graph definition is nil")
	}
	return validateValue(v.graph, def, schema.ErrCodeValidation)
}

// ValidateConfig checks a node config against configSchema. No schema means
// no constraint; a nil config is checked as an empty object.
func (v *JSONSchemaValidator) ValidateConfig(config map[string]any, configSchema []byte) error {
	if len(configSchema) == 0 {
		return nil
	}
	compiled, err := v.configSchema(string(configSchema))
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidConfig, "invalid config schema").WithCause(err)
	}
	if config == nil {
		config = map[string]any{}
	}
	return validateValue(compiled, config, schema.ErrCodeInvalidConfig)
}

// configSchema returns the compiled form of text, compiling it on first use.
// Concurrent first uses may compile twice; the first stored result wins.
func (v *JSONSchemaValidator) configSchema(text string) (*jsonschema.Schema, error) {
	if cached, ok := v.configs.Load(text); ok {
		return cached.(*jsonschema.Schema), nil
	}
	url := fmt.Sprintf("https://blueprint.dev/schemas/config/%d.json", v.seq.Add(1))
	compiled, err := compileSchema(url, text)
	if err != nil {
		return nil, err
	}
	actual, _ := v.configs.LoadOrStore(text, compiled)
	return actual.(*jsonschema.Schema), nil
}

// compiledConfigs reports how many distinct config schemas are cached.
func (v *JSONSchemaValidator) compiledConfigs() int {
	n := 0
	v.configs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// validateValue round-trips value through JSON so numbers reach the
// validator as json.Number, then reports violations under code.
func validateValue(s *jsonschema.Schema, value any, code string) error {
	b, err := json.Marshal(value)
	if err != nil {
		return schema.NewError(code, "value is not JSON serializable").WithCause(err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
	if err != nil {
		return schema.NewError(code, "value is not JSON serializable").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return violationError(code, err)
	}
	return nil
}

// violationError flattens a validation error tree into a BlueprintError whose
// "violations" detail lists every leaf as "/location: message".
func violationError(code string, err error) *schema.BlueprintError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(code, err.Error())
	}

	var violations []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			violations = append(violations, "/"+strings.Join(e.InstanceLocation, "/")+": "+e.Error())
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	msg := verr.Error()
	switch len(violations) {
	case 0:
		return schema.NewError(code, msg)
	case 1:
		msg = violations[0]
	default:
		msg = fmt.Sprintf("validation failed with %d errors", len(violations))
	}
	return schema.NewError(code, msg).WithDetails(map[string]any{"violations": violations})
}

// violationsOf returns the violation list carried by err, or its message.
func violationsOf(err error) []string {
	var be *schema.BlueprintError
	if !errors.As(err, &be) {
		return []string{err.Error()}
	}
	if list, ok := be.Details["violations"].([]string); ok && len(list) > 0 {
		return list
	}
	return []string{be.Message}
}

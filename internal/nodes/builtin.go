package nodes

import (
	"encoding/json"
	"fmt"
)

// Categories used by the built-in catalog.
const (
	CategoryValue   = "value"
	CategoryMath    = "math"
	CategoryLogic   = "logic"
	CategoryObject  = "object"
	CategoryEffect  = "effect"
	CategoryControl = "control"
)

// RegisterBuiltins registers the standard node kinds into the given registry.
func RegisterBuiltins(reg *Registry) error {
	for _, k := range Builtins() {
		if err := reg.Register(k); err != nil {
			return err
		}
	}
	return nil
}

// Builtins returns the standard node kinds.
func Builtins() []Kind {
	return []Kind{
		{
			Name:         "MakeValue",
			Description:  "Declares a variable initialized from config.value",
			Category:     CategoryValue,
			Ports:        []PortDescriptor{Output("Out")},
			ConfigSchema: objectSchema(`{"value": {}}`, "value"),
			Template:     Lines("var ${{ outputs.Out }} = ${{ config.value }};"),
		},
		{
			Name:        "Consume",
			Description: "Passes its input to a call with no result",
			Category:    CategoryEffect,
			Ports:       []PortDescriptor{Input("In")},
			Template:    Lines("Consume(${{ inputs.In }});"),
		},
		{
			Name:         "Literal",
			Description:  "Declares a typed constant",
			Category:     CategoryValue,
			Ports:        []PortDescriptor{Output("Out")},
			ConfigSchema: objectSchema(`{"type": {"type": "string", "minLength": 1}, "value": {}}`, "type", "value"),
			Template:     Lines("${{ config.type }} ${{ outputs.Out }} = ${{ config.value }};"),
		},
		{
			Name:             "BinaryOp",
			Description:      "Applies an arithmetic operator to A and B",
			Category:         CategoryMath,
			Ports:            []PortDescriptor{Input("A"), Input("B"), Output("Result")},
			ConfigSchema:     objectSchema(`{"operator": {"type": "string"}}`, "operator"),
			ConfigRules:      []string{`config.operator in ["+", "-", "*", "/", "%"]`},
			Template:         Lines("var ${{ outputs.Result }} = ${{ inputs.A }} ${{ config.operator }} ${{ inputs.B }};"),
			IdentifierPrefix: "t",
		},
		{
			Name:             "Compare",
			Description:      "Compares A and B",
			Category:         CategoryLogic,
			Ports:            []PortDescriptor{Input("A"), Input("B"), Output("Result").Typed("bool")},
			ConfigSchema:     objectSchema(`{"operator": {"type": "string"}}`, "operator"),
			ConfigRules:      []string{`config.operator in ["==", "!=", "<", "<=", ">", ">="]`},
			Template:         Lines("var ${{ outputs.Result }} = ${{ inputs.A }} ${{ config.operator }} ${{ inputs.B }};"),
			IdentifierPrefix: "cmp",
		},
		{
			Name:             "Not",
			Description:      "Negates a boolean",
			Category:         CategoryLogic,
			Ports:            []PortDescriptor{Input("Value").Typed("bool"), Output("Result").Typed("bool")},
			Template:         Lines("var ${{ outputs.Result }} = !${{ inputs.Value }};"),
			IdentifierPrefix: "b",
		},
		{
			Name:        "Select",
			Description: "Picks WhenTrue or WhenFalse by Condition",
			Category:    CategoryControl,
			Version:     "1",
			Ports: []PortDescriptor{
				Input("Condition").Typed("bool"),
				Input("WhenTrue"),
				OptionalInput("WhenFalse", "default"),
				Output("Result"),
			},
			Factory:          newSelect,
			IdentifierPrefix: "sel",
		},
		{
			Name:         "GetField",
			Description:  "Reads a field of Target",
			Category:     CategoryObject,
			Ports:        []PortDescriptor{OptionalInput("Target", "this"), Output("Value")},
			ConfigSchema: fieldSchema,
			Template:     Lines("var ${{ outputs.Value }} = ${{ inputs.Target }}.${{ config.field }};"),
		},
		{
			Name:         "SetField",
			Description:  "Assigns Value to a field of Target",
			Category:     CategoryObject,
			Ports:        []PortDescriptor{OptionalInput("Target", "this"), Input("Value")},
			ConfigSchema: fieldSchema,
			Template:     Lines("${{ inputs.Target }}.${{ config.field }} = ${{ inputs.Value }};"),
		},
		{
			Name:         "Log",
			Description:  "Writes Message to the debug log",
			Category:     CategoryEffect,
			Version:      "1",
			Ports:        []PortDescriptor{OptionalInput("Message", `""`)},
			ConfigSchema: json.RawMessage(`{"type": "object", "properties": {"level": {"type": "string"}}}`),
			ConfigRules:  []string{`!has(config.level) || config.level in ["info", "warn", "error"]`},
			Factory:      newLog,
		},
		{
			Name:        "Broadcast",
			Description: "Copies Value into an output that may feed many nodes",
			Category:    CategoryValue,
			Ports:       []PortDescriptor{Input("Value"), MultiOutput("Out")},
			Template:    Lines("var ${{ outputs.Out }} = ${{ inputs.Value }};"),
		},
		{
			Name:        "Negate",
			Description: "Negates Value when config.negate is true, copies it otherwise",
			Category:    CategoryMath,
			Ports:       []PortDescriptor{Input("Value"), Output("Result")},
			ConfigSchema: json.RawMessage(
				`{"type": "object", "properties": {"negate": {"type": "boolean"}}}`),
			Template: Template{
				{Text: "var ${{ outputs.Result }} = -${{ inputs.Value }};", When: "config.negate == true"},
				{Text: "var ${{ outputs.Result }} = ${{ inputs.Value }};", When: "config.negate != true"},
			},
		},
	}
}

var fieldSchema = objectSchema(`{"field": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"}}`, "field")

// objectSchema builds a config schema for an object with the given
// properties and required keys.
func objectSchema(properties string, required ...string) json.RawMessage {
	req, _ := json.Marshal(required)
	return json.RawMessage(fmt.Sprintf(`{"type": "object", "properties": %s, "required": %s}`, properties, req))
}

func newSelect(_ map[string]any) (Behavior, error) {
	return BehaviorFunc(func(ec *ExecContext) (map[string]string, error) {
		out := AllocateOutputs(ec)
		ec.Emitter.Emitf("var %s = %s ? %s : %s;",
			out["Result"], ec.Input("Condition"), ec.Input("WhenTrue"), ec.Input("WhenFalse"))
		return out, nil
	}), nil
}

var logCalls = map[string]string{
	"info":  "Debug.Log",
	"warn":  "Debug.LogWarning",
	"error": "Debug.LogError",
}

func newLog(config map[string]any) (Behavior, error) {
	level := "info"
	if v, ok := config["level"].(string); ok && v != "" {
		level = v
	}
	call, ok := logCalls[level]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return BehaviorFunc(func(ec *ExecContext) (map[string]string, error) {
		ec.Emitter.Emitf("%s(%s);", call, ec.Input("Message"))
		return map[string]string{}, nil
	}), nil
}
